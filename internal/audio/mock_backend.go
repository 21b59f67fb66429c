/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/loqalabs/loqa-noise-go/internal/realtime"
)

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	initError          error
	terminateError     error
	createStreamError  error
	deviceMissing      bool
	simulateRealTiming bool
	playbackAudioData  [][]float32
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:           make(map[string]*MockStream),
		playbackAudioData: make([][]float32, 0),
	}
}

// Name returns "mock"
func (m *MockAudioBackend) Name() string {
	return "mock"
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetDeviceMissing makes stream creation fail with a DeviceUnavailableError
func (m *MockAudioBackend) SetDeviceMissing(missing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceMissing = missing
}

// SetSimulateRealTiming makes started streams pull buffers on a device-like clock
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// GetPlaybackAudioData returns every rendered buffer, normalized to float
func (m *MockAudioBackend) GetPlaybackAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.playbackAudioData))
	copy(result, m.playbackAudioData)
	return result
}

// StreamCount returns the number of open streams
func (m *MockAudioBackend) StreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate terminates the mock audio subsystem
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	if m.terminateError != nil {
		m.mu.Unlock()
		return m.terminateError
	}

	var streams []*MockStream
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}

	// Release the lock before calling Stop/Close to avoid deadlocks
	m.mu.Unlock()

	for _, stream := range streams {
		_ = stream.Stop()  // Ignore errors during cleanup
		_ = stream.Close() // Ignore errors during cleanup
	}

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// CreateOutputStream creates a mock output stream
func (m *MockAudioBackend) CreateOutputStream(params StreamParams, renderer *realtime.Renderer) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}
	if m.deviceMissing {
		return nil, &DeviceUnavailableError{Backend: m.Name(), Err: fmt.Errorf("no default output device")}
	}
	if m.createStreamError != nil {
		return nil, m.createStreamError
	}
	if err := params.Validate(renderer); err != nil {
		return nil, err
	}

	streamID := fmt.Sprintf("output_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		backend:            m,
		params:             params,
		renderer:           renderer,
		simulateRealTiming: m.simulateRealTiming,
		isOpen:             true,
		stopChannel:        make(chan bool, 1),
	}

	m.streams[streamID] = stream
	return stream, nil
}

func (m *MockAudioBackend) record(data []float32) {
	m.mu.Lock()
	m.playbackAudioData = append(m.playbackAudioData, data)
	m.mu.Unlock()
}

// MockStream implements StreamInterface for testing. Pump plays the part of
// the device callback.
type MockStream struct {
	mu                 sync.Mutex
	id                 string
	backend            *MockAudioBackend
	params             StreamParams
	renderer           *realtime.Renderer
	isOpen             bool
	isActive           bool
	simulateRealTiming bool
	stopChannel        chan bool
	startError         error
	lastRenderError    error
}

// SetStartError configures the stream to return an error on Start()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}
	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}
	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true

	select {
	case <-m.stopChannel:
	default:
	}

	if m.simulateRealTiming {
		go m.simulateAudioOutput()
	}

	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isActive {
		return nil
	}

	m.isActive = false

	// Signal stop to background goroutine
	select {
	case m.stopChannel <- true:
	default:
	}

	return nil
}

// Close closes the mock stream
func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen {
		return nil // Already closed
	}

	m.isOpen = false
	m.isActive = false

	select {
	case m.stopChannel <- true:
	default:
	}

	// Remove from backend - use a separate goroutine to avoid deadlock
	go func() {
		m.backend.mu.Lock()
		delete(m.backend.streams, m.id)
		m.backend.mu.Unlock()
	}()

	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

// LastRenderError returns the error from the most recent Pump
func (m *MockStream) LastRenderError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRenderError
}

// Pump renders one buffer of frames in the stream's format, records it and
// returns it as normalized floats
func (m *MockStream) Pump(frames int) ([]float32, error) {
	m.mu.Lock()
	if !m.isActive {
		m.mu.Unlock()
		return nil, fmt.Errorf("stream not active")
	}
	params := m.params
	m.mu.Unlock()

	size := frames * params.Channels
	data := make([]float32, size)
	var err error

	switch params.Format {
	case realtime.FormatInt16:
		buf := make([]int16, size)
		err = m.renderer.FillInt16(buf)
		for i, v := range buf {
			data[i] = float32(v) / 32767
		}
	case realtime.FormatUint16:
		buf := make([]uint16, size)
		err = m.renderer.FillUint16(buf)
		for i, v := range buf {
			data[i] = (float32(v) - 32768) / 32768
		}
	default:
		err = m.renderer.FillFloat32(data)
	}

	m.mu.Lock()
	m.lastRenderError = err
	m.mu.Unlock()

	m.backend.record(data)
	return data, err
}

// simulateAudioOutput pulls buffers at the rate a real device would
func (m *MockStream) simulateAudioOutput() {
	interval := time.Duration(float64(m.params.BufferSize) / m.params.SampleRate * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChannel:
			return
		case <-ticker.C:
			if !m.IsActive() {
				return
			}
			_, _ = m.Pump(m.params.BufferSize) // Errors are latched by the renderer
		}
	}
}
