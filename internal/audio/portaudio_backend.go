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
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/loqalabs/loqa-noise-go/internal/realtime"
)

// PortAudioBackend implements AudioBackend using the real PortAudio library
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Name returns "portaudio"
func (p *PortAudioBackend) Name() string {
	return "portaudio"
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// CreateOutputStream opens a callback stream on the default output device.
// PortAudio calls the renderer from its own real-time thread.
func (p *PortAudioBackend) CreateOutputStream(params StreamParams, renderer *realtime.Renderer) (StreamInterface, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}
	if err := params.Validate(renderer); err != nil {
		return nil, err
	}

	if _, err := portaudio.DefaultOutputDevice(); err != nil {
		return nil, &DeviceUnavailableError{Backend: p.Name(), Err: err}
	}

	// Render errors are latched in the renderer and read by the control side
	var callback interface{}
	switch params.Format {
	case realtime.FormatFloat32:
		callback = func(out []float32) { _ = renderer.FillFloat32(out) }
	case realtime.FormatInt16:
		callback = func(out []int16) { _ = renderer.FillInt16(out) }
	default:
		return nil, fmt.Errorf("portaudio %s: %w", params.Format, ErrUnsupportedFormat)
	}

	stream, err := portaudio.OpenDefaultStream(
		0,               // input channels (none for output stream)
		params.Channels, // output channels
		params.SampleRate,
		params.BufferSize,
		callback,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &PortAudioStream{stream: stream}, nil
}

// PortAudioStream implements StreamInterface using PortAudio streams
type PortAudioStream struct {
	stream *portaudio.Stream
	active atomic.Bool
}

// Start starts the audio stream
func (p *PortAudioStream) Start() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.active.Store(true)
	return nil
}

// Stop stops the audio stream
func (p *PortAudioStream) Stop() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	p.active.Store(false)
	return p.stream.Stop()
}

// Close closes the audio stream
func (p *PortAudioStream) Close() error {
	if p.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	p.active.Store(false)
	return p.stream.Close()
}

// IsActive returns true between Start and Stop
func (p *PortAudioStream) IsActive() bool {
	return p.active.Load()
}
