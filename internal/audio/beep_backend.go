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

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/loqalabs/loqa-noise-go/internal/realtime"
)

// Streamer adapts a Renderer to beep.Streamer. beep works in stereo frames,
// so the first two channels of each rendered frame are copied out.
type Streamer struct {
	renderer *realtime.Renderer
	scratch  []float32
}

// NewStreamer returns a streamer pulling through renderer
func NewStreamer(renderer *realtime.Renderer) *Streamer {
	return &Streamer{renderer: renderer}
}

// Stream fills samples. It reports the stream drained once the renderer has
// faulted so the mixer drops it.
func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	channels := s.renderer.Channels()
	size := len(samples) * channels
	if cap(s.scratch) < size {
		s.scratch = make([]float32, size)
	}
	buf := s.scratch[:size]

	if err := s.renderer.FillFloat32(buf); err != nil {
		return 0, false
	}

	right := min(1, channels-1)
	for i := range samples {
		frame := buf[i*channels:]
		samples[i][0] = float64(frame[0])
		samples[i][1] = float64(frame[right])
	}
	return len(samples), true
}

// Err returns the renderer's fault, if any
func (s *Streamer) Err() error {
	return s.renderer.Err()
}

// BeepBackend plays through the beep speaker, which owns a single process
// wide output and mixes every stream into it.
type BeepBackend struct {
	mu          sync.Mutex
	initialized bool
	speakerOpen bool
	sampleRate  beep.SampleRate
}

// NewBeepBackend creates a new beep backend
func NewBeepBackend() *BeepBackend {
	return &BeepBackend{}
}

// Name returns "beep"
func (b *BeepBackend) Name() string {
	return "beep"
}

// Initialize marks the backend ready; the speaker is opened with the first stream
func (b *BeepBackend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

// Terminate closes the speaker
func (b *BeepBackend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.speakerOpen {
		speaker.Close()
		b.speakerOpen = false
	}
	b.initialized = false
	return nil
}

// CreateOutputStream adds a paused streamer to the speaker mixer
func (b *BeepBackend) CreateOutputStream(params StreamParams, renderer *realtime.Renderer) (StreamInterface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, fmt.Errorf("beep backend not initialized")
	}
	if err := params.Validate(renderer); err != nil {
		return nil, err
	}
	if params.Format != realtime.FormatFloat32 {
		return nil, fmt.Errorf("beep %s: %w", params.Format, ErrUnsupportedFormat)
	}

	sr := beep.SampleRate(int(params.SampleRate))
	if !b.speakerOpen {
		if err := speaker.Init(sr, params.BufferSize); err != nil {
			return nil, &DeviceUnavailableError{Backend: b.Name(), Err: err}
		}
		b.speakerOpen = true
		b.sampleRate = sr
	} else if sr != b.sampleRate {
		return nil, fmt.Errorf("beep speaker already open at %d Hz", int(b.sampleRate))
	}

	ctrl := &beep.Ctrl{Streamer: NewStreamer(renderer), Paused: true}
	speaker.Play(ctrl)
	return &BeepStream{ctrl: ctrl}, nil
}

// BeepStream implements StreamInterface by pausing a beep.Ctrl
type BeepStream struct {
	ctrl   *beep.Ctrl
	closed bool
}

// Start resumes the streamer
func (s *BeepStream) Start() error {
	speaker.Lock()
	defer speaker.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	s.ctrl.Paused = false
	return nil
}

// Stop pauses the streamer
func (s *BeepStream) Stop() error {
	speaker.Lock()
	defer speaker.Unlock()
	s.ctrl.Paused = true
	return nil
}

// Close detaches the streamer; the mixer drops it on its next pass
func (s *BeepStream) Close() error {
	speaker.Lock()
	defer speaker.Unlock()
	s.ctrl.Streamer = nil
	s.closed = true
	return nil
}

// IsActive returns true while the streamer is unpaused
func (s *BeepStream) IsActive() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return !s.closed && !s.ctrl.Paused
}
