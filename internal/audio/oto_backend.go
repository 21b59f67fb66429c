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
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/loqalabs/loqa-noise-go/internal/realtime"
)

// OtoBackend implements AudioBackend with an oto player that pulls samples
// through io.Reader. oto allows one context per process, so the first stream
// fixes the sample rate, channel count and format.
type OtoBackend struct {
	mu          sync.Mutex
	initialized bool
	ctx         *oto.Context
	params      StreamParams
}

// NewOtoBackend creates a new oto backend
func NewOtoBackend() *OtoBackend {
	return &OtoBackend{}
}

// Name returns "oto"
func (o *OtoBackend) Name() string {
	return "oto"
}

// Initialize marks the backend ready; the oto context is opened with the first stream
func (o *OtoBackend) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return nil
	}
	if o.ctx != nil {
		if err := o.ctx.Resume(); err != nil {
			return fmt.Errorf("failed to resume oto context: %w", err)
		}
	}
	o.initialized = true
	return nil
}

// Terminate suspends the shared oto context
func (o *OtoBackend) Terminate() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialized {
		return nil
	}
	o.initialized = false
	if o.ctx != nil {
		return o.ctx.Suspend()
	}
	return nil
}

func otoFormat(f realtime.SampleFormat) (oto.Format, error) {
	switch f {
	case realtime.FormatFloat32:
		return oto.FormatFloat32LE, nil
	case realtime.FormatInt16:
		return oto.FormatSignedInt16LE, nil
	}
	return 0, fmt.Errorf("oto %s: %w", f, ErrUnsupportedFormat)
}

// CreateOutputStream creates a player reading from renderer
func (o *OtoBackend) CreateOutputStream(params StreamParams, renderer *realtime.Renderer) (StreamInterface, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialized {
		return nil, fmt.Errorf("oto backend not initialized")
	}
	if err := params.Validate(renderer); err != nil {
		return nil, err
	}
	format, err := otoFormat(params.Format)
	if err != nil {
		return nil, err
	}

	if o.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   int(params.SampleRate),
			ChannelCount: params.Channels,
			Format:       format,
			BufferSize:   time.Duration(float64(params.BufferSize) / params.SampleRate * float64(time.Second)),
		})
		if err != nil {
			return nil, &DeviceUnavailableError{Backend: o.Name(), Err: err}
		}
		<-ready
		o.ctx = ctx
		o.params = params
	} else if o.params.SampleRate != params.SampleRate || o.params.Channels != params.Channels || o.params.Format != params.Format {
		return nil, fmt.Errorf("oto context already open at %g Hz, %d channels, %s",
			o.params.SampleRate, o.params.Channels, o.params.Format)
	}

	reader := newOtoReader(renderer, params.Format)
	return &OtoStream{player: o.ctx.NewPlayer(reader)}, nil
}

// OtoStream implements StreamInterface using an oto player
type OtoStream struct {
	player *oto.Player
}

// Start starts playback
func (s *OtoStream) Start() error {
	s.player.Play()
	return nil
}

// Stop pauses playback
func (s *OtoStream) Stop() error {
	s.player.Pause()
	return nil
}

// Close releases the player
func (s *OtoStream) Close() error {
	return s.player.Close()
}

// IsActive returns true while the player is playing
func (s *OtoStream) IsActive() bool {
	return s.player.IsPlaying()
}

// otoReader encodes rendered samples as little-endian bytes for oto.
// Scratch buffers grow only when oto asks for more than before.
type otoReader struct {
	renderer *realtime.Renderer
	format   realtime.SampleFormat
	f32      []float32
	i16      []int16
}

func newOtoReader(renderer *realtime.Renderer, format realtime.SampleFormat) *otoReader {
	return &otoReader{renderer: renderer, format: format}
}

// Read fills p. A render fault is returned so the player stops.
func (r *otoReader) Read(p []byte) (int, error) {
	switch r.format {
	case realtime.FormatInt16:
		n := len(p) / 2
		if cap(r.i16) < n {
			r.i16 = make([]int16, n)
		}
		buf := r.i16[:n]
		err := r.renderer.FillInt16(buf)
		for i, v := range buf {
			binary.LittleEndian.PutUint16(p[i*2:], uint16(v))
		}
		return n * 2, err
	default:
		n := len(p) / 4
		if cap(r.f32) < n {
			r.f32 = make([]float32, n)
		}
		buf := r.f32[:n]
		err := r.renderer.FillFloat32(buf)
		for i, v := range buf {
			binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
		}
		return n * 4, err
	}
}
