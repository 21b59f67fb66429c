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

package realtime

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/loqalabs/loqa-noise-go/internal/synth"
)

// ErrInvalidChannels is returned for a channel count below one
var ErrInvalidChannels = errors.New("channel count must be at least 1")

// SampleFormat is the numeric type of an output buffer slot
type SampleFormat int

const (
	FormatFloat32 SampleFormat = iota
	FormatInt16
	FormatUint16
)

func (f SampleFormat) String() string {
	switch f {
	case FormatFloat32:
		return "f32"
	case FormatInt16:
		return "i16"
	case FormatUint16:
		return "u16"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// MarshalText implements encoding.TextMarshaler
func (f SampleFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *SampleFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseSampleFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseSampleFormat accepts "f32", "i16" or "u16"
func ParseSampleFormat(name string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "f32", "float32":
		return FormatFloat32, nil
	case "i16", "int16":
		return FormatInt16, nil
	case "u16", "uint16":
		return FormatUint16, nil
	}
	return 0, fmt.Errorf("unknown sample format %q", name)
}

// Sample is any output slot type the renderer can write
type Sample interface {
	float32 | int16 | uint16
}

// Stats counts buffers since the renderer was created
type Stats struct {
	Rendered uint64 // buffers filled from the processor
	Skipped  uint64 // buffers filled with silence because the control owner held the handle
}

type fault struct {
	err error
}

// Renderer fills interleaved output buffers from a Handle. It is called from
// the output callback and never blocks: if the processor is busy the buffer
// is silenced and the processor's clock does not move.
type Renderer struct {
	handle   *Handle
	channels int

	rendered atomic.Uint64
	skipped  atomic.Uint64
	fault    atomic.Pointer[fault]
}

// NewRenderer returns a renderer that replicates each sample across channels
func NewRenderer(h *Handle, channels int) (*Renderer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChannels, channels)
	}
	return &Renderer{handle: h, channels: channels}, nil
}

// Channels returns the number of interleaved channels per frame
func (r *Renderer) Channels() int {
	return r.channels
}

// Handle returns the handle the renderer pulls through
func (r *Renderer) Handle() *Handle {
	return r.handle
}

// Stats returns the buffer counters
func (r *Renderer) Stats() Stats {
	return Stats{Rendered: r.rendered.Load(), Skipped: r.skipped.Load()}
}

// Err returns the first fatal error seen while rendering, if any. Once set,
// every later buffer is silence.
func (r *Renderer) Err() error {
	if f := r.fault.Load(); f != nil {
		return f.err
	}
	return nil
}

// FillFloat32 fills out with 32-bit float samples
func (r *Renderer) FillFloat32(out []float32) error {
	return fill(r, out, Float32Sample)
}

// FillInt16 fills out with signed 16-bit samples
func (r *Renderer) FillInt16(out []int16) error {
	return fill(r, out, Int16Sample)
}

// FillUint16 fills out with unsigned 16-bit samples
func (r *Renderer) FillUint16(out []uint16) error {
	return fill(r, out, Uint16Sample)
}

func fill[T Sample](r *Renderer, out []T, convert func(float32) T) error {
	if f := r.fault.Load(); f != nil {
		silence(out, convert)
		return f.err
	}

	g, ok := r.handle.TryAcquire()
	if !ok {
		silence(out, convert)
		r.skipped.Add(1)
		return nil
	}
	defer g.Release()

	p := g.Processor()
	for frame := 0; frame < len(out); frame += r.channels {
		v, err := p.Next()
		if err != nil {
			silence(out, convert)
			r.fault.CompareAndSwap(nil, &fault{err: err})
			return err
		}

		s := convert(v)
		end := min(frame+r.channels, len(out))
		for i := frame; i < end; i++ {
			out[i] = s
		}
	}

	r.rendered.Add(1)
	return nil
}

func silence[T Sample](out []T, convert func(float32) T) {
	zero := convert(0)
	for i := range out {
		out[i] = zero
	}
}

// Float32Sample clamps x to [-1, 1]
func Float32Sample(x float32) float32 {
	return synth.Clamp(x)
}

// Int16Sample scales x to [-32767, 32767]
func Int16Sample(x float32) int16 {
	return int16(synth.Clamp(x) * math.MaxInt16)
}

// Uint16Sample maps x onto [0, 65535] with silence at 32768
func Uint16Sample(x float32) uint16 {
	return uint16(math.Round(float64((synth.Clamp(x) + 1) * 0.5 * math.MaxUint16)))
}
