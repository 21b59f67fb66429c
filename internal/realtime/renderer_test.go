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
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-noise-go/internal/synth"
)

func newTestHandle(t *testing.T, algorithm synth.Algorithm) *Handle {
	t.Helper()
	cfg := synth.DefaultConfig(100)
	cfg.Algorithm = algorithm
	p, err := synth.NewProcessor(cfg, synth.NewEntropySource())
	require.NoError(t, err)
	return NewHandle(p)
}

func TestHandleTryAcquire(t *testing.T) {
	h := newTestHandle(t, synth.AlgorithmWhite)

	t.Run("free_handle_is_granted", func(t *testing.T) {
		g, ok := h.TryAcquire()
		require.True(t, ok)
		assert.NotNil(t, g.Processor())
		g.Release()
	})

	t.Run("held_handle_is_refused", func(t *testing.T) {
		control := h.Acquire()
		defer control.Release()

		_, ok := h.TryAcquire()
		assert.False(t, ok, "try acquire must fail while the control owner holds access")
	})

	t.Run("released_handle_is_granted_again", func(t *testing.T) {
		g, ok := h.TryAcquire()
		require.True(t, ok)
		g.Release()
	})
}

func TestHandleReplace(t *testing.T) {
	h := newTestHandle(t, synth.AlgorithmWhite)

	cfg := synth.DefaultConfig(100)
	cfg.Algorithm = synth.AlgorithmSine
	next, err := synth.NewProcessor(cfg, synth.NewEntropySource())
	require.NoError(t, err)

	old := h.Replace(next)
	assert.Equal(t, synth.AlgorithmWhite, old.Algorithm())

	g, ok := h.TryAcquire()
	require.True(t, ok)
	assert.Same(t, next, g.Processor())
	g.Release()
}

// TestHandleMutualExclusion tests that at most one role holds access at a time
func TestHandleMutualExclusion(t *testing.T) {
	h := newTestHandle(t, synth.AlgorithmWhite)

	var holders atomic.Int32
	var violations atomic.Int32
	var granted atomic.Int32
	var wg sync.WaitGroup

	hold := func() {
		if holders.Add(1) > 1 {
			violations.Add(1)
		}
		holders.Add(-1)
	}

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				if g, ok := h.TryAcquire(); ok {
					granted.Add(1)
					hold()
					g.Release()
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			g := h.Acquire()
			hold()
			g.Release()
		}
	}()

	wg.Wait()
	assert.Zero(t, violations.Load(), "two owners held the handle at once")
	assert.Positive(t, granted.Load())
}

func TestNewRenderer(t *testing.T) {
	h := newTestHandle(t, synth.AlgorithmWhite)

	_, err := NewRenderer(h, 0)
	assert.ErrorIs(t, err, ErrInvalidChannels)

	r, err := NewRenderer(h, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Channels())
	assert.Same(t, h, r.Handle())
}

// TestRendererSilenceWhileControlHoldsAccess renders an 8 frame stereo
// float buffer while the control owner holds the handle
func TestRendererSilenceWhileControlHoldsAccess(t *testing.T) {
	h := newTestHandle(t, synth.AlgorithmWhite)
	r, err := NewRenderer(h, 2)
	require.NoError(t, err)

	out := make([]float32, 8*2)
	for i := range out {
		out[i] = 0.42
	}

	control := h.Acquire()
	err = r.FillFloat32(out)
	control.Release()

	require.NoError(t, err, "contention is not an error")
	require.Len(t, out, 16)
	for i, v := range out {
		assert.Equal(t, float32(0), v, "slot %d should be silent", i)
	}
	assert.Equal(t, Stats{Rendered: 0, Skipped: 1}, r.Stats())
}

func TestRendererSilenceFormats(t *testing.T) {
	h := newTestHandle(t, synth.AlgorithmWhite)
	r, err := NewRenderer(h, 2)
	require.NoError(t, err)

	control := h.Acquire()
	defer control.Release()

	i16 := []int16{5, 5, 5, 5}
	require.NoError(t, r.FillInt16(i16))
	assert.Equal(t, []int16{0, 0, 0, 0}, i16)

	u16 := []uint16{5, 5, 5, 5}
	require.NoError(t, r.FillUint16(u16))
	assert.Equal(t, []uint16{32768, 32768, 32768, 32768}, u16)
}

func TestRendererReplicatesAcrossChannels(t *testing.T) {
	for _, channels := range []int{1, 2, 3, 6} {
		h := newTestHandle(t, synth.AlgorithmWhite)
		r, err := NewRenderer(h, channels)
		require.NoError(t, err)

		out := make([]float32, 32*channels)
		require.NoError(t, r.FillFloat32(out))

		for frame := 0; frame < len(out); frame += channels {
			for c := 1; c < channels; c++ {
				require.Equal(t, out[frame], out[frame+c], "frame %d channel %d", frame/channels, c)
			}
		}
		assert.Equal(t, uint64(1), r.Stats().Rendered)
	}
}

func TestRendererPartialTrailingFrame(t *testing.T) {
	h := newTestHandle(t, synth.AlgorithmSine)
	r, err := NewRenderer(h, 2)
	require.NoError(t, err)

	out := make([]float32, 5)
	require.NoError(t, r.FillFloat32(out))

	g, ok := h.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, 3, g.Processor().SampleClock(), "three frames should be pulled for five slots")
	g.Release()
}

// TestRendererClockPausesDuringSkippedBuffers tests that a skipped buffer does
// not advance logical time
func TestRendererClockPausesDuringSkippedBuffers(t *testing.T) {
	h := newTestHandle(t, synth.AlgorithmSine)
	r, err := NewRenderer(h, 1)
	require.NoError(t, err)

	out := make([]float32, 10)
	require.NoError(t, r.FillFloat32(out))

	control := h.Acquire()
	require.NoError(t, r.FillFloat32(out))
	require.NoError(t, r.FillFloat32(out))
	control.Release()

	require.NoError(t, r.FillFloat32(out))

	g, ok := h.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, 20, g.Processor().SampleClock())
	g.Release()
	assert.Equal(t, Stats{Rendered: 2, Skipped: 2}, r.Stats())
}

func TestRendererMatchesProcessorOrder(t *testing.T) {
	cfg := synth.DefaultConfig(1000)
	cfg.Algorithm = synth.AlgorithmSine
	cfg.Frequency = 50

	p, err := synth.NewProcessor(cfg, synth.NewEntropySource())
	require.NoError(t, err)
	ref, err := synth.NewToneOscillator(50, 1000)
	require.NoError(t, err)

	r, err := NewRenderer(NewHandle(p), 2)
	require.NoError(t, err)

	out := make([]float32, 64*2)
	for buffer := 0; buffer < 4; buffer++ {
		require.NoError(t, r.FillFloat32(out))
		for frame := 0; frame < 64; frame++ {
			want := ref.Next()
			require.Equal(t, want, out[frame*2])
			require.Equal(t, want, out[frame*2+1])
		}
	}
}

// TestRendererEntropyFault tests that an entropy failure is surfaced and
// latched instead of replaced by a made-up sample
func TestRendererEntropyFault(t *testing.T) {
	p, err := synth.NewProcessor(synth.DefaultConfig(100), synth.NewReaderSource(bytes.NewReader(make([]byte, 3*4))))
	require.NoError(t, err)
	r, err := NewRenderer(NewHandle(p), 2)
	require.NoError(t, err)

	out := make([]float32, 8*2)
	err = r.FillFloat32(out)
	require.Error(t, err)

	var entropyErr *synth.EntropyUnavailableError
	require.True(t, errors.As(err, &entropyErr))
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}

	t.Run("fault_is_latched", func(t *testing.T) {
		assert.Equal(t, err, r.Err())

		out[0] = 1
		assert.Equal(t, err, r.FillFloat32(out))
		assert.Equal(t, float32(0), out[0])
	})
}

func TestSampleConversion(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		f32  float32
		i16  int16
		u16  uint16
	}{
		{name: "silence", in: 0, f32: 0, i16: 0, u16: 32768},
		{name: "full_positive", in: 1, f32: 1, i16: 32767, u16: 65535},
		{name: "full_negative", in: -1, f32: -1, i16: -32767, u16: 0},
		{name: "over_range", in: 3, f32: 1, i16: 32767, u16: 65535},
		{name: "under_range", in: -3, f32: -1, i16: -32767, u16: 0},
		{name: "half", in: 0.5, f32: 0.5, i16: 16383, u16: 49151},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.f32, Float32Sample(tt.in))
			assert.Equal(t, tt.i16, Int16Sample(tt.in))
			assert.Equal(t, tt.u16, Uint16Sample(tt.in))
		})
	}
}

func TestParseSampleFormat(t *testing.T) {
	for _, f := range []SampleFormat{FormatFloat32, FormatInt16, FormatUint16} {
		parsed, err := ParseSampleFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}

	_, err := ParseSampleFormat("s24")
	assert.Error(t, err)
}
