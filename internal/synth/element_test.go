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

package synth

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNoiseElementBuffer tests buffer size and the zero-centered value range
func TestNoiseElementBuffer(t *testing.T) {
	tests := []struct {
		name       string
		min        float32
		max        float32
		sampleRate int
	}{
		{name: "unit_range", min: -1, max: 1, sampleRate: 400},
		{name: "half_range", min: -0.5, max: 0.5, sampleRate: 99},
		{name: "positive_range", min: 0.01, max: 1, sampleRate: 100},
		{name: "wide_range", min: -4, max: 8, sampleRate: 48000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			element, err := NewNoiseElement(1, tt.min, tt.max, tt.sampleRate, NewEntropySource())
			require.NoError(t, err)
			require.Equal(t, tt.sampleRate, element.Len())

			half := (tt.max - tt.min) / 2
			for i, v := range element.buffer {
				assert.GreaterOrEqual(t, v, -half, "value %d below range", i)
				assert.LessOrEqual(t, v, half, "value %d above range", i)
			}
		})
	}
}

func TestNoiseElementScaling(t *testing.T) {
	src := &scriptedSource{raw: []byte{0, 255, 51, 204}}

	element, err := NewNoiseElement(1, -1, 1, 4, src)
	require.NoError(t, err)

	assert.InDelta(t, -1.0, element.buffer[0], 1e-6)
	assert.InDelta(t, 1.0, element.buffer[1], 1e-6)
	assert.InDelta(t, -0.6, element.buffer[2], 1e-6)
	assert.InDelta(t, 0.6, element.buffer[3], 1e-6)

	t.Run("cursor_advances_before_read_and_wraps", func(t *testing.T) {
		assert.InDelta(t, 1.0, element.Next(1), 1e-6)
		assert.InDelta(t, -0.6, element.Next(2), 1e-6)
		assert.InDelta(t, 0.6, element.Next(3), 1e-6)
		assert.InDelta(t, -1.0, element.Next(4), 1e-6)
		assert.InDelta(t, 1.0, element.Next(5), 1e-6)
	})
}

func TestNoiseElementInvalidRange(t *testing.T) {
	tests := []struct {
		name    string
		min     float32
		max     float32
		kind    RangeErrorKind
		message string
	}{
		{name: "equal_bounds", min: 1, max: 1, kind: RangeEqual, message: "max and min must be different"},
		{name: "equal_zero_bounds", min: 0, max: 0, kind: RangeEqual, message: "max and min must be different"},
		{name: "inverted_bounds", min: 1, max: 0.5, kind: RangeInverted, message: "max must be greater than min"},
		{name: "inverted_negative_bounds", min: -0.1, max: -2, kind: RangeInverted, message: "max must be greater than min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			element, err := NewNoiseElement(1, tt.min, tt.max, 100, NewEntropySource())
			require.Error(t, err)
			assert.Nil(t, element)

			var rangeErr *InvalidRangeError
			require.True(t, errors.As(err, &rangeErr), "should be an InvalidRangeError")
			assert.Equal(t, tt.kind, rangeErr.Kind)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNoiseElementInvalidArguments(t *testing.T) {
	t.Run("zero_occurrence", func(t *testing.T) {
		_, err := NewNoiseElement(0, -1, 1, 100, NewEntropySource())
		assert.ErrorIs(t, err, ErrInvalidOccurrence)
	})

	t.Run("zero_sample_rate", func(t *testing.T) {
		_, err := NewNoiseElement(1, -1, 1, 0, NewEntropySource())
		assert.ErrorIs(t, err, ErrInvalidSampleRate)
	})

	t.Run("entropy_failure", func(t *testing.T) {
		_, err := NewNoiseElement(1, -1, 1, 100, NewReaderSource(bytes.NewReader(make([]byte, 10))))
		require.Error(t, err)

		var entropyErr *EntropyUnavailableError
		assert.True(t, errors.As(err, &entropyErr))
	})
}

// TestNoiseElementOccurrence tests that only ticks on the occurrence stride draw
func TestNoiseElementOccurrence(t *testing.T) {
	for _, occurrence := range []int{1, 2, 3, 7, 100} {
		t.Run(fmt.Sprintf("occurrence_%d", occurrence), func(t *testing.T) {
			element, err := NewNoiseElement(occurrence, -1, 1, 100, NewEntropySource())
			require.NoError(t, err)

			for tick := 1; tick <= 250; tick++ {
				v := element.Next(tick)
				if tick%occurrence != 0 {
					require.Equal(t, float32(0), v, "tick %d should be silent", tick)
					continue
				}
				require.GreaterOrEqual(t, v, float32(-1))
				require.LessOrEqual(t, v, float32(1))
			}
		})
	}
}

func TestNoiseElementEveryOtherTick(t *testing.T) {
	element, err := NewNoiseElement(2, -1, 1, 100, NewEntropySource())
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		tick := i + 1
		result := element.Next(tick)
		if i%2 == 0 {
			assert.Equal(t, float32(0), result, "call %d (tick %d) should be silent", i, tick)
		} else {
			assert.GreaterOrEqual(t, result, float32(-1))
			assert.LessOrEqual(t, result, float32(1))
		}
	}
}
