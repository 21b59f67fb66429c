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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedPinkOutput(accumulator float64) float32 {
	return float32(int64(accumulator) >> 16)
}

// TestColoredNoiseBandSelection tests that each draw updates exactly the first
// band whose threshold is above it
func TestColoredNoiseBandSelection(t *testing.T) {
	tests := []struct {
		name string
		u    float32
		band int
	}{
		{name: "band_0", u: 0.1, band: 0},
		{name: "band_1", u: 0.8, band: 1},
		{name: "band_2", u: 0.9, band: 2},
		{name: "band_3", u: 0.9125, band: 3},
		{name: "band_4", u: 0.915, band: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := float32(0.75)
			gen := NewColoredNoiseGenerator(&scriptedSource{values: []float32{tt.u, v}})

			out, err := gen.Next()
			require.NoError(t, err)

			contributions := gen.Contributions()
			for i, c := range contributions {
				if i == tt.band {
					assert.Equal(t, (float64(v)*32767*2-32767)*pinkGains[i], c)
				} else {
					assert.Zero(t, c, "band %d should not change", i)
				}
			}
			assert.Equal(t, contributions[tt.band], gen.Accumulator())
			assert.Equal(t, expectedPinkOutput(gen.Accumulator()), out)
		})
	}
}

func TestColoredNoiseNoBandUpdated(t *testing.T) {
	gen := NewColoredNoiseGenerator(&scriptedSource{values: []float32{
		0.1, 0.9, // band 0
		0.95, 0.1, // above every threshold
	}})

	first, err := gen.Next()
	require.NoError(t, err)
	before := gen.Contributions()

	second, err := gen.Next()
	require.NoError(t, err, "a draw above every threshold is not an error")
	assert.Equal(t, before, gen.Contributions())
	assert.Equal(t, first, second, "previous accumulator should persist")
}

// TestColoredNoiseContributionsPersist tests that replacing a band removes its
// previous contribution from the accumulator
func TestColoredNoiseContributionsPersist(t *testing.T) {
	gen := NewColoredNoiseGenerator(&scriptedSource{values: []float32{
		0.1, 0.9, // band 0
		0.8, 0.2, // band 1
		0.1, 0.3, // band 0 again
	}})

	for i := 0; i < 3; i++ {
		before := gen.Contributions()
		out, err := gen.Next()
		require.NoError(t, err)

		after := gen.Contributions()
		changed := 0
		sum := 0.0
		for band := range after {
			if after[band] != before[band] {
				changed++
			}
			sum += after[band]
		}
		assert.Equal(t, 1, changed, "call %d should change exactly one band", i)
		assert.InDelta(t, sum, gen.Accumulator(), 1e-3)
		assert.Equal(t, expectedPinkOutput(gen.Accumulator()), out)
	}
}

func TestColoredNoiseDeterminism(t *testing.T) {
	draws := make([]float32, 0, 2000)
	entropy := NewEntropySource()
	for i := 0; i < 2000; i++ {
		v, err := entropy.Uniform()
		require.NoError(t, err)
		draws = append(draws, v)
	}

	a := NewColoredNoiseGenerator(&scriptedSource{values: draws})
	b := NewColoredNoiseGenerator(&scriptedSource{values: draws})

	for i := 0; i < 1000; i++ {
		outA, err := a.Next()
		require.NoError(t, err)
		outB, err := b.Next()
		require.NoError(t, err)
		require.Equal(t, outA, outB, "call %d diverged", i)
	}
}

func TestColoredNoiseRange(t *testing.T) {
	gen := NewColoredNoiseGenerator(NewEntropySource())

	// Five bands of at most 32767 * 15716 each, shifted by 16 bits
	limit := float32(5 * 32767 * 15716 >> 16)
	for i := 0; i < 10000; i++ {
		out, err := gen.Next()
		require.NoError(t, err)
		require.LessOrEqual(t, out, limit)
		require.GreaterOrEqual(t, out, -limit-1)
	}
}

func TestColoredNoiseEntropyFailure(t *testing.T) {
	gen := NewColoredNoiseGenerator(NewReaderSource(bytes.NewReader([]byte{1, 2, 3})))

	_, err := gen.Next()
	require.Error(t, err)

	var entropyErr *EntropyUnavailableError
	assert.True(t, errors.As(err, &entropyErr))
	assert.Equal(t, [pinkBands]float64{}, gen.Contributions(), "failed call must not update a band")
}
