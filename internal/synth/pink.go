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

// Band tables for the autocorrelated pink noise approximation. Thresholds
// are compared against a draw scaled to [0, 32767).
var (
	pinkGains      = [pinkBands]float64{14055, 12759, 10733, 12273, 15716}
	pinkThresholds = [pinkBands]float64{22347, 27917, 29523, 29942, 30007}
)

const (
	pinkBands = 5
	pinkScale = 32767
	pinkShift = 16
)

// ColoredNoiseGenerator approximates pink noise with five bands whose
// contributions are held between calls. Each call replaces the contribution
// of at most one band and returns the running sum shifted down by 16 bits.
type ColoredNoiseGenerator struct {
	src           RandomSource
	contributions [pinkBands]float64
	accumulator   float64
}

// NewColoredNoiseGenerator returns a generator with all contributions at zero
func NewColoredNoiseGenerator(src RandomSource) *ColoredNoiseGenerator {
	return &ColoredNoiseGenerator{src: src}
}

// Next updates the first band whose threshold is above a fresh draw and
// returns the accumulator as a 16-bit range value. If no threshold is above
// the draw nothing changes and the previous accumulator is returned.
func (g *ColoredNoiseGenerator) Next() (float32, error) {
	u, err := g.src.Uniform()
	if err != nil {
		return 0, err
	}
	v, err := g.src.Uniform()
	if err != nil {
		return 0, err
	}

	randu := float64(u) * pinkScale
	randv := float64(v)*pinkScale*2 - pinkScale

	for i, threshold := range pinkThresholds {
		if randu < threshold {
			g.accumulator -= g.contributions[i]
			g.contributions[i] = randv * pinkGains[i]
			g.accumulator += g.contributions[i]
			break
		}
	}

	return float32(int64(g.accumulator) >> pinkShift), nil
}

// Contributions returns a copy of the per band contributions
func (g *ColoredNoiseGenerator) Contributions() [pinkBands]float64 {
	return g.contributions
}

// Accumulator returns the running sum of all band contributions
func (g *ColoredNoiseGenerator) Accumulator() float64 {
	return g.accumulator
}
