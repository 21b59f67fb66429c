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

import "math"

// ToneOscillator is a sine generator driven by its own sample clock
type ToneOscillator struct {
	clock      int
	sampleRate int
	frequency  float64
}

// NewToneOscillator returns an oscillator with its clock at zero
func NewToneOscillator(frequency float64, sampleRate int) (*ToneOscillator, error) {
	if sampleRate < 1 {
		return nil, ErrInvalidSampleRate
	}
	return &ToneOscillator{sampleRate: sampleRate, frequency: frequency}, nil
}

// Next advances the clock by one, wrapping at the sample rate, and returns
// sin(2π · clock · frequency / sampleRate).
func (o *ToneOscillator) Next() float32 {
	o.clock = (o.clock + 1) % o.sampleRate
	return float32(math.Sin(2 * math.Pi * float64(o.clock) * o.frequency / float64(o.sampleRate)))
}

// Clock returns the current phase clock
func (o *ToneOscillator) Clock() int {
	return o.clock
}

// Frequency returns the tone frequency in Hz
func (o *ToneOscillator) Frequency() float64 {
	return o.frequency
}

// Clamp limits x to the normalized audio range [-1, 1]
func Clamp(x float32) float32 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
