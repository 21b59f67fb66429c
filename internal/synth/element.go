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

// NoiseElement holds one second of pre-drawn random values and releases one
// of them every occurrence-th tick. All other ticks are silent, so the
// occurrence controls how dense the resulting noise is.
type NoiseElement struct {
	occurrence int
	buffer     []float32
	cursor     int
}

// NewNoiseElement draws sampleRate values from src and scales them by the
// width of [min, max]. The scaled values are centered on zero and span
// [-(max-min)/2, (max-min)/2]; they are not offset to min.
func NewNoiseElement(occurrence int, min, max float32, sampleRate int, src RandomSource) (*NoiseElement, error) {
	if err := checkRange(min, max); err != nil {
		return nil, err
	}
	if occurrence < 1 {
		return nil, ErrInvalidOccurrence
	}
	if sampleRate < 1 {
		return nil, ErrInvalidSampleRate
	}

	raw := make([]byte, sampleRate)
	if err := src.Fill(raw); err != nil {
		return nil, err
	}

	diff := max - min
	buffer := make([]float32, sampleRate)
	for i, b := range raw {
		buffer[i] = float32(b)/255*diff - diff/2
	}

	return &NoiseElement{
		occurrence: occurrence,
		buffer:     buffer,
	}, nil
}

// Next returns the next buffered value when tick is a multiple of the
// occurrence and 0 otherwise. The cursor moves before it is read.
func (e *NoiseElement) Next(tick int) float32 {
	if tick%e.occurrence != 0 {
		return 0
	}
	e.cursor = (e.cursor + 1) % len(e.buffer)
	return e.buffer[e.cursor]
}

// Len returns the number of buffered values
func (e *NoiseElement) Len() int {
	return len(e.buffer)
}

// Occurrence returns the tick stride between draws
func (e *NoiseElement) Occurrence() int {
	return e.occurrence
}
