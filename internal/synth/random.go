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
	"crypto/rand"
	"io"
)

// uniformScale is 2^24, the number of distinct values three bytes can encode
const uniformScale = 1 << 24

// RandomSource produces uniformly distributed randomness for the generators.
// A source is owned by a single Processor and is not safe for concurrent use.
type RandomSource interface {
	// Uniform returns a value uniformly distributed in [0, 1)
	Uniform() (float32, error)

	// Fill overwrites p with random bytes
	Fill(p []byte) error
}

// ReaderSource draws randomness from an io.Reader. The default reader is the
// operating system's entropy source.
type ReaderSource struct {
	r       io.Reader
	scratch [3]byte
}

// NewEntropySource returns a source backed by crypto/rand
func NewEntropySource() *ReaderSource {
	return NewReaderSource(rand.Reader)
}

// NewReaderSource returns a source that reads its bytes from r.
// Any read failure, including a short read, is an EntropyUnavailableError.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

// Uniform combines three independent bytes into a 24-bit integer and
// normalizes it into [0, 1).
func (s *ReaderSource) Uniform() (float32, error) {
	if err := s.Fill(s.scratch[:]); err != nil {
		return 0, err
	}
	n := uint32(s.scratch[0])<<16 | uint32(s.scratch[1])<<8 | uint32(s.scratch[2])
	return float32(float64(n) / uniformScale), nil
}

// Fill reads len(p) bytes
func (s *ReaderSource) Fill(p []byte) error {
	if _, err := io.ReadFull(s.r, p); err != nil {
		return &EntropyUnavailableError{Err: err}
	}
	return nil
}
