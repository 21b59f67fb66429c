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
	"errors"
	"fmt"
)

var (
	// ErrInvalidOccurrence is returned when a noise element is asked to draw less than once per tick
	ErrInvalidOccurrence = errors.New("occurrence must be at least 1")

	// ErrInvalidSampleRate is returned for a zero or negative sample rate
	ErrInvalidSampleRate = errors.New("sample rate must be positive")

	// ErrUnknownAlgorithm is returned when an algorithm name or value is not recognised
	ErrUnknownAlgorithm = errors.New("unknown synthesis algorithm")
)

// RangeErrorKind tells apart the two ways a noise range can be invalid
type RangeErrorKind int

const (
	// RangeEqual means min and max are the same value
	RangeEqual RangeErrorKind = iota + 1
	// RangeInverted means max is below min
	RangeInverted
)

// InvalidRangeError is returned when a NoiseElement is constructed with
// equal or inverted bounds
type InvalidRangeError struct {
	Min  float32
	Max  float32
	Kind RangeErrorKind
}

func (e *InvalidRangeError) Error() string {
	if e.Kind == RangeEqual {
		return fmt.Sprintf("max and min must be different (min=%g, max=%g)", e.Min, e.Max)
	}
	return fmt.Sprintf("max must be greater than min (min=%g, max=%g)", e.Min, e.Max)
}

// checkRange validates noise bounds. NaN bounds are reported as inverted.
func checkRange(min, max float32) error {
	switch {
	case max == min:
		return &InvalidRangeError{Min: min, Max: max, Kind: RangeEqual}
	case !(max > min):
		return &InvalidRangeError{Min: min, Max: max, Kind: RangeInverted}
	}
	return nil
}

// EntropyUnavailableError is returned when the random source cannot be read.
// No sample can be produced honestly after this, so callers must stop rather
// than substitute a value.
type EntropyUnavailableError struct {
	Err error
}

func (e *EntropyUnavailableError) Error() string {
	return fmt.Sprintf("entropy source unavailable: %v", e.Err)
}

func (e *EntropyUnavailableError) Unwrap() error {
	return e.Err
}
