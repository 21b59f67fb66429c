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
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-noise-go/internal/realtime"
)

var (
	// ErrUnsupportedFormat is returned when a backend cannot play the requested sample format
	ErrUnsupportedFormat = errors.New("sample format not supported by backend")

	// ErrUnknownBackend is returned by NewBackend for an unrecognised name
	ErrUnknownBackend = errors.New("unknown audio backend")
)

// DeviceUnavailableError means no output device could be opened. It tells a
// caller that no engine ran at all, as opposed to an engine that glitched.
type DeviceUnavailableError struct {
	Backend string
	Err     error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("%s: no output device available: %v", e.Backend, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error {
	return e.Err
}

// AudioBackend provides an abstraction layer for audio output
// This enables dependency injection and makes testing hardware-independent
type AudioBackend interface {
	// Name identifies the backend in logs and configuration
	Name() string

	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// CreateOutputStream opens a pull-based output stream whose callback
	// fills every buffer through renderer
	CreateOutputStream(params StreamParams, renderer *realtime.Renderer) (StreamInterface, error)
}

// StreamInterface abstracts audio stream operations
type StreamInterface interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream
	Stop() error

	// Close the audio stream and release resources
	Close() error

	// IsActive returns true if the stream is currently active
	IsActive() bool
}

// StreamParams holds parameters for stream creation
type StreamParams struct {
	SampleRate float64
	Channels   int
	BufferSize int
	Format     realtime.SampleFormat
}

// Validate checks the parameters against the renderer that will fill the stream
func (p StreamParams) Validate(renderer *realtime.Renderer) error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %g", p.SampleRate)
	}
	if p.Channels < 1 {
		return fmt.Errorf("invalid channel count: %d", p.Channels)
	}
	if p.BufferSize < 1 {
		return fmt.Errorf("invalid buffer size: %d", p.BufferSize)
	}
	if renderer == nil {
		return errors.New("renderer is nil")
	}
	if renderer.Channels() != p.Channels {
		return fmt.Errorf("renderer has %d channels, stream needs %d", renderer.Channels(), p.Channels)
	}
	return nil
}

// NewBackend returns the backend registered under name
func NewBackend(name string) (AudioBackend, error) {
	switch strings.ToLower(name) {
	case "portaudio", "":
		return NewPortAudioBackend(), nil
	case "oto":
		return NewOtoBackend(), nil
	case "beep":
		return NewBeepBackend(), nil
	case "mock":
		return NewMockAudioBackend(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
