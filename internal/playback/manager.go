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

package playback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nuid"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-noise-go/internal/audio"
	"github.com/loqalabs/loqa-noise-go/internal/realtime"
	"github.com/loqalabs/loqa-noise-go/internal/synth"
)

// ErrStreamNotFound is returned for an unknown stream ID
var ErrStreamNotFound = errors.New("stream not found")

// SourceFactory returns a fresh random source for each new processor
type SourceFactory func() synth.RandomSource

// StreamStatus is a snapshot of one running stream
type StreamStatus struct {
	ID        string `json:"id"`
	Algorithm string `json:"algorithm"`
	Active    bool   `json:"active"`
	Rendered  uint64 `json:"rendered"`
	Skipped   uint64 `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

type activeStream struct {
	id       string
	cfg      synth.Config
	renderer *realtime.Renderer
	stream   audio.StreamInterface
}

// Manager is the control owner of every stream. It builds processors, hands
// them to the backend behind a realtime.Handle and reconfigures or stops
// them on request.
type Manager struct {
	mu        sync.Mutex
	backend   audio.AudioBackend
	params    audio.StreamParams
	logger    *zap.Logger
	newSource SourceFactory
	streams   map[string]*activeStream
}

// Option configures a Manager
type Option func(*Manager)

// WithSourceFactory replaces the default crypto/rand backed source
func WithSourceFactory(f SourceFactory) Option {
	return func(m *Manager) {
		m.newSource = f
	}
}

// NewManager creates a manager that opens every stream with params on an
// already initialized backend
func NewManager(backend audio.AudioBackend, params audio.StreamParams, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		params:  params,
		logger:  logger,
		newSource: func() synth.RandomSource {
			return synth.NewEntropySource()
		},
		streams: make(map[string]*activeStream),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) buildProcessor(cfg synth.Config) (*synth.Processor, synth.Config, error) {
	cfg.SampleRate = int(m.params.SampleRate)
	proc, err := synth.NewProcessor(cfg, m.newSource())
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to build processor: %w", err)
	}
	return proc, cfg, nil
}

// Start opens a new output stream playing cfg and returns its ID. The
// sample rate always comes from the stream parameters.
func (m *Manager) Start(cfg synth.Config) (string, error) {
	proc, cfg, err := m.buildProcessor(cfg)
	if err != nil {
		return "", err
	}

	renderer, err := realtime.NewRenderer(realtime.NewHandle(proc), m.params.Channels)
	if err != nil {
		return "", err
	}

	stream, err := m.backend.CreateOutputStream(m.params, renderer)
	if err != nil {
		return "", fmt.Errorf("failed to create output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close() // Ignore errors while unwinding a failed start
		return "", fmt.Errorf("failed to start output stream: %w", err)
	}

	id := nuid.Next()
	m.mu.Lock()
	m.streams[id] = &activeStream{id: id, cfg: cfg, renderer: renderer, stream: stream}
	m.mu.Unlock()

	m.logger.Info("🔊 Started noise stream",
		zap.String("stream_id", id),
		zap.Stringer("algorithm", cfg.Algorithm),
		zap.String("backend", m.backend.Name()))
	return id, nil
}

// Stop stops and closes a stream
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	as, ok := m.streams[id]
	if ok {
		delete(m.streams, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, id)
	}
	return m.closeStream(as)
}

func (m *Manager) closeStream(as *activeStream) error {
	stopErr := as.stream.Stop()
	closeErr := as.stream.Close()
	if err := errors.Join(stopErr, closeErr); err != nil {
		m.logger.Warn("⚠️ Failed to close stream cleanly", zap.String("stream_id", as.id), zap.Error(err))
		return err
	}
	m.logger.Info("🔇 Stopped noise stream", zap.String("stream_id", as.id))
	return nil
}

// Reconfigure swaps in a processor built from cfg. The new processor is
// built before the handle is taken, so the renderer only misses the buffers
// that overlap the swap itself.
func (m *Manager) Reconfigure(id string, cfg synth.Config) error {
	m.mu.Lock()
	as, ok := m.streams[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, id)
	}

	proc, cfg, err := m.buildProcessor(cfg)
	if err != nil {
		return err
	}
	as.renderer.Handle().Replace(proc)

	m.mu.Lock()
	as.cfg = cfg
	m.mu.Unlock()

	m.logger.Info("🎛️ Reconfigured noise stream",
		zap.String("stream_id", id),
		zap.Stringer("algorithm", cfg.Algorithm))
	return nil
}

// Status returns a snapshot of every stream ordered by ID
func (m *Manager) Status() []StreamStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]StreamStatus, 0, len(m.streams))
	for _, as := range m.streams {
		stats := as.renderer.Stats()
		status := StreamStatus{
			ID:        as.id,
			Algorithm: as.cfg.Algorithm.String(),
			Active:    as.stream.IsActive(),
			Rendered:  stats.Rendered,
			Skipped:   stats.Skipped,
		}
		if err := as.renderer.Err(); err != nil {
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// IDs returns the IDs of every running stream
func (m *Manager) IDs() []string {
	statuses := m.Status()
	ids := make([]string, len(statuses))
	for i, s := range statuses {
		ids[i] = s.ID
	}
	return ids
}

// StopAll stops every stream
func (m *Manager) StopAll() {
	m.mu.Lock()
	streams := m.streams
	m.streams = make(map[string]*activeStream)
	m.mu.Unlock()

	for _, as := range streams {
		_ = m.closeStream(as) // Already logged
	}
}

// CheckFaults stops every stream whose renderer has hit a fatal error and
// returns their IDs
func (m *Manager) CheckFaults() []string {
	m.mu.Lock()
	var faulted []*activeStream
	for id, as := range m.streams {
		if as.renderer.Err() != nil {
			faulted = append(faulted, as)
			delete(m.streams, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(faulted))
	for _, as := range faulted {
		m.logger.Error("❌ Noise stream failed, stopping it",
			zap.String("stream_id", as.id),
			zap.Error(as.renderer.Err()))
		_ = m.closeStream(as) // Already logged
		ids = append(ids, as.id)
	}
	return ids
}

// Watch checks for faults and logs render stats every interval until ctx is done
func (m *Manager) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckFaults()
			for _, s := range m.Status() {
				m.logger.Debug("📊 Stream stats",
					zap.String("stream_id", s.ID),
					zap.String("algorithm", s.Algorithm),
					zap.Uint64("rendered", s.Rendered),
					zap.Uint64("skipped", s.Skipped))
			}
		}
	}
}
