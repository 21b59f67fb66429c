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
	"sync"

	"github.com/loqalabs/loqa-noise-go/internal/synth"
)

// Handle mediates exclusive access to one Processor between a control owner
// and the real-time renderer. The renderer only ever calls TryAcquire; the
// control side may block in Acquire.
type Handle struct {
	mu        sync.Mutex
	processor *synth.Processor
}

// NewHandle wraps p. The handle is created once per stream and passed to the
// output callback; its lifetime is the stream's lifetime.
func NewHandle(p *synth.Processor) *Handle {
	return &Handle{processor: p}
}

// Guard is proof of exclusive access. It must be released exactly once.
type Guard struct {
	h *Handle
}

// TryAcquire attempts to take exclusive access without waiting.
// ok is false when another owner holds the processor.
func (h *Handle) TryAcquire() (g Guard, ok bool) {
	if !h.mu.TryLock() {
		return Guard{}, false
	}
	return Guard{h: h}, true
}

// Acquire blocks until exclusive access is granted. Never call it from the
// audio callback.
func (h *Handle) Acquire() Guard {
	h.mu.Lock()
	return Guard{h: h}
}

// Replace swaps the processor under exclusive access and returns the old one
func (h *Handle) Replace(p *synth.Processor) *synth.Processor {
	g := h.Acquire()
	defer g.Release()

	old := h.processor
	h.processor = p
	return old
}

// Processor returns the guarded processor
func (g Guard) Processor() *synth.Processor {
	return g.h.processor
}

// Release gives up exclusive access
func (g Guard) Release() {
	g.h.mu.Unlock()
}
