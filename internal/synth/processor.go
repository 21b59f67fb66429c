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
	"fmt"
	"strings"
)

// Algorithm selects which pull method a Processor serves
type Algorithm int

const (
	// AlgorithmWhite draws every sample directly from the random source
	AlgorithmWhite Algorithm = iota
	// AlgorithmElement plays a NoiseElement that draws on every tick
	AlgorithmElement
	// AlgorithmPink plays the band accumulator pink noise
	AlgorithmPink
	// AlgorithmPeriodic plays a NoiseElement with a configurable occurrence and range
	AlgorithmPeriodic
	// AlgorithmSine plays a sine tone
	AlgorithmSine
)

var algorithmNames = map[Algorithm]string{
	AlgorithmWhite:    "white",
	AlgorithmElement:  "element",
	AlgorithmPink:     "pink",
	AlgorithmPeriodic: "periodic",
	AlgorithmSine:     "sine",
}

// Algorithms lists every algorithm in selector order
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmWhite, AlgorithmElement, AlgorithmPink, AlgorithmPeriodic, AlgorithmSine}
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler
func (a Algorithm) MarshalText() ([]byte, error) {
	if _, ok := algorithmNames[a]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAlgorithm maps a name such as "pink" to its Algorithm
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range algorithmNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// Config describes a Processor. Occurrence, Min and Max are only used by
// AlgorithmPeriodic and Frequency only by AlgorithmSine.
type Config struct {
	SampleRate int
	Algorithm  Algorithm
	Frequency  float64
	Occurrence int
	Min        float32
	Max        float32
}

// DefaultConfig returns a white noise configuration at the given rate
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate: sampleRate,
		Algorithm:  AlgorithmWhite,
		Frequency:  440,
		Occurrence: 1,
		Min:        -1,
		Max:        1,
	}
}

// Processor is the synthesis engine. It owns a sample clock and the state of
// the generator its algorithm needs. It does no locking of its own: callers
// must hold exclusive access, see realtime.Handle.
type Processor struct {
	sampleClock int
	sampleRate  int
	algorithm   Algorithm
	src         RandomSource

	element *NoiseElement
	pink    *ColoredNoiseGenerator
	tone    *ToneOscillator
}

// NewProcessor builds a processor for cfg. All allocation happens here; the
// pull methods allocate nothing. A construction error leaves nothing behind.
func NewProcessor(cfg Config, src RandomSource) (*Processor, error) {
	if cfg.SampleRate < 1 {
		return nil, ErrInvalidSampleRate
	}

	p := &Processor{
		sampleRate: cfg.SampleRate,
		algorithm:  cfg.Algorithm,
		src:        src,
	}

	var err error
	switch cfg.Algorithm {
	case AlgorithmWhite:
	case AlgorithmElement:
		p.element, err = NewNoiseElement(1, -1, 1, cfg.SampleRate, src)
	case AlgorithmPink:
		p.pink = NewColoredNoiseGenerator(src)
	case AlgorithmPeriodic:
		p.element, err = NewNoiseElement(cfg.Occurrence, cfg.Min, cfg.Max, cfg.SampleRate, src)
	case AlgorithmSine:
		p.tone, err = NewToneOscillator(cfg.Frequency, cfg.SampleRate)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(cfg.Algorithm))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build %s processor: %w", cfg.Algorithm, err)
	}

	return p, nil
}

// Algorithm returns the selected algorithm
func (p *Processor) Algorithm() Algorithm {
	return p.algorithm
}

// SampleRate returns the rate the processor was built for
func (p *Processor) SampleRate() int {
	return p.sampleRate
}

// SampleClock returns the current sample clock
func (p *Processor) SampleClock() int {
	return p.sampleClock
}

// Next pulls one sample from the selected algorithm
func (p *Processor) Next() (float32, error) {
	switch p.algorithm {
	case AlgorithmElement, AlgorithmPeriodic:
		return p.ElementNoise(), nil
	case AlgorithmPink:
		return p.PinkNoise()
	case AlgorithmSine:
		return p.Sine(), nil
	default:
		return p.WhiteNoise()
	}
}

// WhiteNoise maps a uniform draw onto [-1, 1)
func (p *Processor) WhiteNoise() (float32, error) {
	p.advanceClock()
	u, err := p.src.Uniform()
	if err != nil {
		return 0, err
	}
	return u*2 - 1, nil
}

// ElementNoise advances the sample clock and reads the noise element at the new tick
func (p *Processor) ElementNoise() float32 {
	if p.element == nil {
		return 0
	}
	p.advanceClock()
	return p.element.Next(p.sampleClock)
}

// PinkNoise normalizes the 16-bit range output of the band generator to [-1, 1]
func (p *Processor) PinkNoise() (float32, error) {
	if p.pink == nil {
		return 0, nil
	}
	p.advanceClock()
	v, err := p.pink.Next()
	if err != nil {
		return 0, err
	}
	return Clamp(v / pinkScale), nil
}

// Sine advances the sample clock and the oscillator together
func (p *Processor) Sine() float32 {
	if p.tone == nil {
		return 0
	}
	p.advanceClock()
	return p.tone.Next()
}

func (p *Processor) advanceClock() {
	p.sampleClock = (p.sampleClock + 1) % p.sampleRate
}
