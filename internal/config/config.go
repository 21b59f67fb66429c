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

package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/loqalabs/loqa-noise-go/internal/audio"
	"github.com/loqalabs/loqa-noise-go/internal/realtime"
	"github.com/loqalabs/loqa-noise-go/internal/synth"
)

// EnvPrefix prefixes every environment variable Load reads
const EnvPrefix = "NOISE_"

// Config holds everything the noise service needs to open a stream
type Config struct {
	Backend         string
	Algorithm       synth.Algorithm
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	Format          realtime.SampleFormat
	Frequency       float64
	Occurrence      int
	Min             float32
	Max             float32

	// NATSURL enables remote control when set
	NATSURL      string
	DeviceID     string
	CommandRate  float64 // control commands per second
	CommandBurst int

	StatsInterval time.Duration
	LogLevel      string
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Backend:         "portaudio",
		Algorithm:       synth.AlgorithmWhite,
		SampleRate:      44100,
		Channels:        2,
		FramesPerBuffer: 512,
		Format:          realtime.FormatFloat32,
		Frequency:       440,
		Occurrence:      1,
		Min:             -1,
		Max:             1,
		DeviceID:        "loqa-noise-001",
		CommandRate:     5,
		CommandBurst:    5,
		StatsInterval:   5 * time.Second,
		LogLevel:        "info",
	}
}

// Load returns the defaults overlaid with envFile (if it exists) and then
// NOISE_* environment variables. Variables already set in the environment
// win over the file.
func Load(envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	get := func(name string, parse func(string) error) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := parse(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		}
	}

	get("BACKEND", func(v string) error { c.Backend = strings.ToLower(v); return nil })
	get("ALGORITHM", func(v string) error { return c.Algorithm.UnmarshalText([]byte(v)) })
	get("SAMPLE_RATE", intVar(&c.SampleRate))
	get("CHANNELS", intVar(&c.Channels))
	get("FRAMES_PER_BUFFER", intVar(&c.FramesPerBuffer))
	get("FORMAT", func(v string) error { return c.Format.UnmarshalText([]byte(v)) })
	get("FREQUENCY", func(v string) (err error) { c.Frequency, err = strconv.ParseFloat(v, 64); return })
	get("OCCURRENCE", intVar(&c.Occurrence))
	get("MIN", float32Var(&c.Min))
	get("MAX", float32Var(&c.Max))
	get("NATS_URL", func(v string) error { c.NATSURL = v; return nil })
	get("DEVICE_ID", func(v string) error { c.DeviceID = v; return nil })
	get("COMMAND_RATE", func(v string) (err error) { c.CommandRate, err = strconv.ParseFloat(v, 64); return })
	get("COMMAND_BURST", intVar(&c.CommandBurst))
	get("STATS_INTERVAL", func(v string) (err error) { c.StatsInterval, err = time.ParseDuration(v); return })
	get("LOG_LEVEL", func(v string) error { c.LogLevel = strings.ToLower(v); return nil })

	return errors.Join(errs...)
}

func intVar(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func float32Var(dst *float32) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return err
		}
		*dst = float32(f)
		return nil
	}
}

// RegisterFlags binds every field to a flag on fs, using the current values
// as defaults
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Backend, "backend", c.Backend, "Audio output backend (portaudio, oto, beep, mock)")
	fs.TextVar(&c.Algorithm, "algorithm", c.Algorithm, "Noise algorithm (white, element, pink, periodic, sine)")
	fs.IntVar(&c.SampleRate, "rate", c.SampleRate, "Output sample rate in Hz")
	fs.IntVar(&c.Channels, "channels", c.Channels, "Output channel count")
	fs.IntVar(&c.FramesPerBuffer, "frames", c.FramesPerBuffer, "Frames per output buffer")
	fs.TextVar(&c.Format, "format", c.Format, "Sample format (f32, i16, u16)")
	fs.Float64Var(&c.Frequency, "freq", c.Frequency, "Sine frequency in Hz")
	fs.IntVar(&c.Occurrence, "occurrence", c.Occurrence, "Periodic noise: draw a new value every N ticks")
	fs.Func("min", fmt.Sprintf("Periodic noise range minimum (default %g)", c.Min), float32Var(&c.Min))
	fs.Func("max", fmt.Sprintf("Periodic noise range maximum (default %g)", c.Max), float32Var(&c.Max))
	fs.StringVar(&c.NATSURL, "nats", c.NATSURL, "NATS server URL for remote control (disabled when empty)")
	fs.StringVar(&c.DeviceID, "id", c.DeviceID, "Device identifier for NATS control subjects")
	fs.DurationVar(&c.StatsInterval, "stats", c.StatsInterval, "Interval between fault checks and stats logs")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
}

// Validate reports every invalid field
func (c Config) Validate() error {
	var errs []error

	if _, err := audio.NewBackend(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Algorithm.MarshalText(); err != nil {
		errs = append(errs, err)
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", synth.ErrInvalidSampleRate, c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", realtime.ErrInvalidChannels, c.Channels))
	}
	if c.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("frames per buffer must be positive: got %d", c.FramesPerBuffer))
	}
	if c.Algorithm == synth.AlgorithmSine && c.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("frequency must be positive: got %g", c.Frequency))
	}
	if c.Algorithm == synth.AlgorithmPeriodic && c.Occurrence < 1 {
		errs = append(errs, fmt.Errorf("%w: got %d", synth.ErrInvalidOccurrence, c.Occurrence))
	}
	if c.NATSURL != "" && c.DeviceID == "" {
		errs = append(errs, errors.New("device ID is required when NATS is enabled"))
	}
	if c.CommandRate <= 0 || c.CommandBurst < 1 {
		errs = append(errs, fmt.Errorf("command rate and burst must be positive: got %g/%d", c.CommandRate, c.CommandBurst))
	}
	if c.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("stats interval must be positive: got %s", c.StatsInterval))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ProcessorConfig returns the synth configuration for a new stream
func (c Config) ProcessorConfig() synth.Config {
	return synth.Config{
		SampleRate: c.SampleRate,
		Algorithm:  c.Algorithm,
		Frequency:  c.Frequency,
		Occurrence: c.Occurrence,
		Min:        c.Min,
		Max:        c.Max,
	}
}

// StreamParams returns the output stream parameters
func (c Config) StreamParams() audio.StreamParams {
	return audio.StreamParams{
		SampleRate: float64(c.SampleRate),
		Channels:   c.Channels,
		BufferSize: c.FramesPerBuffer,
		Format:     c.Format,
	}
}
