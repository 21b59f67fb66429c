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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/loqalabs/loqa-noise-go/internal/audio"
	"github.com/loqalabs/loqa-noise-go/internal/config"
	"github.com/loqalabs/loqa-noise-go/internal/nats"
	"github.com/loqalabs/loqa-noise-go/internal/playback"
	"github.com/loqalabs/loqa-noise-go/internal/synth"
)

// errQuit ends the service from the keyboard
var errQuit = errors.New("quit requested")

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Command line flags
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }() // Sync fails on terminals, nothing to do about it

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdin); err != nil {
		logger.Error("❌ Noise service failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, stdin *os.File) error {
	logger.Info("🚀 Starting Loqa Noise Service",
		zap.String("backend", cfg.Backend),
		zap.Stringer("algorithm", cfg.Algorithm),
		zap.Int("sample_rate", cfg.SampleRate),
		zap.Int("channels", cfg.Channels),
		zap.Stringer("format", cfg.Format))

	backend, err := audio.NewBackend(cfg.Backend)
	if err != nil {
		return err
	}
	if err := backend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer func() {
		if err := backend.Terminate(); err != nil {
			logger.Warn("⚠️ Failed to terminate audio backend", zap.Error(err))
		}
	}()

	manager := playback.NewManager(backend, cfg.StreamParams(), logger)
	defer manager.StopAll()

	streamID, err := manager.Start(cfg.ProcessorConfig())
	if err != nil {
		return err
	}

	parent := ctx
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Watch(gctx, cfg.StatsInterval)
	})

	if cfg.NATSURL != "" {
		subscriber, err := nats.NewControlSubscriber(cfg.NATSURL, controlOptions(cfg), manager, logger)
		if err != nil {
			cancel(err)
			_ = g.Wait()
			return fmt.Errorf("failed to initialize NATS control subscriber: %w", err)
		}
		defer subscriber.Close()
		if err := subscriber.Start(); err != nil {
			cancel(err)
			_ = g.Wait()
			return fmt.Errorf("failed to start NATS control subscriber: %w", err)
		}
	} else {
		// Without remote control nothing can restart a failed stream
		g.Go(func() error {
			return superviseStream(gctx, manager, streamID, cfg.StatsInterval)
		})
	}

	interactive := stdin != nil && term.IsTerminal(int(stdin.Fd()))
	if interactive {
		fd := int(stdin.Fd())
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			logger.Warn("⚠️ Keyboard control unavailable", zap.Error(err))
		} else {
			defer func() { _ = term.Restore(fd, oldState) }() // Best effort, the process is exiting
			keys := newKeyHandler(manager, streamID, cfg.ProcessorConfig(), logger)
			// Not in the group: a blocked stdin read cannot be interrupted
			go func() {
				if err := readKeys(stdin, keys.handle); err != nil {
					cancel(err)
				}
			}()
		}
	}

	printBanner(cfg, streamID, interactive)

	err = g.Wait()
	// A keyboard failure cancels ctx without a parent signal
	if err == nil && parent.Err() == nil && ctx.Err() != nil {
		if cause := context.Cause(ctx); !errors.Is(cause, errQuit) {
			err = cause
		}
	}

	logger.Info("🛑 Shutting down noise service...")
	return err
}

func controlOptions(cfg config.Config) nats.ControlOptions {
	return nats.ControlOptions{
		DeviceID:  cfg.DeviceID,
		Defaults:  cfg.ProcessorConfig(),
		RateLimit: rate.Limit(cfg.CommandRate),
		Burst:     cfg.CommandBurst,
	}
}

// superviseStream returns an error once the stream is gone
func superviseStream(ctx context.Context, manager *playback.Manager, id string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !containsID(manager.IDs(), id) {
				return fmt.Errorf("noise stream %s stopped", id)
			}
		}
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// keyHandler maps keys 1-5 to algorithms and q to quit
type keyHandler struct {
	manager  *playback.Manager
	streamID string
	base     synth.Config
	logger   *zap.Logger
}

func newKeyHandler(manager *playback.Manager, streamID string, base synth.Config, logger *zap.Logger) *keyHandler {
	return &keyHandler{manager: manager, streamID: streamID, base: base, logger: logger}
}

// handle returns errQuit when the key asks to stop
func (k *keyHandler) handle(key byte) error {
	switch {
	case key == 'q' || key == 'Q' || key == 3: // 3 is Ctrl+C in raw mode
		return errQuit
	case key >= '1' && key <= '5':
		algorithm := synth.Algorithms()[key-'1']
		cfg := k.base
		cfg.Algorithm = algorithm
		if err := k.manager.Reconfigure(k.streamID, cfg); err != nil {
			k.logger.Warn("⚠️ Failed to switch algorithm",
				zap.Stringer("algorithm", algorithm),
				zap.Error(err))
		}
	}
	return nil
}

// readKeys feeds every byte of r to handle until handle or r fails
func readKeys(r io.Reader, handle func(byte) error) error {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if herr := handle(buf[0]); herr != nil {
				return herr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read keyboard input: %w", err)
		}
	}
}

func printBanner(cfg config.Config, streamID string, interactive bool) {
	// Raw mode needs explicit carriage returns
	nl := "\n"
	if interactive {
		nl = "\r\n"
	}
	fmt.Print(nl)
	fmt.Print("🔊 Loqa Noise - Audio Output Active!" + nl)
	fmt.Print("====================================" + nl)
	fmt.Print(nl)
	fmt.Printf("🎛️  Algorithm: %s%s", cfg.Algorithm, nl)
	fmt.Printf("🆔 Stream: %s%s", streamID, nl)
	if cfg.NATSURL != "" {
		fmt.Printf("📡 Remote control: %s%s", nats.DeviceSubject(cfg.DeviceID), nl)
	}
	fmt.Print(nl)
	if interactive {
		fmt.Print("💡 Keys: 1 white, 2 element, 3 pink, 4 periodic, 5 sine" + nl)
		fmt.Print("⏹️  Press q to stop" + nl)
	} else {
		fmt.Print("⏹️  Press Ctrl+C to stop" + nl)
	}
	fmt.Print(nl)
}
