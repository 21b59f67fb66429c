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

package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loqalabs/loqa-noise-go/internal/playback"
	"github.com/loqalabs/loqa-noise-go/internal/synth"
)

// Control commands
const (
	CommandStart     = "start"
	CommandStop      = "stop"
	CommandConfigure = "configure"
	CommandStatus    = "status"
)

// BroadcastSubject reaches every device listening for control messages
const BroadcastSubject = "noise.broadcast.control"

var (
	// ErrUnknownCommand is returned for a command outside the four above
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingStreamID is returned when stop or configure names no stream
	ErrMissingStreamID = errors.New("stream_id is required")
	// ErrRateLimited is returned when commands arrive faster than allowed
	ErrRateLimited = errors.New("rate limited")
)

// ControlMessage is a command sent to a device. Fields left out fall back to
// the subscriber's defaults.
type ControlMessage struct {
	Command    string   `json:"command"`
	StreamID   string   `json:"stream_id,omitempty"`
	Algorithm  string   `json:"algorithm,omitempty"`
	Frequency  float64  `json:"frequency,omitempty"`
	Occurrence int      `json:"occurrence,omitempty"`
	Min        *float32 `json:"min,omitempty"`
	Max        *float32 `json:"max,omitempty"`
}

// ControlReply is published to the message's reply subject
type ControlReply struct {
	OK       bool                    `json:"ok"`
	DeviceID string                  `json:"device_id"`
	StreamID string                  `json:"stream_id,omitempty"`
	Streams  []playback.StreamStatus `json:"streams,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Controller is the set of host entry points a control message can reach
type Controller interface {
	Start(cfg synth.Config) (string, error)
	Stop(id string) error
	Reconfigure(id string, cfg synth.Config) error
	Status() []playback.StreamStatus
}

// NoiseNATSConnection interface for dependency injection
type NoiseNATSConnection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// NoiseNATSConnectionAdapter adapts *nats.Conn to NoiseNATSConnection interface
type NoiseNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewNoiseNATSConnectionAdapter(conn *nats.Conn) *NoiseNATSConnectionAdapter {
	return &NoiseNATSConnectionAdapter{conn: conn}
}

func (a *NoiseNATSConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *NoiseNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *NoiseNATSConnectionAdapter) Close() {
	a.conn.Close()
}

// ControlOptions configures a ControlSubscriber
type ControlOptions struct {
	DeviceID string
	// Defaults fills in whatever a start or configure message leaves out
	Defaults synth.Config
	// RateLimit and Burst bound how often commands are accepted. Every
	// configure briefly silences the stream it targets.
	RateLimit rate.Limit
	Burst     int
}

// ControlSubscriber maps control messages onto a Controller
type ControlSubscriber struct {
	natsConn   NoiseNATSConnection
	opts       ControlOptions
	controller Controller
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewControlSubscriber connects to NATS and returns a subscriber for opts.DeviceID
func NewControlSubscriber(natsURL string, opts ControlOptions, controller Controller, logger *zap.Logger) (*ControlSubscriber, error) {
	// Connect to NATS with retry
	var nc *nats.Conn
	var err error

	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(natsURL, nats.Name("loqa-noise-"+opts.DeviceID))
		if err == nil {
			break
		}
		logger.Warn("⚠️ Failed to connect to NATS",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", 5),
			zap.Error(err))
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after 5 attempts: %w", err)
	}

	logger.Info("✅ Connected to NATS", zap.String("url", natsURL))

	return NewControlSubscriberWithConnection(NewNoiseNATSConnectionAdapter(nc), opts, controller, logger), nil
}

// NewControlSubscriberWithConnection creates a subscriber on an existing connection (for testing)
func NewControlSubscriberWithConnection(natsConn NoiseNATSConnection, opts ControlOptions, controller Controller, logger *zap.Logger) *ControlSubscriber {
	if opts.RateLimit == 0 {
		opts.RateLimit = rate.Inf
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	return &ControlSubscriber{
		natsConn:   natsConn,
		opts:       opts,
		controller: controller,
		limiter:    rate.NewLimiter(opts.RateLimit, opts.Burst),
		logger:     logger,
	}
}

// DeviceSubject returns the control subject for one device
func DeviceSubject(deviceID string) string {
	return fmt.Sprintf("noise.%s.control", deviceID)
}

// Start begins listening for control messages
func (cs *ControlSubscriber) Start() error {
	deviceTopic := DeviceSubject(cs.opts.DeviceID)
	if _, err := cs.natsConn.Subscribe(deviceTopic, cs.handleControlMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", deviceTopic, err)
	}

	if _, err := cs.natsConn.Subscribe(BroadcastSubject, cs.handleControlMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", BroadcastSubject, err)
	}

	cs.logger.Info("🎧 Subscribed to control topics",
		zap.String("device_topic", deviceTopic),
		zap.String("broadcast_topic", BroadcastSubject))
	return nil
}

func (cs *ControlSubscriber) handleControlMessage(msg *nats.Msg) {
	reply := cs.Handle(msg.Data)
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		cs.logger.Error("❌ Failed to marshal control reply", zap.Error(err))
		return
	}
	if err := cs.natsConn.Publish(msg.Reply, data); err != nil {
		cs.logger.Warn("⚠️ Failed to publish control reply",
			zap.String("subject", msg.Reply),
			zap.Error(err))
	}
}

// Handle decodes and executes one control message
func (cs *ControlSubscriber) Handle(data []byte) ControlReply {
	reply := ControlReply{DeviceID: cs.opts.DeviceID}

	if !cs.limiter.Allow() {
		cs.logger.Warn("⚠️ Dropping control message", zap.Error(ErrRateLimited))
		reply.Error = ErrRateLimited.Error()
		return reply
	}

	var cmd ControlMessage
	if err := json.Unmarshal(data, &cmd); err != nil {
		cs.logger.Error("❌ Failed to unmarshal control message", zap.Error(err))
		reply.Error = fmt.Sprintf("invalid control message: %v", err)
		return reply
	}

	cs.logger.Info("📥 Received control message",
		zap.String("command", cmd.Command),
		zap.String("stream_id", cmd.StreamID))

	streamID, err := cs.execute(cmd)
	if err != nil {
		cs.logger.Warn("⚠️ Control command failed",
			zap.String("command", cmd.Command),
			zap.Error(err))
		reply.Error = err.Error()
		return reply
	}

	reply.OK = true
	reply.StreamID = streamID
	if cmd.Command == CommandStatus {
		reply.Streams = cs.controller.Status()
	}
	return reply
}

func (cs *ControlSubscriber) execute(cmd ControlMessage) (string, error) {
	switch cmd.Command {
	case CommandStart:
		cfg, err := cs.processorConfig(cmd)
		if err != nil {
			return "", err
		}
		return cs.controller.Start(cfg)
	case CommandStop:
		if cmd.StreamID == "" {
			return "", ErrMissingStreamID
		}
		return cmd.StreamID, cs.controller.Stop(cmd.StreamID)
	case CommandConfigure:
		if cmd.StreamID == "" {
			return "", ErrMissingStreamID
		}
		cfg, err := cs.processorConfig(cmd)
		if err != nil {
			return "", err
		}
		return cmd.StreamID, cs.controller.Reconfigure(cmd.StreamID, cfg)
	case CommandStatus:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

func (cs *ControlSubscriber) processorConfig(cmd ControlMessage) (synth.Config, error) {
	cfg := cs.opts.Defaults
	if cmd.Algorithm != "" {
		algorithm, err := synth.ParseAlgorithm(cmd.Algorithm)
		if err != nil {
			return cfg, err
		}
		cfg.Algorithm = algorithm
	}
	if cmd.Frequency > 0 {
		cfg.Frequency = cmd.Frequency
	}
	if cmd.Occurrence > 0 {
		cfg.Occurrence = cmd.Occurrence
	}
	if cmd.Min != nil {
		cfg.Min = *cmd.Min
	}
	if cmd.Max != nil {
		cfg.Max = *cmd.Max
	}
	return cfg, nil
}

// Close closes the NATS connection
func (cs *ControlSubscriber) Close() {
	if cs.natsConn != nil {
		cs.natsConn.Close()
		cs.logger.Info("🔌 NATS connection closed")
	}
}
