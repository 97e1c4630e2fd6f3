/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards decode-worker events onto NATS JetStream for
// out-of-process subscribers (remote lyrics providers, a detached control
// surface). The in-process fan-out itself is internal/eventhub; this is a
// secondary, best-effort sink over it.
//
// Adapted from the teacher's NATSBus, trimmed from a bidirectional,
// multi-node distributed event bus with an in-memory fallback subscriber
// map down to a one-way publish bridge: CORE events flow host -> NATS
// only, since nothing in this engine subscribes back to a remote node's
// playback events.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/eventhub"
)

// Config configures the NATS JetStream connection.
type Config struct {
	URL           string
	Token         string
	StreamName    string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	MaxFailures   int
}

// DefaultConfig returns the bridge's default NATS configuration.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		StreamName:    "AUDIOENGINE_EVENTS",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
		MaxFailures:   5,
	}
}

// Bridge forwards eventhub.Event values onto a NATS JetStream subject,
// with a circuit breaker that disables forwarding after repeated
// failures rather than blocking the decode worker's event path.
type Bridge struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger zerolog.Logger
	nodeID string

	mu          sync.Mutex
	disabled    bool
	failCount   int
	maxFailures int
}

// NewBridge connects to NATS and ensures the event stream exists. If the
// connection fails, the Bridge starts disabled and Forward becomes a
// silent no-op rather than failing the caller.
func NewBridge(cfg Config, nodeID string, logger zerolog.Logger) *Bridge {
	logger = logger.With().Str("component", "eventbus_bridge").Logger()
	b := &Bridge{logger: logger, nodeID: nodeID, maxFailures: cfg.MaxFailures}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(fmt.Sprintf("audioengine-%s", nodeID)),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("NATS connection failed, event forwarding disabled")
		b.disabled = true
		return b
	}

	js, err := jetstream.New(conn)
	if err != nil {
		logger.Warn().Err(err).Msg("jetstream init failed, event forwarding disabled")
		conn.Close()
		b.disabled = true
		return b
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := ensureStream(ctx, js, cfg.StreamName); err != nil {
		logger.Warn().Err(err).Msg("failed to ensure jetstream stream, event forwarding disabled")
		conn.Close()
		b.disabled = true
		return b
	}

	b.conn = conn
	b.js = js
	logger.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("event bus bridge connected")
	return b
}

func ensureStream(ctx context.Context, js jetstream.JetStream, name string) error {
	cfg := jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{"audioengine.events.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   jetstream.FileStorage,
	}
	if _, err := js.Stream(ctx, name); err != nil {
		_, err = js.CreateStream(ctx, cfg)
		return err
	}
	return nil
}

type wireEvent struct {
	Kind      string    `json:"kind"`
	Payload   any       `json:"payload"`
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

func kindName(k eventhub.Kind) string {
	switch k {
	case eventhub.Position:
		return "position"
	case eventhub.StateChanged:
		return "state_changed"
	case eventhub.TrackChanged:
		return "track_changed"
	case eventhub.Error:
		return "error"
	case eventhub.Log:
		return "log"
	default:
		return "unknown"
	}
}

// Forward publishes one event to NATS, best-effort. It never blocks the
// caller beyond a short publish timeout and trips its own circuit breaker
// after MaxFailures consecutive failures.
func (b *Bridge) Forward(ev eventhub.Event) {
	b.mu.Lock()
	disabled := b.disabled
	b.mu.Unlock()
	if disabled {
		return
	}

	data, err := json.Marshal(wireEvent{Kind: kindName(ev.Kind), Payload: ev.Payload, NodeID: b.nodeID, Timestamp: time.Now()})
	if err != nil {
		b.logger.Debug().Err(err).Msg("failed to marshal event for forwarding")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	subject := fmt.Sprintf("audioengine.events.%s", kindName(ev.Kind))
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		b.noteFailure(err)
		return
	}
	b.mu.Lock()
	b.failCount = 0
	b.mu.Unlock()
}

func (b *Bridge) noteFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCount++
	b.logger.Debug().Err(err).Int("fail_count", b.failCount).Msg("event forward failed")
	if b.maxFailures > 0 && b.failCount >= b.maxFailures {
		b.logger.Warn().Msg("event bus bridge failure threshold reached, disabling forwarding")
		b.disabled = true
		if b.conn != nil {
			b.conn.Close()
		}
	}
}

// Subscribe attaches the bridge to hub, forwarding every emitted event
// until ctx is cancelled.
func Subscribe(ctx context.Context, hub *eventhub.Hub, bridge *Bridge) {
	id, ch := hub.Subscribe(64)
	go func() {
		defer hub.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				bridge.Forward(ev)
			}
		}
	}()
}

// Close closes the underlying NATS connection, if any.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}
