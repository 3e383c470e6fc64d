// Package eventbus publishes orchestrator lifecycle transitions to NATS
// so an external observer (the admin surface, a remote dashboard, a
// sibling host process) can watch module and plugin state changes
// without polling. It is grounded on the NATS connection/reconnect
// pattern from the teacher's internal/events subscriber and the
// subject/publish shape of its publisher, generalized from session
// lifecycle events to module/plugin lifecycle events; the teacher's
// in-process internal/plugins/event_bus.go contributes the
// subscribe/emit API shape for the in-process fan-out used when no NATS
// connection is configured.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subject names under which phase events are published.
const (
	SubjectModuleState = "plugify.module.state"
	SubjectPluginState = "plugify.plugin.state"
	SubjectPhase       = "plugify.orchestrator.phase"
)

// Config configures the NATS connection. An empty URL disables NATS:
// Publish then only fans out to in-process subscribers.
type Config struct {
	URL      string
	User     string
	Password string
}

// ModuleStateEvent reports a module's lifecycle transition.
type ModuleStateEvent struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// PluginStateEvent reports a plugin's lifecycle transition.
type PluginStateEvent struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// PhaseEvent reports a startup-sequence phase boundary (spec §4.5).
type PhaseEvent struct {
	Phase     string        `json:"phase"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Handler receives the JSON-encoded event payload for a subject.
type Handler func(subject string, payload []byte)

// Bus publishes lifecycle events to NATS when configured, and always
// fans them out to any in-process subscribers registered via Subscribe
// (the admin API's websocket streamer is the primary consumer).
type Bus struct {
	log  zerolog.Logger
	conn *nats.Conn

	mu          sync.RWMutex
	subscribers map[string][]Handler
}

// New connects to NATS if cfg.URL is set; a disabled Bus (zero Config)
// still supports in-process Subscribe/Publish fan-out.
func New(cfg Config, log zerolog.Logger) (*Bus, error) {
	bus := &Bus{log: log.With().Str("component", "eventbus").Logger(), subscribers: make(map[string][]Handler)}

	if cfg.URL == "" {
		bus.log.Warn().Msg("no NATS URL configured, event bus running in-process only")
		return bus, nil
	}

	opts := []nats.Option{
		nats.Name("plugifyd"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				bus.log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			bus.log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			bus.log.Error().Err(err).Msg("nats error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		bus.log.Warn().Err(err).Str("url", cfg.URL).Msg("failed to connect to nats, event bus running in-process only")
		return bus, nil
	}
	bus.conn = conn
	bus.log.Info().Str("url", conn.ConnectedUrl()).Msg("connected to nats")
	return bus, nil
}

// Close releases the NATS connection, if any.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Subscribe registers an in-process handler for a subject, in addition
// to (or instead of) any NATS subscription.
func (b *Bus) Subscribe(subject string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[subject] = append(b.subscribers[subject], handler)
}

func (b *Bus) publish(subject string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.Error().Err(err).Str("subject", subject).Msg("failed to marshal event payload")
		return
	}

	if b.conn != nil {
		if err := b.conn.Publish(subject, payload); err != nil {
			b.log.Warn().Err(err).Str("subject", subject).Msg("failed to publish to nats")
		}
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[subject]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(subject, payload)
	}
}

// PublishModuleState reports a module lifecycle transition.
func (b *Bus) PublishModuleState(name, state, reason string) {
	b.publish(SubjectModuleState, ModuleStateEvent{Name: name, State: state, Reason: reason, Timestamp: b.now()})
}

// PublishPluginState reports a plugin lifecycle transition.
func (b *Bus) PublishPluginState(name, state, reason string) {
	b.publish(SubjectPluginState, PluginStateEvent{Name: name, State: state, Reason: reason, Timestamp: b.now()})
}

// PublishPhase reports a startup-sequence phase boundary.
func (b *Bus) PublishPhase(phase string, duration time.Duration) {
	b.publish(SubjectPhase, PhaseEvent{Phase: phase, Duration: duration, Timestamp: b.now()})
}

func (b *Bus) now() time.Time { return time.Now() }

// Drain unsubscribes everything and waits up to the context deadline
// for in-flight NATS flushes to complete.
func (b *Bus) Drain(ctx context.Context) error {
	if b.conn == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- b.conn.Drain() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("eventbus: drain timed out: %w", ctx.Err())
	}
}
