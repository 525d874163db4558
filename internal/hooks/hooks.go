// Package hooks dispatches mirror lifecycle events (turns, commands, server
// start/stop) to registered handlers.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/mirror/internal/logging"
)

// Lifecycle events, in the order a served turn emits them.
const (
	EventServerStart     = "server_start"
	EventTurnStart       = "turn_start"       // utterance accepted, before the first completion
	EventCommandExecuted = "command_executed" // router produced a tool result
	EventTurnComplete    = "turn_complete"    // final reply decided; data["turn"] is the result
	EventSpeechReady     = "speech_ready"     // reply synthesized to audio
	EventServerStop      = "server_stop"
)

// AllEvents lists every event a handler may subscribe to.
var AllEvents = []string{
	EventServerStart,
	EventTurnStart,
	EventCommandExecuted,
	EventTurnComplete,
	EventSpeechReady,
	EventServerStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// String returns the string stored under key, or "" when absent or not a string.
func (p Payload) String(key string) string {
	v, _ := p.Data[key].(string)
	return v
}

// Handler reacts to an event. A returned error or panic is logged and the
// remaining handlers still run.
type Handler func(ctx context.Context, p Payload) error

// Manager holds subscriptions and runs them when an event is emitted.
type Manager struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	nextID int
	log    *logging.Logger
}

type subscription struct {
	id      int
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		subs: make(map[string][]*subscription),
		log:  log.Sub("hooks"),
	}
}

// On subscribes handler to event and returns a func that cancels the
// subscription. name shows up in logs. Subscribing to an event outside
// AllEvents panics, since nothing would ever emit it.
func (m *Manager) On(event, name string, handler Handler) (cancel func()) {
	if !slices.Contains(AllEvents, event) {
		panic(fmt.Sprintf("hooks: unknown event %q", event))
	}

	m.mu.Lock()
	m.nextID++
	sub := &subscription{id: m.nextID, name: name, handler: handler}
	m.subs[event] = append(m.subs[event], sub)
	m.mu.Unlock()

	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
	return func() { m.remove(event, sub.id) }
}

func (m *Manager) remove(event string, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[event] = slices.DeleteFunc(m.subs[event], func(s *subscription) bool {
		return s.id == id
	})
}

// Emit runs every handler for event in registration order and returns once
// they have all finished. A turn's reply is broadcast from here, so handlers
// should be quick.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	m.mu.RLock()
	subs := slices.Clone(m.subs[event])
	m.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, s := range subs {
		start := time.Now()
		err := s.run(ctx, payload)
		ev := m.log.Debug()
		if err != nil {
			ev = m.log.Warn().Err(err)
		}
		ev.Str("event", event).
			Str("handler", s.name).
			Dur("took", time.Since(start)).
			Msg("hook handled")
	}
}

// Handlers returns the names subscribed to event, in call order.
func (m *Manager) Handlers(event string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.subs[event]))
	for i, s := range m.subs[event] {
		names[i] = s.name
	}
	return names
}

// Count returns the number of handlers subscribed to event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[event])
}

func (s *subscription) run(ctx context.Context, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", s.name, r)
		}
	}()
	return s.handler(ctx, p)
}
