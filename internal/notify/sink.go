// Package notify delivers bracket events to the outside world. Sinks read the
// event log through their own subscription, never from inside the core.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/AdamBeresnev/bracket-engine/internal/events"
	"github.com/charmbracelet/log"
)

type Sink interface {
	Notify(ctx context.Context, ev events.Event) error
}

// Forward feeds every event from sub into sink until ctx ends or the log
// closes. Sink failures are logged and skipped.
func Forward(ctx context.Context, sub *events.Subscription, sink Sink) error {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, events.ErrClosed) {
				return nil
			}
			return err
		}
		if err := sink.Notify(ctx, ev); err != nil {
			log.Warn("Notification failed", "subscriber", sub.Name(), "offset", ev.Offset, "type", ev.Type, "error", err)
		}
	}
}

// LogSink writes each event as a structured log line.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, ev events.Event) error {
	log.Info("Event", "type", ev.Type, "offset", ev.Offset, "tournament", ev.TournamentID, "match", ev.MatchID, "node", ev.Node)
	return nil
}

// Multi fans one event out to several sinks and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, ev events.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Mock records delivered events.
type Mock struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Notify(_ context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.Err
}

func (m *Mock) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.events...)
}

// Types lists the delivered event types in order.
func (m *Mock) Types() []events.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Type, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}
