// Package events is an append-only log of bracket happenings. Each
// subscriber reads at its own offset, so a slow consumer never holds up
// progression or the other consumers.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

type Type string

const (
	BracketGenerated Type = "bracket.generated"
	BracketCompleted Type = "bracket.completed"
	RoundGenerated   Type = "round.generated"
	MatchScheduled   Type = "match.scheduled"
	MatchCompleted   Type = "match.completed"
	MatchDisputed    Type = "match.disputed"
	MatchCancelled   Type = "match.cancelled"
	DisputeResolved  Type = "dispute.resolved"
	NodeFrozen       Type = "node.frozen"
)

var ErrClosed = errors.New("event log closed")

type Event struct {
	Offset       uint64                `json:"offset" msgpack:"offset"`
	Type         Type                  `json:"type" msgpack:"type"`
	TournamentID string                `json:"tournament_id" msgpack:"tournament_id"`
	BracketID    string                `json:"bracket_id,omitempty" msgpack:"bracket_id"`
	MatchID      string                `json:"match_id,omitempty" msgpack:"match_id"`
	Node         bracket.NodeID        `json:"node" msgpack:"node"`
	Round        int                   `json:"round,omitempty" msgpack:"round"`
	Winner       bracket.ParticipantID `json:"winner,omitempty" msgpack:"winner"`
	Loser        bracket.ParticipantID `json:"loser,omitempty" msgpack:"loser"`
	Score        *bracket.Score        `json:"score,omitempty" msgpack:"score"`
	Reason       string                `json:"reason,omitempty" msgpack:"reason"`
	At           time.Time             `json:"at" msgpack:"at"`
}

// DefaultRetention is how many recent events a Log keeps for Since once
// every subscriber has read past them.
const DefaultRetention = 4096

// Log is an append-only event stream with per-subscriber offsets. Events are
// trimmed once every open subscription has read past them and more than the
// retention window has accumulated behind the slowest reader.
type Log struct {
	mu        sync.Mutex
	base      uint64
	events    []Event
	subs      map[*Subscription]struct{}
	retention uint64
	wake      chan struct{}
	closed    bool
}

func NewLog() *Log {
	return NewLogWithRetention(DefaultRetention)
}

func NewLogWithRetention(retention int) *Log {
	return &Log{
		subs:      make(map[*Subscription]struct{}),
		retention: uint64(max(retention, 1)),
		wake:      make(chan struct{}),
	}
}

// Publish appends evs in order, assigning offsets. It never blocks on readers.
func (l *Log) Publish(evs ...Event) []Event {
	if len(evs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	out := make([]Event, len(evs))
	for i, ev := range evs {
		ev.Offset = l.end()
		if ev.At.IsZero() {
			ev.At = time.Now().UTC()
		}
		l.events = append(l.events, ev)
		out[i] = ev
	}
	l.compact()
	close(l.wake)
	l.wake = make(chan struct{})
	return out
}

func (l *Log) end() uint64 {
	return l.base + uint64(len(l.events))
}

// compact drops events below the slowest subscriber that also fall outside
// the retention window. It only copies once a full window can be dropped.
// Callers hold l.mu.
func (l *Log) compact() {
	end := l.end()
	floor := uint64(0)
	if end > l.retention {
		floor = end - l.retention
	}
	for s := range l.subs {
		floor = min(floor, s.offset)
	}
	if floor <= l.base || floor-l.base < l.retention {
		return
	}
	l.events = append([]Event(nil), l.events[floor-l.base:]...)
	l.base = floor
}

// Len is the offset the next published event will get.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.end()
}

// First is the oldest offset Since can still return.
func (l *Log) First() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base
}

// Since returns a copy of the retained events at or after offset. Offsets
// older than First are clamped.
func (l *Log) Since(offset uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	offset = max(offset, l.base)
	if offset >= l.end() {
		return nil
	}
	return append([]Event(nil), l.events[offset-l.base:]...)
}

// Close wakes every reader; Next returns ErrClosed once the backlog is drained.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.wake)
}

// Subscribe starts a reader at offset, clamped to First. The log keeps every
// event the subscription has not read until it is closed.
func (l *Log) Subscribe(name string, offset uint64) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := &Subscription{log: l, name: name, offset: max(offset, l.base)}
	l.subs[s] = struct{}{}
	return s
}

// Subscription is not safe for concurrent use; give each consumer its own.
type Subscription struct {
	log    *Log
	name   string
	offset uint64
}

func (s *Subscription) Name() string { return s.name }

func (s *Subscription) Offset() uint64 {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	return s.offset
}

// Close releases the subscription's hold on unread events.
func (s *Subscription) Close() {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	delete(s.log.subs, s)
}

// Next blocks until the event at the subscription's offset exists.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.log.mu.Lock()
		if s.offset < s.log.end() {
			ev := s.log.events[s.offset-s.log.base]
			s.offset++
			s.log.mu.Unlock()
			return ev, nil
		}
		if s.log.closed {
			s.log.mu.Unlock()
			return Event{}, ErrClosed
		}
		wake := s.log.wake
		s.log.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-wake:
		}
	}
}
