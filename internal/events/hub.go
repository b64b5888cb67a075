// Package events fans out build lifecycle events to live subscribers and
// keeps a short backlog for clients that reconnect.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Type names an event on the wire (the SSE "event:" field).
type Type string

const (
	TypeBuildScheduled Type = "build.scheduled"
	TypeBuildCoalesced Type = "build.coalesced"
	TypeBuildReleased  Type = "build.released"
	TypeJobsReloaded   Type = "jobs.reloaded"
)

// Payload is the typed body of an event. The payload decides its own type.
type Payload interface {
	EventType() Type
}

// BuildScheduled is published when a webhook schedules a build or folds
// a trigger into one that is already pending.
type BuildScheduled struct {
	ID        string    `json:"id"`
	Job       string    `json:"job"`
	Coalesced bool      `json:"coalesced,omitempty"`
	NotBefore time.Time `json:"not_before"`
}

func (p BuildScheduled) EventType() Type {
	if p.Coalesced {
		return TypeBuildCoalesced
	}
	return TypeBuildScheduled
}

// BuildReleased is published when a build's quiet period has passed.
type BuildReleased struct {
	ID         string            `json:"id"`
	Job        string            `json:"job"`
	Triggers   int               `json:"triggers"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

func (BuildReleased) EventType() Type { return TypeBuildReleased }

// JobsReloaded is published after the job set was swapped by a config reload.
type JobsReloaded struct {
	Jobs int `json:"jobs"`
}

func (JobsReloaded) EventType() Type { return TypeJobsReloaded }

type Event struct {
	ID   int64           `json:"id"`
	Type Type            `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Decode returns the typed payload carried by ev.
func Decode(ev Event) (Payload, error) {
	switch ev.Type {
	case TypeBuildScheduled, TypeBuildCoalesced:
		return decodeAs[BuildScheduled](ev.Data)
	case TypeBuildReleased:
		return decodeAs[BuildReleased](ev.Data)
	case TypeJobsReloaded:
		return decodeAs[JobsReloaded](ev.Data)
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", v.EventType(), err)
	}
	return v, nil
}

// Hub is an in-memory pub/sub holding the last few events for late clients.
// Slow subscribers miss events rather than block publishers.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	backlog []Event
	limit   int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		backlog: make([]Event, 0, capacity),
		limit:   capacity,
		subs:    make(map[int]chan Event),
	}
}

// Publish records p and delivers it to current subscribers.
func (h *Hub) Publish(p Payload) Event {
	data, err := json.Marshal(p)
	if err != nil {
		data = []byte("{}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{
		ID:   h.lastID,
		Type: p.EventType(),
		At:   time.Now().UTC(),
		Data: data,
	}
	if len(h.backlog) == h.limit {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:h.limit-1]
	}
	h.backlog = append(h.backlog, ev)

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel of new events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribeLocked()
}

// SubscribeSince returns the backlog after lastID together with a channel
// of every later event. No event is both replayed and delivered.
func (h *Hub) SubscribeSince(lastID int64) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, cancel := h.subscribeLocked()
	return h.snapshotLocked(lastID), ch, cancel
}

func (h *Hub) subscribeLocked() (<-chan Event, func()) {
	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 64)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked(lastID)
}

func (h *Hub) snapshotLocked(lastID int64) []Event {
	out := make([]Event, 0, len(h.backlog))
	for _, ev := range h.backlog {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
