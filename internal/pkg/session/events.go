package session

import (
	"context"

	"statesync/internal/pkg/queue"
)

// EventKind identifies what happened to the shared state.
type EventKind int

const (
	// EventJoined is emitted once the session's streams are live.
	EventJoined EventKind = iota
	// EventUpdated is emitted when a key is added or changed in the mirror.
	EventUpdated
	// EventRemoved is emitted when a key leaves the mirror.
	EventRemoved
	// EventLeft is emitted after the mirror has been cleared on close.
	EventLeft
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	case EventLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Event describes one change observed by a session.
type Event struct {
	Kind  EventKind
	Key   string
	Value any
}

// Watcher receives the events of a session through its own unbounded queue,
// so a slow consumer never blocks the session.
type Watcher struct {
	session *Session
	events  *queue.Queue[Event]
}

// Next waits for the next event. It returns queue.ErrClosed once the watcher
// is closed and drained.
func (w *Watcher) Next(ctx context.Context) (Event, error) {
	return w.events.Pop(ctx)
}

// Poll returns the next event if one is waiting.
func (w *Watcher) Poll() (Event, bool) {
	return w.events.TryPop()
}

// Pending returns the number of undelivered events.
func (w *Watcher) Pending() int {
	return w.events.Len()
}

// Close detaches the watcher from its session.
func (w *Watcher) Close() {
	w.session.unwatch(w)
	w.events.Close()
}
