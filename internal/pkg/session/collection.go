package session

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Codec converts between a typed record and its shared state value.
type Codec[T any] struct {
	Decode func(any) (T, error)
	Encode func(T) (any, error)
}

// JSONCodec maps records to values through their JSON encoding.
func JSONCodec[T any]() Codec[T] {
	return Codec[T]{
		Decode: func(v any) (T, error) {
			var out T
			b, err := json.Marshal(v)
			if err != nil {
				return out, err
			}
			err = json.Unmarshal(b, &out)
			return out, err
		},
		Encode: func(rec T) (any, error) {
			b, err := json.Marshal(rec)
			if err != nil {
				return nil, err
			}
			var out any
			err = json.Unmarshal(b, &out)
			return out, err
		},
	}
}

// ResourceCollection is a typed per-owner view over the keys named
// "<prefix>.<ownerId>". It is derived only from session events.
type ResourceCollection[T any] struct {
	session *Session
	prefix  string
	codec   Codec[T]
	watcher *Watcher

	mu      sync.RWMutex
	records map[string]T
}

// NewResourceCollection creates a collection over the keys starting with prefix.
func NewResourceCollection[T any](s *Session, prefix string, codec Codec[T]) *ResourceCollection[T] {
	c := &ResourceCollection[T]{
		session: s,
		prefix:  strings.TrimSuffix(prefix, ".") + ".",
		codec:   codec,
		records: map[string]T{},
	}
	c.watcher = s.Watch()
	for key, value := range s.Snapshot() {
		c.apply(Event{Kind: EventUpdated, Key: key, Value: value})
	}
	return c
}

// Key returns the shared state key of owner's record.
func (c *ResourceCollection[T]) Key(owner string) string {
	return c.prefix + owner
}

// Refresh applies the session events observed since the last refresh and
// reports whether the collection changed.
func (c *ResourceCollection[T]) Refresh() bool {
	changed := false
	for {
		ev, ok := c.watcher.Poll()
		if !ok {
			return changed
		}
		if c.apply(ev) {
			changed = true
		}
	}
}

func (c *ResourceCollection[T]) apply(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Kind {
	case EventLeft:
		if len(c.records) == 0 {
			return false
		}
		c.records = map[string]T{}
		return true
	case EventUpdated, EventRemoved:
	default:
		return false
	}
	owner, ok := strings.CutPrefix(ev.Key, c.prefix)
	if !ok || owner == "" {
		return false
	}
	if ev.Kind == EventRemoved {
		if _, ok := c.records[owner]; !ok {
			return false
		}
		delete(c.records, owner)
		return true
	}
	rec, err := c.codec.Decode(ev.Value)
	if err != nil {
		logger.WithError(err).WithField("key", ev.Key).Warn("skipping undecodable record")
		return false
	}
	c.records[owner] = rec
	return true
}

// Get returns the record of owner.
func (c *ResourceCollection[T]) Get(owner string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[owner]
	return rec, ok
}

// Owners returns the sorted ids of all owners with a record.
func (c *ResourceCollection[T]) Owners() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.records)
}

// Values returns the records ordered by owner.
func (c *ResourceCollection[T]) Values() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owners := make([]string, 0, len(c.records))
	for o := range c.records {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	out := make([]T, 0, len(owners))
	for _, o := range owners {
		out = append(out, c.records[o])
	}
	return out
}

// Put writes owner's record through the session.
func (c *ResourceCollection[T]) Put(owner string, rec T) error {
	v, err := c.codec.Encode(rec)
	if err != nil {
		return errors.Wrapf(ErrInvalidValue, "encode record of %q: %v", owner, err)
	}
	return c.session.Set(c.Key(owner), v)
}

// Delete removes owner's record through the session.
func (c *ResourceCollection[T]) Delete(owner string) error {
	return c.session.Remove(c.Key(owner))
}

// Close stops observing the session.
func (c *ResourceCollection[T]) Close() {
	c.watcher.Close()
}
