// Package store holds the authoritative shared state of a server: the
// key/value entries, the advisory resource locks, and the persistence of
// the entries across restarts.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"statesync/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Store is the shared state served to clients.
type Store interface {
	// Apply writes one batch atomically. A nil in changes means removal.
	Apply(token string, set map[string]any, remove []string) error
	Get(key string) (any, bool)
	Snapshot() map[string]any
	// Watch calls fn with every change applied after the returned snapshot was
	// taken, until cancel is called. fn runs under the store lock and must not block.
	Watch(fn func(changes map[string]any)) (snapshot map[string]any, cancel func())
	Acquire(token, resource string, lease time.Duration) (bool, error)
	Release(token, resource string) (bool, error)
	Locks() []Lock
}

// Lock is an advisory claim of a client on a resource. A resource covers the
// key equal to its id and every key below it, "<id>.<rest>".
type Lock struct {
	Resource string    `json:"resource"`
	Owner    string    `json:"owner"`
	Expires  time.Time `json:"expires,omitempty"`
}

func (l Lock) expired(now time.Time) bool {
	return !l.Expires.IsZero() && !now.Before(l.Expires)
}

func (l Lock) covers(key string) bool {
	return key == l.Resource || strings.HasPrefix(key, l.Resource+".")
}

// MemoryStore is a Store held in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]any
	locks    map[string]Lock
	watchers map[int]func(map[string]any)
	nextID   int
	version  uint64
	now      func() time.Time
}

// Cfg configures a MemoryStore.
type Cfg func(*MemoryStore) error

// WithClock replaces the clock used for lock leases.
func WithClock(now func() time.Time) Cfg {
	return func(s *MemoryStore) error {
		if now == nil {
			return errors.New("nil clock")
		}
		s.now = now
		return nil
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(cfgs ...Cfg) (*MemoryStore, error) {
	s := &MemoryStore{
		entries:  make(map[string]any),
		locks:    make(map[string]Lock),
		watchers: make(map[int]func(map[string]any)),
		now:      time.Now,
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply MemoryStore cfg failed")
		}
	}
	return s, nil
}

// conflict returns the first key in keys covered by a live lock of another owner.
// It must be called with the lock held.
func (s *MemoryStore) conflict(token string, keys []string) (string, bool) {
	now := s.now()
	for _, l := range s.locks {
		if l.Owner == token || l.expired(now) {
			continue
		}
		for _, k := range keys {
			if l.covers(k) {
				return k, true
			}
		}
	}
	return "", false
}

func (s *MemoryStore) Apply(token string, set map[string]any, remove []string) error {
	if token == "" {
		return ErrMissingToken
	}
	values := make(map[string]any, len(set))
	keys := make([]string, 0, len(set)+len(remove))
	for k, v := range set {
		nv, err := wire.Normalize(v)
		if err != nil {
			return errors.Wrapf(err, "key %q", k)
		}
		values[k] = nv
		keys = append(keys, k)
	}
	keys = append(keys, remove...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.conflict(token, keys); ok {
		return errors.Wrapf(ErrResourceLocked, "key %q", key)
	}
	changes := make(map[string]any, len(keys))
	for _, k := range remove {
		if _, ok := s.entries[k]; ok {
			delete(s.entries, k)
			changes[k] = nil
		}
	}
	for k, v := range values {
		if v == nil {
			if _, ok := s.entries[k]; ok {
				delete(s.entries, k)
				changes[k] = nil
			}
			continue
		}
		s.entries[k] = v
		changes[k] = v
	}
	s.publish(changes)
	return nil
}

// Restore merges state into the store on behalf of no client, bypassing locks.
func (s *MemoryStore) Restore(state map[string]any) error {
	changes := make(map[string]any, len(state))
	for k, v := range state {
		nv, err := wire.Normalize(v)
		if err != nil {
			return errors.Wrapf(err, "key %q", k)
		}
		changes[k] = nv
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range changes {
		if v == nil {
			delete(s.entries, k)
			continue
		}
		s.entries[k] = v
	}
	s.publish(changes)
	return nil
}

// publish must be called with the lock held.
func (s *MemoryStore) publish(changes map[string]any) {
	if len(changes) == 0 {
		return
	}
	s.version++
	for _, fn := range s.watchers {
		fn(changes)
	}
}

func (s *MemoryStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

func (s *MemoryStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *MemoryStore) snapshot() map[string]any {
	out := make(map[string]any, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Version counts the writes that changed the store.
func (s *MemoryStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *MemoryStore) Watch(fn func(changes map[string]any)) (map[string]any, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	var once sync.Once
	return s.snapshot(), func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.watchers, id)
		})
	}
}

// Acquire grants token the lock on resource unless another client holds a
// live lock on it. Acquiring a held lock renews its lease. A zero lease never expires.
func (s *MemoryStore) Acquire(token, resource string, lease time.Duration) (bool, error) {
	if token == "" {
		return false, ErrMissingToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if l, ok := s.locks[resource]; ok && l.Owner != token && !l.expired(now) {
		return false, nil
	}
	l := Lock{Resource: resource, Owner: token}
	if lease > 0 {
		l.Expires = now.Add(lease)
	}
	s.locks[resource] = l
	logger.WithFields(logrus.Fields{"resource": resource, "owner": token}).Debug("lock acquired")
	return true, nil
}

// Release drops token's lock on resource. It reports false when token does
// not hold the lock.
func (s *MemoryStore) Release(token, resource string) (bool, error) {
	if token == "" {
		return false, ErrMissingToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[resource]
	if !ok || l.Owner != token {
		return false, nil
	}
	delete(s.locks, resource)
	logger.WithFields(logrus.Fields{"resource": resource, "owner": token}).Debug("lock released")
	return true, nil
}

// Locks returns the live locks ordered by resource. Expired locks are dropped.
func (s *MemoryStore) Locks() []Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]Lock, 0, len(s.locks))
	for id, l := range s.locks {
		if l.expired(now) {
			delete(s.locks, id)
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Resource < out[j].Resource
	})
	return out
}
