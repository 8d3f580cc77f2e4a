package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, cfgs ...Cfg) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(cfgs...)
	require.NoError(t, err)
	return s
}

func TestApply(t *testing.T) {
	s := newStore(t)
	require.ErrorIs(t, s.Apply("", map[string]any{"a": 1}, nil), ErrMissingToken)

	require.NoError(t, s.Apply("c1", map[string]any{"a": 1, "b": "x"}, nil))
	v, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, float64(1), v)

	require.NoError(t, s.Apply("c2", map[string]any{"c": true}, []string{"a", "missing"}))
	require.Equal(t, map[string]any{"b": "x", "c": true}, s.Snapshot())
	require.Equal(t, uint64(2), s.Version())
}

func TestApplyRejectsInvalidValue(t *testing.T) {
	s := newStore(t)
	require.Error(t, s.Apply("c1", map[string]any{"a": 1, "bad": func() {}}, nil))
	require.Empty(t, s.Snapshot())
}

func TestWatch(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Apply("c1", map[string]any{"a": 1}, nil))

	var mu sync.Mutex
	var got []map[string]any
	snapshot, cancel := s.Watch(func(changes map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, changes)
	})
	require.Equal(t, map[string]any{"a": float64(1)}, snapshot)

	require.NoError(t, s.Apply("c1", map[string]any{"b": 2}, []string{"a"}))
	require.NoError(t, s.Apply("c1", nil, []string{"nothing"}))
	cancel()
	cancel()
	require.NoError(t, s.Apply("c1", map[string]any{"c": 3}, nil))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []map[string]any{{"a": nil, "b": float64(2)}}, got)
}

func TestLocks(t *testing.T) {
	now := time.Unix(0, 0)
	s := newStore(t, WithClock(func() time.Time { return now }))

	ok, err := s.Acquire("c1", "door", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Acquire("c2", "door", 0)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Release("c2", "door")
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, []Lock{{Resource: "door", Owner: "c1", Expires: now.Add(10 * time.Second)}}, s.Locks())

	now = now.Add(10 * time.Second)
	require.Empty(t, s.Locks())
	ok, err = s.Acquire("c2", "door", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Release("c2", "door")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Acquire("", "door", 0)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestApplyRespectsLocks(t *testing.T) {
	s := newStore(t)
	ok, err := s.Acquire("c1", "door", 0)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, s.Apply("c2", map[string]any{"door.open": true, "other": 1}, nil), ErrResourceLocked)
	require.ErrorIs(t, s.Apply("c2", nil, []string{"door"}), ErrResourceLocked)
	require.Empty(t, s.Snapshot())

	require.NoError(t, s.Apply("c2", map[string]any{"doorbell": 1}, nil))
	require.NoError(t, s.Apply("c1", map[string]any{"door.open": true}, nil))
	require.Len(t, s.Snapshot(), 2)
}

func TestRestore(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Apply("c1", map[string]any{"a": 1}, nil))
	ok, err := s.Acquire("c1", "b", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Restore(map[string]any{"b": []any{1, "x"}, "a": nil}))
	require.Equal(t, map[string]any{"b": []any{float64(1), "x"}}, s.Snapshot())
}

func TestParseSeed(t *testing.T) {
	state, err := ParseSeed([]byte(`
entries:
  config.round: 1
  config.map:
    name: harbor
    size: [64, 64]
  config.open: true
`))
	require.NoError(t, err)
	s := newStore(t)
	require.NoError(t, s.Restore(state))
	require.Equal(t, map[string]any{
		"config.round": float64(1),
		"config.map":   map[string]any{"name": "harbor", "size": []any{float64(64), float64(64)}},
		"config.open":  true,
	}, s.Snapshot())

	state, err = ParseSeed([]byte(`{}`))
	require.NoError(t, err)
	require.Empty(t, state)

	_, err = ParseSeed([]byte(`entries: [1, 2`))
	require.Error(t, err)
}
