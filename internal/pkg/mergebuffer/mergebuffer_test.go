package mergebuffer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fields map[string]int

func (f fields) Merge(newer fields) fields {
	out := make(fields, len(f)+len(newer))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range newer {
		out[k] = v
	}
	return out
}

func TestTakeEmpty(t *testing.T) {
	b := New[fields]()
	msg, ok := b.Take()
	require.False(t, ok)
	require.Nil(t, msg)
	require.False(t, b.Pending())
}

func TestPutTake(t *testing.T) {
	var b MergeBuffer[fields]
	b.Put(fields{"a": 1})
	require.True(t, b.Pending())
	msg, ok := b.Take()
	require.True(t, ok)
	require.Equal(t, fields{"a": 1}, msg)
	_, ok = b.Take()
	require.False(t, ok)
}

func TestMergeBeforeDrain(t *testing.T) {
	b := New[fields]()
	b.Put(fields{"a": 1, "b": 2})
	b.Put(fields{"b": 3, "c": 4})
	msg, ok := b.Take()
	require.True(t, ok)
	require.Equal(t, fields{"a": 1, "b": 3, "c": 4}, msg)
}

func TestMergeDoesNotMutatePublished(t *testing.T) {
	b := New[fields]()
	first := fields{"a": 1}
	b.Put(first)
	b.Put(fields{"a": 2})
	require.Equal(t, fields{"a": 1}, first)
}

func TestNoLossUnderContention(t *testing.T) {
	const n = 5000
	b := New[fields]()
	seen := make(fields)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				if msg, ok := b.Take(); ok {
					for k, v := range msg {
						seen[k] = v
					}
				}
				return
			default:
			}
			if msg, ok := b.Take(); ok {
				for k, v := range msg {
					seen[k] = v
				}
			}
		}
	}()

	for i := 0; i < n; i++ {
		b.Put(fields{fmt.Sprintf("k%d", i): i})
	}
	close(done)
	wg.Wait()

	require.Len(t, seen, n)
	for i := 0; i < n; i++ {
		require.Equal(t, i, seen[fmt.Sprintf("k%d", i)])
	}
}

func TestLatestValueWinsAcrossDrains(t *testing.T) {
	const n = 2000
	b := New[fields]()
	last := -1
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		drain := func() {
			if msg, ok := b.Take(); ok {
				v := msg["x"]
				assert.Greater(t, v, last)
				last = v
			}
		}
		for {
			select {
			case <-done:
				drain()
				return
			default:
				drain()
			}
		}
	}()
	for i := 0; i < n; i++ {
		b.Put(fields{"x": i})
	}
	close(done)
	wg.Wait()
	require.Equal(t, n-1, last)
}
