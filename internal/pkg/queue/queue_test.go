package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Push(i))
	}
	require.Equal(t, 100, q.Len())
	for i := 0; i < 100; i++ {
		v, err := q.Pop(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	require.False(t, ok)
}

func TestPopWaitsForPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push("hello"))
	select {
	case v := <-got:
		require.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("pop did not return")
	}
}

func TestPopHonoursContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsThenFails(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	q.Close()
	q.Close()
	require.True(t, q.Closed())
	require.ErrorIs(t, q.Push(3), ErrClosed)

	v, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
	v, err = q.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v)
	_, err = q.Pop(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseWakesAllWaiters(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			assert.ErrorIs(t, err, ErrClosed)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
}
