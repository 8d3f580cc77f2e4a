package client

import (
	"context"
	"net"
	"testing"
	"time"

	"statesync/internal/pkg/checksum"
	"statesync/internal/pkg/server"
	"statesync/internal/pkg/session"
	"statesync/internal/pkg/store"
	"statesync/internal/pkg/wire"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*store.MemoryStore, *bufconn.Listener) {
	t.Helper()
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	srv, err := server.NewServer(server.WithStore(st), server.WithMinUpdateInterval(0))
	require.NoError(t, err)
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	wire.RegisterStateServer(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)
	return st, lis
}

func connect(t *testing.T, lis *bufconn.Listener) *Client {
	t.Helper()
	c, err := NewClient(
		WithAddress("bufnet"),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func openSession(t *testing.T, c *Client) *session.Session {
	t.Helper()
	s, err := session.New(
		session.WithFlushInterval(5*time.Millisecond),
		session.WithDrainInterval(5*time.Millisecond),
		session.WithUpdateInterval(0),
	)
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background(), c))
	return s
}

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient()
	require.ErrorIs(t, err, ErrNoAddress)
	_, err = NewClient(WithAddress(""))
	require.Error(t, err)
	c, err := NewClient(WithServerPort(7070))
	require.NoError(t, err)
	require.Equal(t, "localhost:7070", c.Address())
}

func TestNotConnected(t *testing.T) {
	c, err := NewClient(WithServerPort(7070))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = c.SubscribeStateUpdates(ctx, 0)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = c.UpdateState(ctx)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = c.UpdateLocks(ctx, &wire.LockRequest{})
	require.ErrorIs(t, err, ErrNotConnected)
	require.NoError(t, c.Close())
}

func TestSessionsConverge(t *testing.T) {
	st, lis := startServer(t)
	alice := openSession(t, connect(t, lis))
	bob := openSession(t, connect(t, lis))

	require.NoError(t, alice.Set("score.alice", 3))
	require.NoError(t, bob.Set("score.bob", map[string]any{"points": 5}))

	require.Eventually(t, func() bool {
		_, a := bob.Get("score.alice")
		_, b := alice.Get("score.bob")
		return a && b && !alice.AwaitingConfirmation() && !bob.AwaitingConfirmation()
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		a, errA := checksum.Equal(alice.Snapshot(), st.Snapshot())
		b, errB := checksum.Equal(bob.Snapshot(), st.Snapshot())
		return errA == nil && errB == nil && a && b
	}, 2*time.Second, 5*time.Millisecond)

	aliceIndex := alice.IndexKey()
	require.NoError(t, alice.Close())
	_, ok := st.Get(aliceIndex)
	require.False(t, ok)
	require.Eventually(t, func() bool {
		_, ok := bob.Get("score.alice")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, bob.Close())
	require.Empty(t, st.Snapshot())
}

func TestSessionLocks(t *testing.T) {
	st, lis := startServer(t)
	alice := openSession(t, connect(t, lis))
	bob := openSession(t, connect(t, lis))
	ctx := context.Background()

	ok, err := alice.LockResource(ctx, "door", 0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = bob.LockResource(ctx, "door", 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, st.Locks(), 1)

	require.NoError(t, alice.Close())
	require.Empty(t, st.Locks())
	ok, err = bob.LockResource(ctx, "door", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, bob.Close())
}
