package apps

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"statesync/internal/pkg/client"
	"statesync/internal/pkg/session"

	"github.com/stretchr/testify/require"
)

type clientCfg func(*ClientApp) error

func (f clientCfg) ApplyClientApp(app *ClientApp) error { return f(app) }

type serverCfg func(*ServerApp) error

func (f serverCfg) ApplyServerApp(app *ServerApp) error { return f(app) }

func freePort(t *testing.T) uint16 {
	t.Helper()
	lis, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer lis.Close()
	return uint16(lis.Addr().(*net.TCPAddr).Port)
}

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"a=1", `b={"c":true}`, "d=plain text", "e="})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"a": float64(1),
		"b": map[string]any{"c": true},
		"d": "plain text",
		"e": "",
	}, got)

	_, err = ParseAssignments([]string{"novalue"})
	require.Error(t, err)
	_, err = ParseAssignments([]string{"=1"})
	require.Error(t, err)
}

func TestClientServer(t *testing.T) {
	port := freePort(t)
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("entries:\n  config.round: 1\n"), 0o600))

	srv, err := NewServerApp(serverCfg(func(app *ServerApp) error {
		app.Port = port
		app.SeedFile = seed
		return nil
	}))
	require.NoError(t, err)
	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Run(serverCtx, nil)
	}()

	cli, err := NewClientApp(clientCfg(func(app *ClientApp) error {
		app.Address = fmt.Sprintf("localhost:%d", port)
		app.Name = "tester"
		app.FlushInterval = 5 * time.Millisecond
		app.ReportInterval = 10 * time.Millisecond
		return nil
	}))
	require.NoError(t, err)
	clientCtx, stopClient := context.WithCancel(context.Background())
	defer stopClient()
	clientDone := make(chan error, 1)
	go func() {
		// the server may still be starting; the first attempts can fail to open
		for {
			err := cli.Run(clientCtx, []string{`greeting="hi"`})
			if err == nil || clientCtx.Err() != nil {
				clientDone <- err
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	require.Eventually(t, func() bool {
		state := srv.Store().Snapshot()
		peer := false
		for k := range state {
			if strings.HasPrefix(k, PeerPrefix+".") {
				peer = true
			}
		}
		return state["greeting"] == "hi" && peer
	}, 5*time.Second, 10*time.Millisecond)

	stopClient()
	require.NoError(t, <-clientDone)
	require.Equal(t, map[string]any{"config.round": float64(1)}, srv.Store().Snapshot())

	stopServer()
	require.NoError(t, <-serverDone)
}

func TestServerStopsWithOpenSession(t *testing.T) {
	port := freePort(t)
	srv, err := NewServerApp(serverCfg(func(app *ServerApp) error {
		app.Port = port
		app.ShutdownTimeout = 100 * time.Millisecond
		return nil
	}))
	require.NoError(t, err)
	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Run(serverCtx, nil)
	}()

	c, err := client.NewClient(client.WithServerPort(port))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	s, err := session.New(session.WithCloseTimeout(100 * time.Millisecond))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.Open(context.Background(), c) == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer s.Close()
	require.NoError(t, s.Set("held", true))
	require.Eventually(t, func() bool {
		_, ok := srv.Store().Get("held")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	stopServer()
	select {
	case err := <-serverDone:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop while a session was open")
	}
}
