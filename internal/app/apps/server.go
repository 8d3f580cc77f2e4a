package apps

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"statesync/internal/pkg/server"
	"statesync/internal/pkg/store"
	"statesync/internal/pkg/validate"
	"statesync/internal/pkg/wire"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// ServerAppCfg configures a ServerApp.
type ServerAppCfg interface {
	ApplyServerApp(*ServerApp) error
}

// ServerApp serves the shared state over gRPC, and optionally over HTTP for
// inspection, persisting it to a snapshot backend when one is configured.
type ServerApp struct {
	Port             uint16 `validate:"required"`
	HTTPPort         uint16
	SnapshotURL      string        `validate:"omitempty,snapshot_url"`
	SnapshotInterval time.Duration `validate:"gt=0"`
	SeedFile         string        `validate:"omitempty,file"`
	// ShutdownTimeout bounds the wait for open streams on shutdown; streams
	// still open afterwards are closed.
	ShutdownTimeout time.Duration `validate:"gt=0"`

	store *store.MemoryStore
}

// NewServerApp creates a new ServerApp.
func NewServerApp(cfgs ...ServerAppCfg) (*ServerApp, error) {
	app := &ServerApp{
		SnapshotInterval: 5 * time.Second,
		ShutdownTimeout:  5 * time.Second,
	}
	for _, cfg := range cfgs {
		if err := cfg.ApplyServerApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ServerApp cfg failed")
		}
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ServerApp failed")
	}
	st, err := store.NewMemoryStore()
	if err != nil {
		return nil, errors.Wrap(err, "create store failed")
	}
	app.store = st
	return app, nil
}

// Store returns the state served by the app.
func (app *ServerApp) Store() *store.MemoryStore {
	return app.store
}

func (app *ServerApp) load(ctx context.Context) (*store.Backup, error) {
	var backup *store.Backup
	if app.SnapshotURL != "" {
		snap, err := store.OpenSnapshotter(ctx, app.SnapshotURL)
		if err != nil {
			return nil, errors.Wrap(err, "open snapshotter failed")
		}
		backup = store.NewBackup(app.store, snap, app.SnapshotInterval)
		if err := backup.Restore(ctx); err != nil {
			_ = snap.Close()
			return nil, err
		}
	}
	if app.SeedFile != "" && len(app.store.Snapshot()) == 0 {
		seed, err := store.LoadSeed(app.SeedFile)
		if err != nil {
			return nil, errors.Wrap(err, "load seed failed")
		}
		if err := app.store.Restore(seed); err != nil {
			return nil, errors.Wrap(err, "apply seed failed")
		}
		logger.WithField("entries", len(seed)).Info("seeded state")
	}
	return backup, nil
}

func (app *ServerApp) Run(ctx context.Context, args []string) error {
	backup, err := app.load(ctx)
	if err != nil {
		return err
	}
	if backup != nil {
		defer backup.Close()
	}
	srv, err := server.NewServer(server.WithStore(app.store))
	if err != nil {
		return errors.Wrap(err, "create server failed")
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", app.Port))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d failed", app.Port)
	}
	gs := grpc.NewServer()
	wire.RegisterStateServer(gs, srv)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", app.Port).Info("serving state")
		return errors.Wrap(gs.Serve(lis), "serve grpc failed")
	})
	g.Go(func() error {
		<-ctx.Done()
		app.stop(gs)
		return nil
	})
	if app.HTTPPort != 0 {
		hs := &http.Server{
			Addr:              fmt.Sprintf(":%d", app.HTTPPort),
			Handler:           server.NewHTTPHandler(app.store),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.WithField("port", app.HTTPPort).Info("serving inspection")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "serve http failed")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return hs.Close()
		})
	}
	if backup != nil {
		g.Go(func() error {
			return errors.Wrap(backup.Run(ctx), "backup failed")
		})
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stop lets running calls finish within the shutdown timeout. Update
// subscriptions only end with their client, so they are then cut off.
func (app *ServerApp) stop(gs *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	timer := time.NewTimer(app.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		logger.WithField("timeout", app.ShutdownTimeout).Warn("graceful stop timed out, closing open streams")
		gs.Stop()
		<-stopped
	}
}
