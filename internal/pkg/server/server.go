package server

import (
	"context"
	"io"
	"time"

	"statesync/internal/pkg/handler"
	"statesync/internal/pkg/log"
	"statesync/internal/pkg/store"
	"statesync/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// DefaultMinUpdateInterval bounds how often a subscriber can ask to be updated.
const DefaultMinUpdateInterval = 10 * time.Millisecond

// Server implements the State gRPC service over a store.
type Server struct {
	store             store.Store
	minUpdateInterval time.Duration
}

var _ wire.StateServer = (*Server)(nil)

// Cfg configures a Server.
type Cfg func(*Server) error

// WithStore sets the store served to clients.
func WithStore(s store.Store) Cfg {
	return func(srv *Server) error {
		srv.store = s
		return nil
	}
}

// WithMinUpdateInterval sets the smallest update interval granted to a subscriber.
func WithMinUpdateInterval(d time.Duration) Cfg {
	return func(srv *Server) error {
		if d < 0 {
			return errors.Errorf("negative update interval %s", d)
		}
		srv.minUpdateInterval = d
		return nil
	}
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfgs ...Cfg) (*Server, error) {
	server := &Server{minUpdateInterval: DefaultMinUpdateInterval}
	for _, cfg := range cfgs {
		if err := cfg(server); err != nil {
			return nil, errors.Wrap(err, "apply Server cfg failed")
		}
	}
	if server.store == nil {
		return nil, errors.New("server requires a store")
	}
	return server, nil
}

func (s *Server) updateInterval(seconds float64) time.Duration {
	d := time.Duration(seconds * float64(time.Second))
	if d < s.minUpdateInterval {
		return s.minUpdateInterval
	}
	return d
}

// SubscribeStateUpdates streams a snapshot of the state followed by its changes.
func (s *Server) SubscribeStateUpdates(req *wire.SubscribeRequest, srv wire.State_SubscribeStateUpdatesServer) error {
	interval := s.updateInterval(req.UpdateInterval)
	h, err := handler.NewHandler(
		handler.WithStore(s.store),
		handler.WithInterval(interval),
	)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	logger.WithField("interval", interval).Info("subscriber joined")
	err = h.Run(srv.Context(), func(update *wire.StateUpdate) error {
		logger.WithFields(log.UpdateToFields(update)).Trace("sending update")
		return srv.Send(update)
	})
	if err != nil && srv.Context().Err() == nil {
		logger.WithError(err).Warn("subscriber dropped")
		return err
	}
	logger.Info("subscriber left")
	return nil
}

// UpdateState applies the batches written by one client. A rejected batch is
// counted and skipped; the stream stays open.
func (s *Server) UpdateState(srv wire.State_UpdateStateServer) error {
	var resp wire.UpdateStateResponse
	for {
		req, err := srv.Recv()
		if errors.Is(err, io.EOF) {
			return srv.SendAndClose(&resp)
		}
		if err != nil {
			if status.Code(err) == codes.Canceled || srv.Context().Err() != nil {
				logger.WithField("applied", resp.Applied).Debug("writer disconnected")
				return nil
			}
			return errors.Wrap(err, "receive batch failed")
		}
		fields := log.BatchToFields(req)
		if err := s.store.Apply(req.AccessToken, req.Set, req.Remove); err != nil {
			resp.Rejected++
			logger.WithFields(fields).WithError(err).Warn("rejected batch")
			continue
		}
		resp.Applied++
		logger.WithFields(fields).Debug("applied batch")
	}
}

// UpdateLocks acquires or releases an advisory lock.
func (s *Server) UpdateLocks(_ context.Context, req *wire.LockRequest) (*wire.LockResponse, error) {
	if req.AccessToken == "" {
		return nil, status.Error(codes.Unauthenticated, store.ErrMissingToken.Error())
	}
	if req.ResourceID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing resource id")
	}
	if req.LeaseSeconds < 0 {
		return nil, status.Error(codes.InvalidArgument, "negative lease")
	}
	var accepted bool
	var err error
	switch req.Action {
	case wire.LockAcquire:
		accepted, err = s.store.Acquire(req.AccessToken, req.ResourceID, time.Duration(req.LeaseSeconds*float64(time.Second)))
	case wire.LockRelease:
		accepted, err = s.store.Release(req.AccessToken, req.ResourceID)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown lock action %q", req.Action)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	logger.WithFields(log.LockToFields(req)).WithField("accepted", accepted).Debug("lock request")
	return &wire.LockResponse{Accepted: accepted}, nil
}
