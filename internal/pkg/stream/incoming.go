package stream

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Receiver is the receiving half of a server to client stream.
// A gRPC client stream satisfies it through a thin typed adapter.
type Receiver[T any] interface {
	Recv() (T, error)
}

// OpenReceiverFunc subscribes to a server to client stream bound to ctx.
type OpenReceiverFunc[T any] func(ctx context.Context) (Receiver[T], error)

// IncomingStream owns one long-lived receive operation.
type IncomingStream[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	open   OpenReceiverFunc[T]

	mu      sync.Mutex
	started bool
	closed  bool

	done chan struct{}
	err  error
}

// NewIncomingStream creates an IncomingStream. Nothing is opened until Start.
func NewIncomingStream[T any](ctx context.Context, open OpenReceiverFunc[T]) *IncomingStream[T] {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &IncomingStream[T]{
		ctx:    cancelCtx,
		cancel: cancel,
		open:   open,
		done:   make(chan struct{}),
	}
}

// Start opens the stream and then calls handler for every message on a
// dedicated goroutine until the stream is cancelled or ends.
// It returns once the subscription is established.
func (s *IncomingStream[T]) Start(handler func(T)) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	if s.closed {
		s.mu.Unlock()
		close(s.done)
		return ErrStreamClosed
	}
	s.mu.Unlock()

	recv, err := s.open(s.ctx)
	if err != nil {
		s.err = classify(s.ctx, "open", err)
		close(s.done)
		if s.err == nil {
			return ErrStreamClosed
		}
		return s.err
	}
	go s.run(recv, handler)
	return nil
}

func (s *IncomingStream[T]) run(recv Receiver[T], handler func(T)) {
	defer close(s.done)
	for {
		msg, err := recv.Recv()
		if err != nil {
			s.err = classify(s.ctx, "receive", err)
			if s.err != nil {
				logger.WithError(s.err).Warn("incoming stream failed")
			} else {
				logger.Debug("incoming stream stopped")
			}
			return
		}
		handler(msg)
	}
}

// Done is closed once the receive loop has exited.
func (s *IncomingStream[T]) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the receive loop exits and returns its terminal error.
// A stop caused by Close or an orderly end of stream yields nil.
func (s *IncomingStream[T]) Wait() error {
	<-s.done
	return s.err
}

// Close cancels the stream and waits for the receive loop to exit.
// It is idempotent.
func (s *IncomingStream[T]) Close() {
	s.mu.Lock()
	s.closed = true
	started := s.started
	s.mu.Unlock()
	s.cancel()
	if started {
		<-s.done
	}
}
