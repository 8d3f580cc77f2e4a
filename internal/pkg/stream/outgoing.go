package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"statesync/internal/pkg/queue"

	"github.com/pkg/errors"
)

// Sender is the sending half of a client to server stream.
// CloseSend signals end of stream and waits for the peer to acknowledge it.
type Sender[T any] interface {
	Send(T) error
	CloseSend() error
}

// OpenSenderFunc opens a client to server stream bound to ctx.
type OpenSenderFunc[T any] func(ctx context.Context) (Sender[T], error)

// OutgoingStream owns one long-lived send operation fed by an unbounded FIFO.
// Callers enqueue without blocking; a single sender goroutine writes to the
// transport in enqueue order.
type OutgoingStream[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	open   OpenSenderFunc[T]
	queue  *queue.Queue[T]

	mu      sync.Mutex
	started bool
	closed  bool
	lastErr error

	done   chan struct{}
	sent   atomic.Uint64
	faults atomic.Uint64
}

// NewOutgoingStream creates an OutgoingStream. Nothing is opened until Start.
func NewOutgoingStream[T any](ctx context.Context, open OpenSenderFunc[T]) *OutgoingStream[T] {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &OutgoingStream[T]{
		ctx:    cancelCtx,
		cancel: cancel,
		open:   open,
		queue:  queue.New[T](),
		done:   make(chan struct{}),
	}
}

// Start opens the transport stream and launches the sender goroutine.
func (s *OutgoingStream[T]) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.started = true
	s.mu.Unlock()

	sender, err := s.open(s.ctx)
	if err != nil {
		err = classify(s.ctx, "open", err)
		if err == nil {
			err = ErrStreamClosed
		}
		close(s.done)
		return err
	}
	go s.run(sender)
	return nil
}

// Enqueue queues msg for sending. It never blocks.
func (s *OutgoingStream[T]) Enqueue(msg T) error {
	if err := s.queue.Push(msg); err != nil {
		return ErrStreamClosed
	}
	return nil
}

func (s *OutgoingStream[T]) run(sender Sender[T]) {
	defer close(s.done)
	for {
		msg, err := s.queue.Pop(s.ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) && sender != nil {
				if err := sender.CloseSend(); err != nil {
					s.fault("close", err)
				}
			}
			return
		}
		if sender == nil {
			// the previous transport broke; reopen for this message
			if sender, err = s.open(s.ctx); err != nil {
				sender = nil
				s.fault("reopen", err)
				continue
			}
		}
		if err := sender.Send(msg); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			// io.EOF from Send means the server ended the stream; its status
			// is only reported when the stream is closed.
			if closeErr := sender.CloseSend(); closeErr != nil {
				err = closeErr
			}
			s.record(&FaultError{Op: "send", Err: err})
			sender = nil
			continue
		}
		s.sent.Add(1)
	}
}

func (s *OutgoingStream[T]) fault(op string, err error) {
	if err = classify(s.ctx, op, err); err != nil {
		s.record(err)
	}
}

func (s *OutgoingStream[T]) record(err error) {
	logger.WithError(err).Warn("outgoing stream failed")
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.faults.Add(1)
}

// Err returns the most recent transport fault seen by the sender goroutine.
func (s *OutgoingStream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Faults returns the number of transport faults seen so far. A message that
// was being sent when a fault occurred is lost.
func (s *OutgoingStream[T]) Faults() uint64 {
	return s.faults.Load()
}

// Sent returns the number of messages written to the transport.
func (s *OutgoingStream[T]) Sent() uint64 {
	return s.sent.Load()
}

// Pending returns the number of messages waiting to be sent.
func (s *OutgoingStream[T]) Pending() int {
	return s.queue.Len()
}

// Close stops accepting messages, sends everything already queued, ends the
// transport stream and waits for the sender goroutine. If ctx expires first
// the stream is cancelled and the remaining messages are abandoned.
// It is idempotent.
func (s *OutgoingStream[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	s.queue.Close()
	if !started {
		s.cancel()
		return nil
	}
	select {
	case <-s.done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-s.done
		return errors.Wrap(ctx.Err(), "drain outgoing stream failed")
	}
}
