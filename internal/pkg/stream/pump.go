package stream

import (
	"context"
	"sync"
	"time"

	"statesync/internal/pkg/mergebuffer"
)

// BackgroundStreamPump decouples a network receive loop from the consumer of
// its messages. The receive loop merges every message into a MergeBuffer; a
// drain loop running on its own interval takes the merged snapshot and passes
// it to the handler. Neither side ever waits for the other.
type BackgroundStreamPump[T mergebuffer.Mergeable[T]] struct {
	incoming *IncomingStream[T]
	buffer   *mergebuffer.MergeBuffer[T]
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	handler func(T)
	done    chan struct{}
}

// NewBackgroundStreamPump creates a pump over the stream opened by open.
// With a zero interval no drain loop is started and the owner calls Drain.
func NewBackgroundStreamPump[T mergebuffer.Mergeable[T]](
	ctx context.Context,
	open OpenReceiverFunc[T],
	interval time.Duration,
) *BackgroundStreamPump[T] {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &BackgroundStreamPump[T]{
		incoming: NewIncomingStream(cancelCtx, open),
		buffer:   mergebuffer.New[T](),
		interval: interval,
		ctx:      cancelCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start subscribes to the stream and starts the drain loop.
func (p *BackgroundStreamPump[T]) Start(handler func(T)) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.handler = handler
	p.mu.Unlock()
	if err := p.incoming.Start(p.buffer.Put); err != nil {
		close(p.done)
		return err
	}
	if p.interval <= 0 {
		close(p.done)
		return nil
	}
	go p.drainLoop()
	return nil
}

func (p *BackgroundStreamPump[T]) drainLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Drain()
		}
	}
}

// Drain hands the merged snapshot, if any, to the handler.
// Only one goroutine may drain a pump.
func (p *BackgroundStreamPump[T]) Drain() bool {
	msg, ok := p.buffer.Take()
	if !ok {
		return false
	}
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
	return true
}

// Stopped is closed when the underlying receive loop exits.
func (p *BackgroundStreamPump[T]) Stopped() <-chan struct{} {
	return p.incoming.Done()
}

// Err returns the terminal error of the receive loop once it has stopped.
func (p *BackgroundStreamPump[T]) Err() error {
	select {
	case <-p.incoming.Done():
		return p.incoming.Wait()
	default:
		return nil
	}
}

// Close stops the receive loop and the drain loop. Messages still in the
// buffer are discarded. It is idempotent.
func (p *BackgroundStreamPump[T]) Close() {
	p.incoming.Close()
	p.cancel()
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}
