// Package handler feeds one subscriber with the changes of a store.
package handler

import (
	"context"
	"time"

	"statesync/internal/pkg/mergebuffer"
	"statesync/internal/pkg/store"
	"statesync/internal/pkg/wire"

	"github.com/pkg/errors"
)

// Handler coalesces the changes of a store between two sends, so a slow
// subscriber receives fewer, larger updates instead of falling behind.
type Handler struct {
	store    store.Store
	interval time.Duration
	buffer   *mergebuffer.MergeBuffer[*wire.StateUpdate]
	signal   chan struct{}
}

// HandlerCfg configures a Handler.
type HandlerCfg func(*Handler) error

// WithStore sets the store to watch.
func WithStore(s store.Store) HandlerCfg {
	return func(h *Handler) error {
		h.store = s
		return nil
	}
}

// WithInterval sets the minimum time between two sends. Zero sends every
// change as soon as it is applied.
func WithInterval(d time.Duration) HandlerCfg {
	return func(h *Handler) error {
		if d < 0 {
			return errors.Errorf("negative interval %s", d)
		}
		h.interval = d
		return nil
	}
}

// NewHandler creates a new handler.
func NewHandler(cfgs ...HandlerCfg) (*Handler, error) {
	h := &Handler{
		buffer: mergebuffer.New[*wire.StateUpdate](),
		signal: make(chan struct{}, 1),
	}
	for _, cfg := range cfgs {
		if err := cfg(h); err != nil {
			return nil, errors.Wrap(err, "apply handler cfg failed")
		}
	}
	if h.store == nil {
		return nil, errors.New("handler requires a store")
	}
	return h, nil
}

func (h *Handler) enqueue(changes map[string]any) {
	h.buffer.Put(&wire.StateUpdate{ChangedKeys: changes})
	select {
	case h.signal <- struct{}{}:
	default:
	}
}

// Run sends a full snapshot, then the coalesced changes, until ctx is done or
// send fails.
func (h *Handler) Run(ctx context.Context, send func(*wire.StateUpdate) error) error {
	snapshot, cancel := h.store.Watch(h.enqueue)
	defer cancel()
	if err := send(&wire.StateUpdate{ChangedKeys: snapshot}); err != nil {
		return errors.Wrap(err, "send snapshot failed")
	}

	// exactly one of tick and signal is set
	var tick <-chan time.Time
	signal := h.signal
	if h.interval > 0 {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		tick = ticker.C
		signal = nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-signal:
		case <-tick:
		}
		update, ok := h.buffer.Take()
		if !ok {
			continue
		}
		if err := send(update); err != nil {
			return errors.Wrap(err, "send update failed")
		}
	}
}
