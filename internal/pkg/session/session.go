package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"statesync/internal/pkg/queue"
	"statesync/internal/pkg/stream"
	"statesync/internal/pkg/wire"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

const (
	// DefaultFlushInterval is the default period between two flushes of local writes.
	DefaultFlushInterval = 33 * time.Millisecond
	// DefaultDrainInterval is the default period between two applications of incoming updates.
	DefaultDrainInterval = 16 * time.Millisecond
	// DefaultUpdateInterval is the default minimum period the server waits between two updates.
	DefaultUpdateInterval = 33 * time.Millisecond
	// DefaultCloseTimeout bounds the time Close spends on network cleanup.
	DefaultCloseTimeout = 2 * time.Second
)

// Connection is the transport a session runs over.
type Connection interface {
	SubscribeStateUpdates(ctx context.Context, interval time.Duration) (stream.Receiver[*wire.StateUpdate], error)
	UpdateState(ctx context.Context) (stream.Sender[*wire.UpdateStateRequest], error)
	UpdateLocks(ctx context.Context, req *wire.LockRequest) (*wire.LockResponse, error)
}

type state int

const (
	stateClosed state = iota
	stateOpen
	stateClosing
)

// Session keeps a local mirror of the shared key/value state.
//
// Local writes are buffered and sent as one batch per flush interval. The
// mirror only ever reflects updates confirmed by the server, so Get does not
// see a value passed to Set until the server has echoed it back.
type Session struct {
	flushInterval  time.Duration
	drainInterval  time.Duration
	updateInterval time.Duration
	closeTimeout   time.Duration
	now            func() time.Time

	mu       sync.Mutex
	state    state
	token    string
	mirror   map[string]any
	pending  *ChangeSet
	authored map[string]struct{}
	locks    map[string]struct{}
	index    UpdateIndex
	watchers map[*Watcher]struct{}
	// resync is set while a new subscription has not delivered its snapshot.
	resync     bool
	fault      error
	sendFaults uint64

	conn       Connection
	cancel     context.CancelFunc
	loopCancel context.CancelFunc
	loops      *errgroup.Group
	pump       *stream.BackgroundStreamPump[*wire.StateUpdate]
	outgoing   *stream.OutgoingStream[*wire.UpdateStateRequest]
}

// Cfg configures a Session.
type Cfg func(*Session) error

// WithFlushInterval sets the period between two flushes of local writes.
func WithFlushInterval(d time.Duration) Cfg {
	return func(s *Session) error {
		if d <= 0 {
			return errors.Errorf("flush interval must be positive, got %s", d)
		}
		s.flushInterval = d
		return nil
	}
}

// WithDrainInterval sets the period between two applications of incoming updates.
// Zero disables the drain loop; the caller then calls Drain, e.g. once per frame.
func WithDrainInterval(d time.Duration) Cfg {
	return func(s *Session) error {
		if d < 0 {
			return errors.Errorf("drain interval must not be negative, got %s", d)
		}
		s.drainInterval = d
		return nil
	}
}

// WithUpdateInterval sets the minimum period the server waits between two updates.
func WithUpdateInterval(d time.Duration) Cfg {
	return func(s *Session) error {
		if d < 0 {
			return errors.Errorf("update interval must not be negative, got %s", d)
		}
		s.updateInterval = d
		return nil
	}
}

// WithCloseTimeout bounds the time Close spends on network cleanup.
func WithCloseTimeout(d time.Duration) Cfg {
	return func(s *Session) error {
		if d <= 0 {
			return errors.Errorf("close timeout must be positive, got %s", d)
		}
		s.closeTimeout = d
		return nil
	}
}

// WithClock replaces the clock used to timestamp confirmations.
func WithClock(now func() time.Time) Cfg {
	return func(s *Session) error {
		s.now = now
		return nil
	}
}

// New creates a closed Session with the given configuration.
func New(cfgs ...Cfg) (*Session, error) {
	s := &Session{
		flushInterval:  DefaultFlushInterval,
		drainInterval:  DefaultDrainInterval,
		updateInterval: DefaultUpdateInterval,
		closeTimeout:   DefaultCloseTimeout,
		now:            time.Now,
		mirror:         map[string]any{},
		pending:        NewChangeSet(),
		authored:       map[string]struct{}{},
		locks:          map[string]struct{}{},
		watchers:       map[*Watcher]struct{}{},
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply Session cfg failed")
		}
	}
	return s, nil
}

// Open mints a new identity and starts synchronizing over conn.
// It returns once the update subscription and the write stream are live.
// ctx bounds the setup only; the session runs until Close.
func (s *Session) Open(ctx context.Context, conn Connection) error {
	s.mu.Lock()
	if s.state != stateClosed {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	s.state = stateOpen
	s.token = uuid.NewString()
	s.conn = conn
	s.cancel = cancel
	s.index = UpdateIndex{}
	s.fault = nil
	s.sendFaults = 0
	s.pump = s.newPump(runCtx, conn)
	s.outgoing = stream.NewOutgoingStream(runCtx, conn.UpdateState)

	// the drain handler waits on s.mu, so no update is applied before Joined
	if err := s.pump.Start(s.applyUpdate); err != nil {
		s.mu.Unlock()
		s.abort()
		return errors.Wrap(err, "subscribe to state updates failed")
	}
	if err := s.outgoing.Start(); err != nil {
		s.mu.Unlock()
		s.abort()
		return errors.Wrap(err, "open update stream failed")
	}

	loopCtx, loopCancel := context.WithCancel(runCtx)
	s.loopCancel = loopCancel
	s.loops, loopCtx = errgroup.WithContext(loopCtx)
	s.loops.Go(func() error {
		return s.flushLoop(loopCtx)
	})
	s.loops.Go(func() error {
		return s.superviseIncoming(loopCtx)
	})

	logger.WithField("token", s.token).Info("session joined")
	s.emit(Event{Kind: EventJoined, Key: s.token})
	s.mu.Unlock()
	return nil
}

// abort undoes a partially opened session.
func (s *Session) abort() {
	s.pump.Close()
	_ = s.outgoing.Close(context.Background())
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				logger.WithError(err).Warn("flush failed")
			}
		}
	}
}

func (s *Session) newPump(ctx context.Context, conn Connection) *stream.BackgroundStreamPump[*wire.StateUpdate] {
	return stream.NewBackgroundStreamPump(ctx, func(ctx context.Context) (stream.Receiver[*wire.StateUpdate], error) {
		return conn.SubscribeStateUpdates(ctx, s.updateInterval)
	}, s.drainInterval)
}

// superviseIncoming resubscribes whenever the update stream stops without
// the session asking for it.
func (s *Session) superviseIncoming(ctx context.Context) error {
	for {
		s.mu.Lock()
		pump := s.pump
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil
		case <-pump.Stopped():
		}
		if ctx.Err() != nil {
			return nil
		}
		err := pump.Err()
		if err == nil {
			err = &stream.FaultError{Op: "receive", Err: ErrSubscriptionEnded}
		}
		s.setFault(err)
		logger.WithError(err).Warn("state update subscription lost, resubscribing")
		if !s.resubscribe(ctx, pump) {
			return nil
		}
	}
}

// resubscribe replaces the stopped pump, retrying once per flush interval
// until it succeeds or ctx is done.
func (s *Session) resubscribe(ctx context.Context, stopped *stream.BackgroundStreamPump[*wire.StateUpdate]) bool {
	stopped.Close()
	s.mu.Lock()
	conn := s.conn
	s.resync = true
	s.mu.Unlock()

	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
		next := s.newPump(ctx, conn)
		if err := next.Start(s.applyUpdate); err != nil {
			next.Close()
			s.setFault(err)
			logger.WithError(err).Warn("resubscribe to state updates failed")
			timer.Reset(s.flushInterval)
			continue
		}
		s.mu.Lock()
		if s.state != stateOpen {
			s.mu.Unlock()
			next.Close()
			return false
		}
		s.pump = next
		s.mu.Unlock()
		logger.Info("resubscribed to state updates")
		return true
	}
}

func (s *Session) setFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

// Err returns the most recent transport fault of the open session, or nil.
// The session stays open after a fault: writes are sent on a new stream and
// the update subscription is renewed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Token returns the identity of the open session, or "" when closed.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// IndexKey returns the update index key of the open session.
func (s *Session) IndexKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return ""
	}
	return IndexKey(s.token)
}

// IsOpen reports whether the session is open.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen
}

// Set schedules a write of value to key for the next flush.
// A nil value is the same as Remove.
func (s *Session) Set(key string, value any) error {
	if value == nil {
		return s.Remove(key)
	}
	v, err := wire.Normalize(value)
	if err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return ErrNotOpen
	}
	s.pending.Set(key, v)
	s.authored[key] = struct{}{}
	return nil
}

// Remove schedules a removal of key for the next flush.
func (s *Session) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return ErrNotOpen
	}
	s.pending.Remove(key)
	delete(s.authored, key)
	return nil
}

// Get returns the confirmed value of key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.mirror[key]
	return v, ok
}

// Keys returns the sorted keys of the mirror.
func (s *Session) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.mirror)
}

// Snapshot returns a shallow copy of the mirror.
func (s *Session) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.mirror))
	for k, v := range s.mirror {
		out[k] = v
	}
	return out
}

// Flush sends all pending writes as one batch. The periodic flush loop calls
// it; frame-driven callers may call it as well.
func (s *Session) Flush() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrNotOpen
	}
	batch := s.takeBatch()
	outgoing := s.outgoing
	s.mu.Unlock()
	if batch != nil {
		if err := outgoing.Enqueue(batch); err != nil {
			return errors.Wrap(err, "enqueue batch failed")
		}
	}
	if err := s.takeSendFault(outgoing); err != nil {
		return errors.Wrap(err, "an earlier batch was lost")
	}
	return nil
}

// takeSendFault returns the fault of the write stream if it was not yet
// reported by Flush.
func (s *Session) takeSendFault(outgoing *stream.OutgoingStream[*wire.UpdateStateRequest]) error {
	n := outgoing.Faults()
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == s.sendFaults || s.outgoing != outgoing {
		return nil
	}
	s.sendFaults = n
	s.fault = outgoing.Err()
	return s.fault
}

// takeBatch must be called with s.mu held.
func (s *Session) takeBatch() *wire.UpdateStateRequest {
	if s.pending.Empty() {
		return nil
	}
	indexKey := IndexKey(s.token)
	if !s.pending.Removing(indexKey) {
		s.pending.Set(indexKey, float64(s.index.Next()))
	}
	set, remove := s.pending.Take()
	return &wire.UpdateStateRequest{
		AccessToken: s.token,
		Set:         set,
		Remove:      remove,
	}
}

// Drain applies the updates received since the last drain. It is only needed
// when the session was created with a zero drain interval.
func (s *Session) Drain() bool {
	s.mu.Lock()
	pump := s.pump
	open := s.state != stateClosed
	s.mu.Unlock()
	if !open {
		return false
	}
	return pump.Drain()
}

func (s *Session) applyUpdate(update *wire.StateUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	indexKey := IndexKey(s.token)
	if s.resync {
		// the first update of a subscription holds the whole state
		s.resync = false
		for _, key := range sortedKeys(s.mirror) {
			if _, ok := update.ChangedKeys[key]; !ok {
				delete(s.mirror, key)
				s.emit(Event{Kind: EventRemoved, Key: key})
			}
		}
	}
	for _, key := range sortedKeys(update.ChangedKeys) {
		raw := update.ChangedKeys[key]
		if raw == nil {
			if _, ok := s.mirror[key]; ok {
				delete(s.mirror, key)
				s.emit(Event{Kind: EventRemoved, Key: key})
			}
			continue
		}
		value, err := wire.Normalize(raw)
		if err != nil {
			logger.WithField("key", key).WithError(errors.Wrap(ErrProtocolViolation, err.Error())).Warn("skipping update entry")
			continue
		}
		if key == indexKey {
			n, ok := wire.AsNumber(value)
			if !ok || n < 0 {
				logger.WithField("key", key).WithError(ErrProtocolViolation).Warn("skipping non-numeric update index")
				continue
			}
			s.index.Receive(uint64(n), s.now())
		}
		s.mirror[key] = value
		s.emit(Event{Kind: EventUpdated, Key: key, Value: value})
	}
}

// AwaitingConfirmation reports whether the server has yet to echo the most
// recently flushed batch.
func (s *Session) AwaitingConfirmation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Awaiting()
}

// SinceLastConfirmation returns the time elapsed since the server last echoed
// this session's update index, or zero if it never did.
func (s *Session) SinceLastConfirmation() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index.receivedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.index.receivedAt)
}

// LastSentIndex returns the index stamped into the most recent batch.
func (s *Session) LastSentIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.sent
}

// LastReceivedIndex returns the most recent index echoed by the server.
func (s *Session) LastReceivedIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.received
}

// Watch registers a new event consumer.
func (s *Session) Watch() *Watcher {
	w := &Watcher{session: s, events: queue.New[Event]()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[w] = struct{}{}
	return w
}

func (s *Session) unwatch(w *Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, w)
}

// emit must be called with s.mu held.
func (s *Session) emit(ev Event) {
	for w := range s.watchers {
		_ = w.events.Push(ev)
	}
}

// Close releases held locks, removes the keys this session wrote, sends one
// final batch and stops every loop, all within the close timeout. It then
// clears the mirror, emitting a removal for every key. Closing a session that
// is not open does nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosing
	token := s.token
	locks := make([]string, 0, len(s.locks))
	for id := range s.locks {
		locks = append(locks, id)
	}
	sort.Strings(locks)
	for key := range s.authored {
		s.pending.Remove(key)
	}
	s.pending.Remove(IndexKey(token))
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
	defer cancel()

	for _, id := range locks {
		if _, err := s.releaseResource(ctx, id); err != nil {
			logger.WithError(err).WithField("resource", id).Warn("release lock on close failed")
		}
	}

	if err := s.Flush(); err != nil {
		logger.WithError(err).Warn("final flush failed")
	}
	s.loopCancel()
	_ = s.loops.Wait()

	var closeErr error
	if err := s.outgoing.Close(ctx); err != nil {
		closeErr = errors.Wrap(err, "close update stream failed")
		logger.WithError(err).Warn("final batch was not delivered in time")
	}
	s.pump.Close()
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range sortedKeys(s.mirror) {
		s.emit(Event{Kind: EventRemoved, Key: key})
	}
	s.emit(Event{Kind: EventLeft, Key: token})
	s.reset()
	logger.WithField("token", token).Info("session left")
	return closeErr
}

// reset must be called with s.mu held.
func (s *Session) reset() {
	s.state = stateClosed
	s.token = ""
	s.mirror = map[string]any{}
	s.pending = NewChangeSet()
	s.authored = map[string]struct{}{}
	s.locks = map[string]struct{}{}
	s.index = UpdateIndex{}
	s.resync = false
	s.conn = nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
