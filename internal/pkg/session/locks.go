package session

import (
	"context"
	"time"

	"statesync/internal/pkg/stream"
	"statesync/internal/pkg/wire"
)

// LockResource asks the server for an advisory lock on id. A zero lease holds
// the lock until it is released. It reports whether the lock was granted.
func (s *Session) LockResource(ctx context.Context, id string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return false, ErrNotOpen
	}
	conn, token := s.conn, s.token
	s.mu.Unlock()

	resp, err := conn.UpdateLocks(ctx, &wire.LockRequest{
		AccessToken:  token,
		ResourceID:   id,
		Action:       wire.LockAcquire,
		LeaseSeconds: lease.Seconds(),
	})
	if err != nil {
		return false, &stream.FaultError{Op: "lock", Err: err}
	}
	if !resp.Accepted {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.locks[id] = struct{}{}
	}
	return true, nil
}

// ReleaseResource gives up the lock on id. It reports false when the server
// did not consider this session the holder, which is not an error.
func (s *Session) ReleaseResource(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	open := s.state == stateOpen
	s.mu.Unlock()
	if !open {
		return false, ErrNotOpen
	}
	return s.releaseResource(ctx, id)
}

// HeldLocks returns the resources this session believes it holds.
func (s *Session) HeldLocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.locks)
}

func (s *Session) releaseResource(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	conn, token := s.conn, s.token
	s.mu.Unlock()
	if conn == nil {
		return false, ErrNotOpen
	}

	resp, err := conn.UpdateLocks(ctx, &wire.LockRequest{
		AccessToken: token,
		ResourceID:  id,
		Action:      wire.LockRelease,
	})
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	if err != nil {
		return false, &stream.FaultError{Op: "unlock", Err: err}
	}
	return resp.Accepted, nil
}
