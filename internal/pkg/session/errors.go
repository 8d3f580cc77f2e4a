package session

import (
	"statesync/internal/pkg/wire"

	"github.com/pkg/errors"
)

// ErrNotOpen indicates that the session is not open.
var ErrNotOpen = errors.New("session not open")

// ErrAlreadyOpen indicates that Open was called on an open session.
var ErrAlreadyOpen = errors.New("session already open")

// ErrInvalidValue indicates that a value cannot be stored in the shared state.
var ErrInvalidValue = wire.ErrInvalidValue

// ErrProtocolViolation indicates a malformed entry in an update from the server.
var ErrProtocolViolation = errors.New("protocol violation")

// ErrSubscriptionEnded indicates that the server ended the update stream.
var ErrSubscriptionEnded = errors.New("state update subscription ended")
