package store

import "github.com/pkg/errors"

// ErrMissingToken indicates a write or lock request without an access token.
var ErrMissingToken = errors.New("missing access token")

// ErrResourceLocked indicates that a batch touched a resource locked by another client.
var ErrResourceLocked = errors.New("resource locked by another client")

// ErrUnsupportedSnapshotURL indicates a snapshot URL with an unknown scheme.
var ErrUnsupportedSnapshotURL = errors.New("unsupported snapshot url")
