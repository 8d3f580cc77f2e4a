package client

import "github.com/pkg/errors"

// ErrNoAddress indicates that no server address was configured.
var ErrNoAddress = errors.New("no server address")

// ErrNotConnected indicates that Connect has not been called.
var ErrNotConnected = errors.New("client not connected")
