package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrAlreadyStarted indicates that Start was called twice on the same stream.
var ErrAlreadyStarted = errors.New("stream already started")

// ErrStreamClosed indicates that the stream was used after it was closed.
var ErrStreamClosed = errors.New("stream closed")

// ErrTransportFault matches every FaultError via errors.Is.
var ErrTransportFault = errors.New("transport fault")

// FaultError is a genuine transport failure, as opposed to a stop that the
// caller asked for by cancelling the stream.
type FaultError struct {
	Op  string
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransportFault, e.Op, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransportFault.
func (e *FaultError) Is(target error) bool {
	return target == ErrTransportFault
}

// classify maps a transport error to nil when it was caused by our own
// cancellation or by an orderly end of stream.
func classify(ctx context.Context, op string, err error) error {
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return &FaultError{Op: op, Err: err}
}
