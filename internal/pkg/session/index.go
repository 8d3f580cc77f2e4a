package session

import (
	"fmt"
	"time"
)

// IndexKeyPrefix prefixes the per-client update index key.
const IndexKeyPrefix = "update.index."

// IndexKey returns the update index key of the client identified by token.
func IndexKey(token string) string {
	return IndexKeyPrefix + token
}

// UpdateIndex correlates flushed batches with their echo from the server.
type UpdateIndex struct {
	sent       uint64
	received   uint64
	receivedAt time.Time
}

// Next advances and returns the index to stamp into the next batch.
func (i *UpdateIndex) Next() uint64 {
	i.sent++
	return i.sent
}

// Receive records an index echoed back by the server.
func (i *UpdateIndex) Receive(index uint64, at time.Time) {
	if index > i.received {
		i.received = index
	}
	i.receivedAt = at
}

// Awaiting reports whether a sent batch has not been echoed yet.
func (i UpdateIndex) Awaiting() bool {
	return i.sent > i.received
}

func (i UpdateIndex) String() string {
	return fmt.Sprintf("sent=%d received=%d", i.sent, i.received)
}
