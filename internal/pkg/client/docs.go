// Package client implements the transport of a state session over gRPC.
//
// A Client dials the state server and satisfies session.Connection:
//  1. SubscribeStateUpdates opens a server stream that first delivers a full
//     snapshot of the shared state and then every change, at most once per
//     requested update interval.
//  2. UpdateState opens a client stream carrying write batches. Closing it
//     waits for the server's count of applied and rejected batches.
//  3. UpdateLocks acquires or releases an advisory lock on a resource.
//
// Messages are encoded with the JSON codec of package wire, so values keep
// their dynamic type end to end.
//
// The Client does not reconnect by itself. When a stream faults the session
// keeps running and the caller decides whether to close and reopen it.
package client
