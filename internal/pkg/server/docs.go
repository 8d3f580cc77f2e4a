// Package server implements the state server.
//
// The server exposes the State gRPC service:
//  1. SubscribeStateUpdates sends a subscriber the full state, then the
//     changes applied since, coalesced so that at most one update leaves per
//     requested interval (see package handler).
//  2. UpdateState receives write batches from one client and applies each
//     atomically. A batch touching a resource locked by another client is
//     rejected as a whole. The summary of applied and rejected batches is
//     returned when the client ends the stream.
//  3. UpdateLocks grants and releases advisory resource locks, optionally
//     bounded by a lease.
//
// NewHTTPHandler serves a read-only inspection surface over the same store:
// the current state, the live locks, and a websocket feed of changes.
//
// The server keeps no per-client state besides locks, so a client that
// disconnects and reopens with a new identity starts from a fresh snapshot.
package server
