// Package wire defines the messages and the gRPC service exchanged between
// state clients and the state server.
//
// Messages are plain structs carried by a JSON codec (see Codec), so values in
// the shared state keep their dynamic type: null, bool, number, string, list
// or string-keyed map.
package wire

// StateUpdate carries changed keys. A nil value removes the key.
type StateUpdate struct {
	ChangedKeys map[string]any `json:"changed_keys"`
}

// NewStateUpdate creates an empty StateUpdate.
func NewStateUpdate() *StateUpdate {
	return &StateUpdate{ChangedKeys: map[string]any{}}
}

// Merge returns a new update holding the keys of u overwritten by those of newer.
// Neither update is modified. Removals are kept as nil entries so that a later
// consumer still sees them.
func (u *StateUpdate) Merge(newer *StateUpdate) *StateUpdate {
	out := &StateUpdate{ChangedKeys: make(map[string]any, u.Len()+newer.Len())}
	if u != nil {
		for k, v := range u.ChangedKeys {
			out.ChangedKeys[k] = v
		}
	}
	if newer != nil {
		for k, v := range newer.ChangedKeys {
			out.ChangedKeys[k] = v
		}
	}
	return out
}

// Len returns the number of changed keys.
func (u *StateUpdate) Len() int {
	if u == nil {
		return 0
	}
	return len(u.ChangedKeys)
}

// SubscribeRequest opens a state update subscription.
type SubscribeRequest struct {
	// UpdateInterval is the minimum number of seconds between two updates.
	UpdateInterval float64 `json:"update_interval"`
}

// UpdateStateRequest is one batch of writes from a client.
type UpdateStateRequest struct {
	AccessToken string         `json:"access_token"`
	Set         map[string]any `json:"set,omitempty"`
	Remove      []string       `json:"remove,omitempty"`
}

// UpdateStateResponse closes an UpdateState stream.
type UpdateStateResponse struct {
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
}

// LockAction is the action requested on a resource lock.
type LockAction string

const (
	LockAcquire LockAction = "acquire"
	LockRelease LockAction = "release"
)

// LockRequest asks the server to grant or release an exclusive claim on a resource.
type LockRequest struct {
	AccessToken string     `json:"access_token"`
	ResourceID  string     `json:"resource_id"`
	Action      LockAction `json:"action"`
	// LeaseSeconds bounds an acquired lock; zero holds it until released.
	LeaseSeconds float64 `json:"lease_seconds,omitempty"`
}

// LockResponse reports whether a lock request was accepted.
type LockResponse struct {
	Accepted bool `json:"accepted"`
}
