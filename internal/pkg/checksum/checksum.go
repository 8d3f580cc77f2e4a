// Package checksum computes digests of a shared key/value state, so that two
// replicas can tell whether they converged.
package checksum

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// ErrUnencodableValue is returned when a value in the state cannot be encoded.
var ErrUnencodableValue = errors.New("unencodable value")

// Sum returns a digest of state that only depends on its contents.
// Keys are hashed in sorted order, each followed by the JSON encoding of its
// value, whose map keys are sorted as well. Numbers are compared after
// encoding, so 1 and 1.0 hash the same.
func Sum(state map[string]any) (uint64, error) {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := xxhash.New()
	for _, k := range keys {
		b, err := json.Marshal(state[k])
		if err != nil {
			return 0, errors.Wrapf(ErrUnencodableValue, "key %q: %v", k, err)
		}
		_, _ = d.WriteString(k)
		_, _ = d.Write([]byte{0})
		_, _ = d.Write(b)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64(), nil
}

// Equal reports whether a and b have the same digest.
func Equal(a, b map[string]any) (bool, error) {
	sa, err := Sum(a)
	if err != nil {
		return false, err
	}
	sb, err := Sum(b)
	if err != nil {
		return false, err
	}
	return sa == sb, nil
}
