package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateUpdateMerge(t *testing.T) {
	older := &StateUpdate{ChangedKeys: map[string]any{"a": 1.0, "b": 2.0}}
	newer := &StateUpdate{ChangedKeys: map[string]any{"b": 3.0, "c": 4.0}}
	merged := older.Merge(newer)
	require.Equal(t, map[string]any{"a": 1.0, "b": 3.0, "c": 4.0}, merged.ChangedKeys)
	require.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, older.ChangedKeys)
	require.Equal(t, map[string]any{"b": 3.0, "c": 4.0}, newer.ChangedKeys)
}

func TestStateUpdateMergeKeepsRemovals(t *testing.T) {
	older := &StateUpdate{ChangedKeys: map[string]any{"a": 1.0}}
	newer := &StateUpdate{ChangedKeys: map[string]any{"a": nil}}
	merged := older.Merge(newer)
	v, ok := merged.ChangedKeys["a"]
	require.True(t, ok)
	require.Nil(t, v)

	var empty *StateUpdate
	require.Equal(t, 1, empty.Merge(newer).Len())
}

func TestCodecPreservesNulls(t *testing.T) {
	var c Codec
	data, err := c.Marshal(&StateUpdate{ChangedKeys: map[string]any{"gone": nil, "n": 2.5}})
	require.NoError(t, err)
	require.JSONEq(t, `{"changed_keys":{"gone":null,"n":2.5}}`, string(data))

	out := new(StateUpdate)
	require.NoError(t, c.Unmarshal(data, out))
	v, ok := out.ChangedKeys["gone"]
	require.True(t, ok)
	require.Nil(t, v)
	require.Equal(t, 2.5, out.ChangedKeys["n"])
	require.Equal(t, CodecName, c.Name())
}

func TestNormalize(t *testing.T) {
	v, err := Normalize(map[string]any{"x": 1, "list": []any{true, "s", nil}})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"x": 1.0, "list": []any{true, "s", nil}}, v)

	v, err = Normalize(nil)
	require.NoError(t, err)
	require.Nil(t, v)

	_, err = Normalize(struct{ X int }{1})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = Normalize(make(chan int))
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestNormalizeRejectsNonFiniteNumbers(t *testing.T) {
	for _, v := range []any{
		math.NaN(),
		math.Inf(1),
		float32(math.Inf(-1)),
		[]any{1, math.NaN()},
		map[string]any{"nested": map[string]any{"x": math.Inf(1)}},
	} {
		_, err := Normalize(v)
		require.ErrorIs(t, err, ErrInvalidValue, "%v", v)
	}

	v, err := Normalize(math.MaxFloat64)
	require.NoError(t, err)
	require.Equal(t, math.MaxFloat64, v)
}

func TestAsNumber(t *testing.T) {
	n, ok := AsNumber(3)
	require.True(t, ok)
	require.Equal(t, 3.0, n)
	_, ok = AsNumber("3")
	require.False(t, ok)
}
