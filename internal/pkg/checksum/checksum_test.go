package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumIsOrderIndependent(t *testing.T) {
	a := map[string]any{"x": 1, "y": map[string]any{"b": true, "a": "s"}, "z": []any{1, 2}}
	b := map[string]any{"z": []any{1, 2}, "y": map[string]any{"a": "s", "b": true}, "x": float64(1)}
	sa, err := Sum(a)
	require.NoError(t, err)
	sb, err := Sum(b)
	require.NoError(t, err)
	require.Equal(t, sa, sb)
}

func TestSumDetectsDifferences(t *testing.T) {
	base := map[string]any{"x": 1}
	for name, other := range map[string]map[string]any{
		"value":    {"x": 2},
		"key":      {"y": 1},
		"extra":    {"x": 1, "y": nil},
		"empty":    {},
		"boundary": {"x1": ""},
	} {
		t.Run(name, func(t *testing.T) {
			eq, err := Equal(base, other)
			require.NoError(t, err)
			require.False(t, eq)
		})
	}
}

func TestSumEmpty(t *testing.T) {
	s1, err := Sum(nil)
	require.NoError(t, err)
	s2, err := Sum(map[string]any{})
	require.NoError(t, err)
	require.Equal(t, s1, s2)
}

func TestSumUnencodable(t *testing.T) {
	_, err := Sum(map[string]any{"c": make(chan int)})
	require.ErrorIs(t, err, ErrUnencodableValue)
}
