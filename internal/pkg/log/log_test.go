package log

import (
	"testing"

	"statesync/internal/pkg/wire"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	require.Equal(t, logrus.ErrorLevel, ParseLevel("nonsense"))
}

func TestUpdateToFields(t *testing.T) {
	fields := UpdateToFields(&wire.StateUpdate{ChangedKeys: map[string]any{"b": 1.0, "a": nil}})
	require.Equal(t, 1, fields["changed"])
	require.Equal(t, 1, fields["removed"])
	require.Equal(t, []string{"a", "b"}, fields["keys"])
}

func TestKeysAreTruncated(t *testing.T) {
	m := map[string]any{}
	for _, k := range []string{"a", "b", "c", "d"} {
		m[k] = true
	}
	require.Equal(t, []string{"a", "b", "..."}, keys(m, 2))
}
