package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type player struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestResourceCollection(t *testing.T) {
	s, conn := openManual(t)
	deliver(t, s, conn, map[string]any{
		"player.p1": map[string]any{"name": "ann", "score": 1},
		"unrelated": true,
	})

	players := NewResourceCollection(s, "player", JSONCodec[player]())
	defer players.Close()
	require.Equal(t, []string{"p1"}, players.Owners())
	require.False(t, players.Refresh())

	deliver(t, s, conn, map[string]any{
		"player.p2":   map[string]any{"name": "bo", "score": 7},
		"player.":     map[string]any{"name": "nobody"},
		"playerextra": 1,
	})
	require.True(t, players.Refresh())
	require.Equal(t, []string{"p1", "p2"}, players.Owners())
	require.Equal(t, []player{{"ann", 1}, {"bo", 7}}, players.Values())

	deliver(t, s, conn, map[string]any{"player.p1": nil})
	require.True(t, players.Refresh())
	_, ok := players.Get("p1")
	require.False(t, ok)
	p2, ok := players.Get("p2")
	require.True(t, ok)
	require.Equal(t, 7, p2.Score)

	require.NoError(t, players.Put("p3", player{Name: "cy", Score: 2}))
	require.NoError(t, players.Delete("p2"))
	require.NoError(t, s.Flush())
	batches := waitBatches(t, conn, 1)
	require.Equal(t, map[string]any{"name": "cy", "score": float64(2)}, batches[0].Set["player.p3"])
	require.Equal(t, []string{"player.p2"}, batches[0].Remove)

	require.NoError(t, s.Close())
	require.True(t, players.Refresh())
	require.Empty(t, players.Owners())
}

func TestResourceCollectionSkipsUndecodable(t *testing.T) {
	s, conn := openManual(t)
	defer s.Close()
	players := NewResourceCollection(s, "player.", JSONCodec[player]())
	defer players.Close()
	deliver(t, s, conn, map[string]any{"player.p1": "not a record"})
	require.False(t, players.Refresh())
	require.Empty(t, players.Values())
	require.Equal(t, "player.p9", players.Key("p9"))
}
