package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func localState() LocalState {
	return LocalState{
		Cols: cols,
		Units: []LocalEntity{
			{ID: "u1", Type: "knight", X: 6, Y: 3, HP: 100, Alive: true, Team: 1},
		},
		Buildings: []LocalEntity{
			{ID: "b1", Type: "farm", X: 2, Y: 8, HP: 150, Alive: true, Team: 1},
		},
		PlayerCastle: Castle{HP: 700, Alive: true},
		EnemyCastle:  Castle{HP: 300, Alive: true},
	}
}

func TestBuildSnapshot_Team1HostKeepsWorldFrame(t *testing.T) {
	snap := BuildSnapshot(localState(), 1, time.UnixMilli(42))

	require.Equal(t, int64(42), snap.Timestamp)
	require.Equal(t, 6.0, snap.Units[0].X)
	require.Equal(t, 2.0, snap.Buildings[0].X)
	require.Equal(t, 700, snap.Castles.Team1.HP)
	require.Equal(t, 300, snap.Castles.Team2.HP)
}

func TestBuildSnapshot_Team2HostMirrorsAndSwapsCastles(t *testing.T) {
	snap := BuildSnapshot(localState(), 2, time.UnixMilli(42))

	require.Equal(t, 23.0, snap.Units[0].X)
	require.Equal(t, 27.0, snap.Buildings[0].X)

	// The host's own castle is team 2's on the wire.
	require.Equal(t, 700, snap.Castles.Team2.HP)
	require.Equal(t, 300, snap.Castles.Team1.HP)
}

func TestBuildSnapshot_SentUnconditionally(t *testing.T) {
	st := LocalState{Cols: cols, PlayerCastle: Castle{HP: 1, Alive: true}, EnemyCastle: Castle{HP: 1, Alive: true}}
	snap := BuildSnapshot(st, 1, time.Now())
	require.NotNil(t, snap)
	require.Empty(t, snap.Units)
	require.Empty(t, snap.Buildings)
}

func TestWinner(t *testing.T) {
	st := localState()
	_, over := Winner(st, 1)
	require.False(t, over)

	st.EnemyCastle.Alive = false
	w, over := Winner(st, 1)
	require.True(t, over)
	require.Equal(t, 1, w)

	st = localState()
	st.PlayerCastle.Alive = false
	w, over = Winner(st, 1)
	require.True(t, over)
	require.Equal(t, 2, w)

	// Same fall seen from a team-2 host names team 1.
	w, _ = Winner(st, 2)
	require.Equal(t, 1, w)
}
