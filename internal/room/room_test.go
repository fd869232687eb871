package room

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		mode Mode
		max  int
	}{
		{"1v1", Mode1v1, 2},
		{"2v2", Mode2v2, 4},
		{"3v3", Mode3v3, 6},
		{"ffa", ModeFFA, 4},
	} {
		m, err := ParseMode(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.mode, m)
		require.Equal(t, tc.max, m.MaxPlayers())
	}

	_, err := ParseMode("5v5")
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestGenerateCode_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{6}$`)
	for i := 0; i < 500; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Regexp(t, pattern, code)
	}
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "AB23CD", NormalizeCode("  ab23cd "))
}

func TestJoin_FirstPlayerIsHostOnTeam1(t *testing.T) {
	r := New("AAAAAA", Mode1v1, Options{})

	p, err := r.Join("c1", "alice", "")
	require.NoError(t, err)
	require.True(t, p.IsHost)
	require.Equal(t, 1, p.Team)
	require.Equal(t, "c1", r.HostID)
}

func TestJoin_TeamBalancing(t *testing.T) {
	r := New("AAAAAA", Mode2v2, Options{})

	teams := []int{}
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		p, err := r.Join(id, "p-"+id, "")
		require.NoError(t, err)
		teams = append(teams, p.Team)
	}
	// Fewest-members rule, ties toward team 1.
	require.Equal(t, []int{1, 2, 1, 2}, teams)
}

func TestJoin_Full(t *testing.T) {
	r := New("AAAAAA", Mode1v1, Options{})
	_, err := r.Join("c1", "a", "")
	require.NoError(t, err)
	_, err = r.Join("c2", "b", "")
	require.NoError(t, err)

	_, err = r.Join("c3", "c", "")
	require.ErrorIs(t, err, ErrFull)
}

func TestJoin_AlreadyStarted(t *testing.T) {
	r := startedRoom(t)
	_, err := r.Join("c3", "late", "")
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestJoin_BadPassword(t *testing.T) {
	r := New("AAAAAA", Mode1v1, Options{Password: "hunter2"})

	_, err := r.Join("c1", "a", "nope")
	require.ErrorIs(t, err, ErrBadPassword)

	_, err = r.Join("c1", "a", "hunter2")
	require.NoError(t, err)
}

func TestExactlyOneHost(t *testing.T) {
	r := New("AAAAAA", Mode3v3, Options{})
	ids := []string{"c1", "c2", "c3", "c4", "c5"}
	for _, id := range ids {
		_, err := r.Join(id, "p-"+id, "")
		require.NoError(t, err)
	}
	requireOneHost(t, r)

	// Host leaves repeatedly; the invariant must hold after each departure.
	for _, id := range ids[:len(ids)-1] {
		wasHost, newHost := r.Leave(id)
		require.True(t, wasHost)
		require.NotNil(t, newHost)
		requireOneHost(t, r)
	}
}

func requireOneHost(t *testing.T, r *Room) {
	t.Helper()
	hosts := 0
	for _, p := range r.Players() {
		if p.IsHost {
			hosts++
			require.Equal(t, p.ID, r.HostID)
		}
	}
	require.Equal(t, 1, hosts)
}

func TestLeave_PromotesEarliestSurvivor(t *testing.T) {
	r := New("AAAAAA", Mode2v2, Options{})
	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := r.Join(id, "p-"+id, "")
		require.NoError(t, err)
	}

	wasHost, newHost := r.Leave("c1")
	require.True(t, wasHost)
	require.Equal(t, "c2", newHost.ID)

	// Non-host leave migrates nothing.
	wasHost, newHost = r.Leave("c3")
	require.False(t, wasHost)
	require.Nil(t, newHost)
}

func TestStart_Preconditions(t *testing.T) {
	r := New("AAAAAA", Mode1v1, Options{})
	_, err := r.Join("c1", "a", "")
	require.NoError(t, err)

	require.ErrorIs(t, r.Start("c1"), ErrNotEnoughPlayers)

	_, err = r.Join("c2", "b", "")
	require.NoError(t, err)

	require.ErrorIs(t, r.Start("c2"), ErrNotHost)
	require.ErrorIs(t, r.Start("c1"), ErrNotAllReady)

	ready, ok := r.ToggleReady("c2")
	require.True(t, ok)
	require.True(t, ready)

	// Host is implicitly ready.
	require.NoError(t, r.Start("c1"))
	require.Equal(t, StatusPlaying, r.Status)

	// Fresh gameplay container.
	require.NotNil(t, r.LastState)
	require.Empty(t, r.LastState.Units)
	require.Equal(t, StartingCastleHP, r.LastState.Castles.Team1.HP)
	require.True(t, r.LastState.Castles.Team2.Alive)

	require.ErrorIs(t, r.Start("c1"), ErrAlreadyStarted)
}

func TestFinish_IsTerminal(t *testing.T) {
	r := startedRoom(t)
	r.Finish(2)
	require.Equal(t, StatusFinished, r.Status)
	require.Equal(t, 2, r.Winner)
	require.False(t, r.FinishedAt.IsZero())

	r.Finish(1)
	require.Equal(t, 2, r.Winner)
}

func TestSetTeam(t *testing.T) {
	r := New("AAAAAA", Mode2v2, Options{})
	_, err := r.Join("c1", "a", "")
	require.NoError(t, err)

	require.True(t, r.SetTeam("c1", 2))
	p, _ := r.Player("c1")
	require.Equal(t, 2, p.Team)

	// Out-of-range toggles.
	require.True(t, r.SetTeam("c1", 0))
	require.Equal(t, 1, p.Team)

	require.False(t, r.SetTeam("ghost", 1))
}

func TestDiscoverable_DerivedFromStatus(t *testing.T) {
	r := New("AAAAAA", Mode1v1, Options{Name: "open", Public: true})
	_, err := r.Join("c1", "a", "")
	require.NoError(t, err)
	require.True(t, r.Discoverable())

	_, err = r.Join("c2", "b", "")
	require.NoError(t, err)
	r.ToggleReady("c2")
	require.NoError(t, r.Start("c1"))
	require.False(t, r.Discoverable())
}

func TestSerializeAndSummary(t *testing.T) {
	r := New("AAAAAA", Mode1v1, Options{Name: "duel", Public: true, Password: "pw"})
	_, err := r.Join("c1", "alice", "pw")
	require.NoError(t, err)

	info := r.Serialize()
	require.Equal(t, "AAAAAA", info.Code)
	require.Equal(t, "1v1", info.Mode)
	require.Equal(t, "waiting", info.Status)
	require.Equal(t, 2, info.MaxPlayers)
	require.True(t, info.Players["c1"].IsHost)

	sum := r.Summary()
	require.Equal(t, "duel", sum.RoomName)
	require.Equal(t, "alice", sum.HostName)
	require.Equal(t, 1, sum.Players)
	require.True(t, sum.HasPassword)
}

func startedRoom(t *testing.T) *Room {
	t.Helper()
	r := New("AAAAAA", Mode1v1, Options{})
	_, err := r.Join("c1", "a", "")
	require.NoError(t, err)
	_, err = r.Join("c2", "b", "")
	require.NoError(t, err)
	r.ToggleReady("c2")
	require.NoError(t, r.Start("c1"))
	return r
}
