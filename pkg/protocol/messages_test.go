package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeClient_TypedPayloads(t *testing.T) {
	raw, err := EncodeClient(7, &JoinLobby{RoomCode: "AB23CD", PlayerName: "bob", Password: "pw"})
	require.NoError(t, err)

	m, seq, err := DecodeClient(raw)
	require.NoError(t, err)
	require.EqualValues(t, 7, seq)

	join, ok := m.(*JoinLobby)
	require.True(t, ok, "decoded to %T", m)
	require.Equal(t, "AB23CD", join.RoomCode)
	require.Equal(t, "pw", join.Password)
}

func TestDecodeClient_FireAndForgetHasNoSeq(t *testing.T) {
	raw, err := EncodeClient(0, &BuildingPlaced{EntityEvent: EntityEvent{
		ID: "bld_1", Type: "tower", X: 12, Y: 3, HP: 200, MaxHP: 200,
	}})
	require.NoError(t, err)

	m, seq, err := DecodeClient(raw)
	require.NoError(t, err)
	require.Zero(t, seq)

	ev, ok := m.(*BuildingPlaced)
	require.True(t, ok)
	require.Equal(t, 12.0, ev.X)
}

func TestDecodeClient_UnknownTag(t *testing.T) {
	_, _, err := DecodeClient([]byte(`{"type":"formatDisk","seq":1}`))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeClient_Garbage(t *testing.T) {
	_, _, err := DecodeClient([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeServer_Snapshot(t *testing.T) {
	snap := &GameSnapshot{
		Units: []EntityState{{ID: "u1", Type: "knight", X: 5, Y: 2, HP: 80, Alive: true, Team: 2}},
		Castles: Castles{
			Team1: CastleState{HP: 900, Alive: true},
			Team2: CastleState{HP: 0, Alive: false},
		},
		Timestamp: 123,
	}
	raw, err := EncodeServer(snap)
	require.NoError(t, err)

	m, err := DecodeServer(raw)
	require.NoError(t, err)

	got, ok := m.(*GameSnapshot)
	require.True(t, ok, "decoded to %T", m)
	require.Len(t, got.Units, 1)
	require.Equal(t, "u1", got.Units[0].ID)
	require.False(t, got.Castles.Team2.Alive)
}

func TestAckRoundTrip(t *testing.T) {
	raw, err := EncodeServer(NewAck(9, JoinResult{Team: 2}))
	require.NoError(t, err)

	m, err := DecodeServer(raw)
	require.NoError(t, err)
	ack := m.(*Ack)
	require.True(t, ack.Success)
	require.EqualValues(t, 9, ack.Seq)

	raw, err = EncodeServer(NewErrAck(10, ErrUnknownType))
	require.NoError(t, err)
	m, err = DecodeServer(raw)
	require.NoError(t, err)
	ack = m.(*Ack)
	require.False(t, ack.Success)
	require.Equal(t, "unknown message type", ack.Error)
}
