package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ageofblocks/netplay/pkg/protocol"
)

// DefaultSyncRate is the host snapshot interval: fast enough for smooth
// interpolation, slow enough to bound bandwidth.
const DefaultSyncRate = 50 * time.Millisecond

type Castle struct {
	HP    int
	Alive bool
}

// LocalEntity is one unit or building as the owning simulation sees it,
// in the local frame. Team is the world team number.
type LocalEntity struct {
	ID    string
	Type  string
	X     float64
	Y     float64
	HP    int
	MaxHP int
	Alive bool
	Team  int
}

// LocalState is a read-only copy of the simulation at one instant, taken
// in the local frame. The synchronizer never mutates it.
type LocalState struct {
	Cols         int
	Units        []LocalEntity
	Buildings    []LocalEntity
	PlayerCastle Castle
	EnemyCastle  Castle
}

// SnapshotSource is the authoritative simulation as seen by the host's
// synchronizer. Implementations return a copy safe to read after return.
type SnapshotSource interface {
	Snapshot() LocalState
}

// HostSynchronizer periodically serializes the host's simulation into a
// world-frame snapshot and transmits it, unconditionally, even when nothing
// changed. It also detects castle death and announces the winner once.
type HostSynchronizer struct {
	session  *Session
	source   SnapshotSource
	rate     time.Duration
	done     chan struct{}
	gameOver bool
}

func newHostSynchronizer(s *Session, src SnapshotSource, rate time.Duration) *HostSynchronizer {
	return &HostSynchronizer{
		session: s,
		source:  src,
		rate:    rate,
		done:    make(chan struct{}),
	}
}

func (hs *HostSynchronizer) run() {
	ticker := time.NewTicker(hs.rate)
	defer ticker.Stop()

	for {
		select {
		case <-hs.done:
			return
		case <-ticker.C:
			hs.tick(time.Now())
		}
	}
}

func (hs *HostSynchronizer) stop() {
	select {
	case <-hs.done:
	default:
		close(hs.done)
	}
}

func (hs *HostSynchronizer) tick(now time.Time) {
	s := hs.session

	s.mu.Lock()
	team := s.team
	playing := s.playing && s.isHost
	s.mu.Unlock()
	if !playing {
		return
	}

	st := hs.source.Snapshot()
	snap := BuildSnapshot(st, team, now)

	// Win check precedes the snapshot send so the terminal event is never
	// older than the state that caused it.
	if winner, over := Winner(st, team); over && !hs.gameOver {
		hs.gameOver = true
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.emit(ctx, &protocol.GameOver{Winner: winner})
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.emit(ctx, snap); err != nil {
		s.log.Debug("snapshot send failed", zap.Error(err))
	}
}

// BuildSnapshot converts a local-frame simulation state into the canonical
// world-frame snapshot, from the point of view of the given team.
func BuildSnapshot(st LocalState, team int, now time.Time) *protocol.GameSnapshot {
	cols := st.Cols
	if cols <= 0 {
		cols = DefaultColumns
	}

	units := make([]protocol.EntityState, 0, len(st.Units))
	for _, u := range st.Units {
		units = append(units, toWorldEntity(u, team, cols))
	}
	buildings := make([]protocol.EntityState, 0, len(st.Buildings))
	for _, b := range st.Buildings {
		buildings = append(buildings, toWorldEntity(b, team, cols))
	}

	// Castles are keyed by team number, not by the host's player/enemy
	// labels.
	mine := protocol.CastleState{HP: st.PlayerCastle.HP, Alive: st.PlayerCastle.Alive}
	theirs := protocol.CastleState{HP: st.EnemyCastle.HP, Alive: st.EnemyCastle.Alive}

	castles := protocol.Castles{Team1: mine, Team2: theirs}
	if team != 1 {
		castles = protocol.Castles{Team1: theirs, Team2: mine}
	}

	return &protocol.GameSnapshot{
		Units:     units,
		Buildings: buildings,
		Castles:   castles,
		Timestamp: now.UnixMilli(),
	}
}

func toWorldEntity(e LocalEntity, team, cols int) protocol.EntityState {
	return protocol.EntityState{
		ID:    e.ID,
		Type:  e.Type,
		X:     ToWorld(team, e.X, cols),
		Y:     e.Y,
		HP:    e.HP,
		Alive: e.Alive,
		Team:  e.Team,
	}
}

// Winner reports the winning team if either castle has fallen.
func Winner(st LocalState, team int) (int, bool) {
	other := 2
	if team == 2 {
		other = 1
	}
	if !st.PlayerCastle.Alive {
		return other, true
	}
	if !st.EnemyCastle.Alive {
		return team, true
	}
	return 0, false
}
