package session

import (
	"github.com/ageofblocks/netplay/pkg/protocol"
)

// Entity is one mirrored unit or building in a guest's replica, in the
// guest's local frame. Foreign entities are never simulated locally; their
// state only changes through reconciliation.
type Entity struct {
	ID      string
	Type    string
	X       float64
	Y       float64
	HP      int
	MaxHP   int
	Alive   bool
	Team    int
	Foreign bool
}

// Replica is the guest-side entity store reconciled from the host's
// broadcasts. It holds everything in the guest's mirrored local frame.
type Replica struct {
	team int
	cols int

	units     map[string]*Entity
	buildings map[string]*Entity

	PlayerCastle Castle
	EnemyCastle  Castle
}

func NewReplica(team, cols, castleHP int) *Replica {
	if cols <= 0 {
		cols = DefaultColumns
	}
	return &Replica{
		team:         team,
		cols:         cols,
		units:        make(map[string]*Entity),
		buildings:    make(map[string]*Entity),
		PlayerCastle: Castle{HP: castleHP, Alive: true},
		EnemyCastle:  Castle{HP: castleHP, Alive: true},
	}
}

func (r *Replica) Unit(id string) (*Entity, bool) {
	e, ok := r.units[id]
	return e, ok
}

func (r *Replica) Building(id string) (*Entity, bool) {
	e, ok := r.buildings[id]
	return e, ok
}

func (r *Replica) Units() []*Entity     { return collect(r.units) }
func (r *Replica) Buildings() []*Entity { return collect(r.buildings) }

func collect(m map[string]*Entity) []*Entity {
	out := make([]*Entity, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// ApplyBuilding materializes a building announced by another player,
// already constructed, so the guest renders it without waiting for the
// next periodic snapshot. Own echoes are ignored.
func (r *Replica) ApplyBuilding(ev protocol.EntityEvent) *Entity {
	if ev.SenderTeam == r.team {
		return nil
	}
	if e, ok := r.buildings[ev.ID]; ok {
		return e
	}
	e := r.materialize(ev)
	r.buildings[ev.ID] = e
	return e
}

// ApplyUnit materializes a unit announced by another player.
func (r *Replica) ApplyUnit(ev protocol.EntityEvent) *Entity {
	if ev.SenderTeam == r.team {
		return nil
	}
	if e, ok := r.units[ev.ID]; ok {
		return e
	}
	e := r.materialize(ev)
	r.units[ev.ID] = e
	return e
}

func (r *Replica) materialize(ev protocol.EntityEvent) *Entity {
	return &Entity{
		ID:      ev.ID,
		Type:    ev.Type,
		X:       ToLocal(r.team, ev.X, r.cols),
		Y:       ev.Y,
		HP:      ev.HP,
		MaxHP:   ev.MaxHP,
		Alive:   true,
		Team:    ev.SenderTeam,
		Foreign: true,
	}
}

// ApplySnapshot reconciles the replica against the host's full state:
// update-or-create per id, then prune foreign entities absent from the
// snapshot (the sole deletion path; discrete events never delete), then
// castle HP mapped to the local player/enemy labels. Applying the same
// snapshot twice is a no-op.
func (r *Replica) ApplySnapshot(snap protocol.GameSnapshot) {
	r.applyEntities(r.units, snap.Units)
	r.applyEntities(r.buildings, snap.Buildings)

	mine, theirs := snap.Castles.Team1, snap.Castles.Team2
	if r.team != 1 {
		mine, theirs = snap.Castles.Team2, snap.Castles.Team1
	}
	r.PlayerCastle = Castle{HP: mine.HP, Alive: mine.Alive}
	r.EnemyCastle = Castle{HP: theirs.HP, Alive: theirs.Alive}
}

func (r *Replica) applyEntities(store map[string]*Entity, list []protocol.EntityState) {
	seen := make(map[string]bool, len(list))
	for _, es := range list {
		seen[es.ID] = true
		localX := ToLocal(r.team, es.X, r.cols)

		if e, ok := store[es.ID]; ok {
			e.X = localX
			e.Y = es.Y
			e.HP = es.HP
			e.Alive = es.Alive
			continue
		}

		// Unknown id: the discrete event was dropped, or this entity is
		// locally owned but lost. Either way the snapshot is authoritative.
		store[es.ID] = &Entity{
			ID:      es.ID,
			Type:    es.Type,
			X:       localX,
			Y:       es.Y,
			HP:      es.HP,
			Alive:   es.Alive,
			Team:    es.Team,
			Foreign: es.Team != r.team,
		}
	}

	for id, e := range store {
		if e.Foreign && !seen[id] {
			delete(store, id)
		}
	}
}
