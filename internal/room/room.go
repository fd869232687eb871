package room

import (
	"errors"
	"time"

	"github.com/ageofblocks/netplay/pkg/protocol"
)

var ErrNotFound = errors.New("room not found")
var ErrFull = errors.New("room is full")
var ErrAlreadyStarted = errors.New("game already started")
var ErrBadPassword = errors.New("wrong password")
var ErrNotHost = errors.New("only the host can do that")
var ErrNotAllReady = errors.New("not all players ready")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrInvalidMode = errors.New("invalid game mode")

type Mode string

const (
	Mode1v1 Mode = "1v1"
	Mode2v2 Mode = "2v2"
	Mode3v3 Mode = "3v3"
	ModeFFA Mode = "ffa"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Mode1v1, Mode2v2, Mode3v3, ModeFFA:
		return Mode(s), nil
	}
	return "", ErrInvalidMode
}

func (m Mode) MaxPlayers() int {
	switch m {
	case Mode1v1:
		return 2
	case Mode2v2, ModeFFA:
		return 4
	case Mode3v3:
		return 6
	}
	return 2
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const MinPlayersToStart = 2

const StartingCastleHP = 1000

type Player struct {
	ID     string
	Name   string
	Team   int
	Ready  bool
	IsHost bool
}

// Options carries lobby-discovery metadata; zero value makes a plain
// private room with no display name.
type Options struct {
	Name     string
	Public   bool
	Password string
}

// Room holds one match's roster and lifecycle. It is plain data with no
// locking: the hub actor is its only writer.
type Room struct {
	Code      string
	HostID    string
	Mode      Mode
	Status    Status
	Name      string
	Public    bool
	Password  string
	CreatedAt time.Time

	players map[string]*Player
	order   []string // join order, host migration promotes order[0]

	Winner     int
	LastState  *protocol.GameSnapshot
	LastUpdate time.Time
	FinishedAt time.Time
}

func New(code string, mode Mode, opts Options) *Room {
	return &Room{
		Code:      code,
		Mode:      mode,
		Status:    StatusWaiting,
		Name:      opts.Name,
		Public:    opts.Public,
		Password:  opts.Password,
		CreatedAt: time.Now(),
		players:   make(map[string]*Player),
	}
}

func (r *Room) MaxPlayers() int { return r.Mode.MaxPlayers() }

func (r *Room) Len() int { return len(r.players) }

func (r *Room) Player(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Players returns the roster in join order.
func (r *Room) Players() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// MemberIDs returns connection ids in join order.
func (r *Room) MemberIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Join validates capacity, lifecycle and password, then inserts the player
// on the emptier team. The first player in becomes host.
func (r *Room) Join(id, name, password string) (*Player, error) {
	if len(r.players) >= r.MaxPlayers() {
		return nil, ErrFull
	}
	if r.Status != StatusWaiting {
		return nil, ErrAlreadyStarted
	}
	if r.Password != "" && password != r.Password {
		return nil, ErrBadPassword
	}

	p := &Player{
		ID:     id,
		Name:   name,
		Team:   r.assignTeam(),
		IsHost: len(r.players) == 0,
	}
	if p.IsHost {
		r.HostID = id
	}
	r.players[id] = p
	r.order = append(r.order, id)
	return p, nil
}

// assignTeam balances toward the side with fewer members, ties to team 1.
func (r *Room) assignTeam() int {
	counts := map[int]int{1: 0, 2: 0}
	for _, p := range r.players {
		counts[p.Team]++
	}
	if counts[1] <= counts[2] {
		return 1
	}
	return 2
}

// Leave removes the player. If the departing player was host and anyone
// remains, the earliest surviving joiner is promoted and returned.
func (r *Room) Leave(id string) (wasHost bool, newHost *Player) {
	p, ok := r.players[id]
	if !ok {
		return false, nil
	}
	wasHost = p.IsHost

	delete(r.players, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if wasHost && len(r.order) > 0 {
		newHost = r.players[r.order[0]]
		newHost.IsHost = true
		r.HostID = newHost.ID
	}
	return wasHost, newHost
}

func (r *Room) ToggleReady(id string) (bool, bool) {
	p, ok := r.players[id]
	if !ok {
		return false, false
	}
	p.Ready = !p.Ready
	return p.Ready, true
}

// SetTeam moves the player to team 1 or 2; any other value toggles.
func (r *Room) SetTeam(id string, team int) bool {
	p, ok := r.players[id]
	if !ok {
		return false
	}
	if team == 1 || team == 2 {
		p.Team = team
	} else if p.Team == 1 {
		p.Team = 2
	} else {
		p.Team = 1
	}
	return true
}

func (r *Room) allReady() bool {
	for _, p := range r.players {
		if !p.Ready && !p.IsHost {
			return false
		}
	}
	return true
}

// Start transitions waiting -> playing. The host is implicitly ready.
func (r *Room) Start(byID string) error {
	if byID != r.HostID {
		return ErrNotHost
	}
	if r.Status != StatusWaiting {
		return ErrAlreadyStarted
	}
	if len(r.players) < MinPlayersToStart {
		return ErrNotEnoughPlayers
	}
	if !r.allReady() {
		return ErrNotAllReady
	}

	r.Status = StatusPlaying
	r.Winner = 0
	r.LastState = &protocol.GameSnapshot{
		Units:     []protocol.EntityState{},
		Buildings: []protocol.EntityState{},
		Castles: protocol.Castles{
			Team1: protocol.CastleState{HP: StartingCastleHP, Alive: true},
			Team2: protocol.CastleState{HP: StartingCastleHP, Alive: true},
		},
	}
	r.LastUpdate = time.Now()
	return nil
}

// Finish records the winner. No transition returns from finished.
func (r *Room) Finish(winner int) {
	if r.Status == StatusFinished {
		return
	}
	r.Status = StatusFinished
	r.Winner = winner
	r.FinishedAt = time.Now()
}

// Discoverable reports whether the room shows up in lobby listings. Derived
// from status, never stored.
func (r *Room) Discoverable() bool {
	return r.Public && r.Status == StatusWaiting
}

func (r *Room) Serialize() protocol.RoomInfo {
	players := make(map[string]protocol.PlayerInfo, len(r.players))
	for id, p := range r.players {
		players[id] = protocol.PlayerInfo{
			ID:     p.ID,
			Name:   p.Name,
			Team:   p.Team,
			Ready:  p.Ready,
			IsHost: p.IsHost,
		}
	}
	return protocol.RoomInfo{
		Code:       r.Code,
		Mode:       string(r.Mode),
		Status:     string(r.Status),
		Players:    players,
		MaxPlayers: r.MaxPlayers(),
	}
}

func (r *Room) Summary() protocol.LobbySummary {
	hostName := ""
	if h, ok := r.players[r.HostID]; ok {
		hostName = h.Name
	}
	return protocol.LobbySummary{
		Code:        r.Code,
		RoomName:    r.Name,
		HostName:    hostName,
		Players:     len(r.players),
		MaxPlayers:  r.MaxPlayers(),
		HasPassword: r.Password != "",
		CreatedAt:   r.CreatedAt.UnixMilli(),
	}
}
