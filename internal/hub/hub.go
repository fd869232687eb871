// Package hub owns every live room and connection. A single goroutine
// drains the inbox, so all effects for a room happen in message-arrival
// order and no room state is ever touched concurrently.
package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ageofblocks/netplay/internal/room"
	"github.com/ageofblocks/netplay/pkg/protocol"
)

var ErrNoRoom = errors.New("not in a room")

type Msg interface{ isHubMsg() }

// Register announces a new connection. The hub replies with a Welcome on
// the outbox and owns the channel from here on: it is closed when the
// connection unregisters or falls behind.
type Register struct {
	ConnID string
	Outbox chan protocol.ServerMsg
}

type Unregister struct{ ConnID string }

// FromClient carries one decoded message from a connection. Seq is 0 for
// fire-and-forget messages.
type FromClient struct {
	ConnID string
	Seq    uint64
	Msg    protocol.ClientMsg
}

type GetStats struct{ Reply chan Stats }

type Shutdown struct{}

func (Register) isHubMsg()   {}
func (Unregister) isHubMsg() {}
func (FromClient) isHubMsg() {}
func (GetStats) isHubMsg()   {}
func (Shutdown) isHubMsg()   {}

type Stats struct {
	Conns   int
	Rooms   int
	Players int
}

type conn struct {
	id       string
	outbox   chan protocol.ServerMsg
	roomCode string
}

const sweepInterval = 30 * time.Second

type Hub struct {
	inbox       chan Msg
	conns       map[string]*conn
	rooms       map[string]*room.Room
	finishedTTL time.Duration
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New starts the hub loop. finishedTTL bounds how long a finished room may
// linger with players still attached; zero disables the sweep.
func New(parent context.Context, log *zap.Logger, finishedTTL time.Duration) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:       make(chan Msg, 64),
		conns:       make(map[string]*conn),
		rooms:       make(map[string]*room.Room),
		finishedTTL: finishedTTL,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep.C:
			h.sweepFinished(time.Now())

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				c := &conn{id: msg.ConnID, outbox: msg.Outbox}
				h.conns[msg.ConnID] = c
				h.send(c, &protocol.Welcome{ConnID: msg.ConnID})
				h.broadcastPlayerCount()

			case Unregister:
				c, ok := h.conns[msg.ConnID]
				if !ok {
					break
				}
				h.leaveRoom(c)
				delete(h.conns, c.id)
				close(c.outbox)
				h.broadcastPlayerCount()

			case FromClient:
				c, ok := h.conns[msg.ConnID]
				if !ok {
					break
				}
				h.handle(c, msg.Seq, msg.Msg)

			case GetStats:
				players := 0
				for _, r := range h.rooms {
					players += r.Len()
				}
				msg.Reply <- Stats{Conns: len(h.conns), Rooms: len(h.rooms), Players: players}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, c := range h.conns {
		close(c.outbox)
		delete(h.conns, id)
	}
	clear(h.rooms)
	h.cancel()
}

func (h *Hub) handle(c *conn, seq uint64, m protocol.ClientMsg) {
	switch msg := m.(type) {
	case *protocol.CreateRoom:
		h.createRoom(c, seq, msg.Mode, msg.PlayerName, room.Options{}, false)

	case *protocol.CreateLobby:
		h.createRoom(c, seq, string(room.Mode1v1), msg.PlayerName, room.Options{
			Name:     msg.RoomName,
			Public:   msg.IsPublic,
			Password: msg.Password,
		}, true)

	case *protocol.JoinRoom:
		h.joinRoom(c, seq, msg.RoomCode, msg.PlayerName, "")

	case *protocol.JoinLobby:
		h.joinRoom(c, seq, msg.RoomCode, msg.PlayerName, msg.Password)

	case *protocol.ToggleReady:
		r := h.roomOf(c)
		if r == nil {
			h.send(c, protocol.NewErrAck(seq, ErrNoRoom))
			return
		}
		ready, ok := r.ToggleReady(c.id)
		if !ok {
			h.send(c, protocol.NewErrAck(seq, ErrNoRoom))
			return
		}
		h.broadcastRoom(r)
		h.send(c, protocol.NewAck(seq, protocol.ToggleReadyResult{Ready: ready}))

	case *protocol.SwitchTeam:
		r := h.roomOf(c)
		if r == nil {
			return
		}
		if r.SetTeam(c.id, msg.Team) {
			h.broadcastRoom(r)
		}

	case *protocol.StartGame:
		h.startGame(c, seq)

	case *protocol.GetLobbies:
		list := []protocol.LobbySummary{}
		for _, r := range h.rooms {
			if r.Discoverable() {
				list = append(list, r.Summary())
			}
		}
		h.send(c, protocol.NewAck(seq, protocol.LobbiesResult{Lobbies: list}))

	case *protocol.GetPlayerCount:
		h.send(c, protocol.NewAck(seq, protocol.PlayerCountResult{Count: len(h.conns)}))

	case *protocol.LeaveRoom:
		h.leaveRoom(c)

	case *protocol.BuildingPlaced:
		if ev, ok := h.gameplayEvent(c, msg.EntityEvent); ok {
			h.broadcastOthers(c, &protocol.BuildingPlaced{EntityEvent: ev})
		}

	case *protocol.UnitSpawned:
		if ev, ok := h.gameplayEvent(c, msg.EntityEvent); ok {
			h.broadcastOthers(c, &protocol.UnitSpawned{EntityEvent: ev})
		}

	case *protocol.GameSnapshot:
		r := h.roomOf(c)
		if r == nil || r.HostID != c.id {
			return
		}
		r.LastState = msg
		r.LastUpdate = time.Now()
		h.broadcastOthers(c, msg)

	case *protocol.CastleDamage:
		r := h.roomOf(c)
		if r == nil || r.Status != room.StatusPlaying {
			return
		}
		for _, id := range r.MemberIDs() {
			if mc, ok := h.conns[id]; ok {
				h.send(mc, msg)
			}
		}

	case *protocol.GameOver:
		r := h.roomOf(c)
		if r == nil || r.Status != room.StatusPlaying {
			return
		}
		r.Finish(msg.Winner)
		h.log.Info("game over",
			zap.String("room", r.Code),
			zap.Int("winner", msg.Winner))
		for _, id := range r.MemberIDs() {
			if mc, ok := h.conns[id]; ok {
				h.send(mc, msg)
			}
		}
	}
}

func (h *Hub) createRoom(c *conn, seq uint64, mode, playerName string, opts room.Options, lobby bool) {
	m, err := room.ParseMode(mode)
	if err != nil {
		h.send(c, protocol.NewErrAck(seq, err))
		return
	}

	// Creating while already in a room implies leaving it first.
	h.leaveRoom(c)

	code, err := h.newCode()
	if err != nil {
		h.send(c, protocol.NewErrAck(seq, err))
		return
	}

	r := room.New(code, m, opts)
	if _, err := r.Join(c.id, playerName, opts.Password); err != nil {
		h.send(c, protocol.NewErrAck(seq, err))
		return
	}
	h.rooms[code] = r
	c.roomCode = code

	h.log.Info("room created",
		zap.String("room", code),
		zap.String("mode", string(m)),
		zap.Bool("public", r.Public))

	if lobby {
		h.send(c, protocol.NewAck(seq, protocol.CreateLobbyResult{
			RoomCode: code,
			Room:     r.Serialize(),
			RoomName: r.Name,
		}))
	} else {
		h.send(c, protocol.NewAck(seq, protocol.CreateRoomResult{
			RoomCode: code,
			Room:     r.Serialize(),
		}))
	}
	h.broadcastRoom(r)
	if r.Discoverable() {
		h.broadcastLobbies()
	}
}

// newCode retries generation until the code is unused. The 32^6 keyspace
// makes more than one retry vanishingly rare.
func (h *Hub) newCode() (string, error) {
	for {
		code, err := room.GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.rooms[code]; !taken {
			return code, nil
		}
		h.log.Warn("room code collision, regenerating", zap.String("code", code))
	}
}

func (h *Hub) joinRoom(c *conn, seq uint64, code, playerName, password string) {
	r, ok := h.rooms[room.NormalizeCode(code)]
	if !ok {
		h.send(c, protocol.NewErrAck(seq, room.ErrNotFound))
		return
	}

	h.leaveRoom(c)

	p, err := r.Join(c.id, playerName, password)
	if err != nil {
		h.send(c, protocol.NewErrAck(seq, err))
		return
	}
	c.roomCode = r.Code

	h.log.Info("player joined",
		zap.String("room", r.Code),
		zap.String("player", playerName),
		zap.Int("team", p.Team))

	h.send(c, protocol.NewAck(seq, protocol.JoinResult{Room: r.Serialize(), Team: p.Team}))
	h.broadcastRoom(r)
	if r.Discoverable() {
		h.broadcastLobbies()
	}
}

func (h *Hub) startGame(c *conn, seq uint64) {
	r := h.roomOf(c)
	if r == nil {
		h.send(c, protocol.NewErrAck(seq, ErrNoRoom))
		return
	}

	wasDiscoverable := r.Discoverable()
	if err := r.Start(c.id); err != nil {
		h.send(c, protocol.NewErrAck(seq, err))
		return
	}

	h.log.Info("game started", zap.String("room", r.Code))

	info := r.Serialize()
	for _, id := range r.MemberIDs() {
		if mc, ok := h.conns[id]; ok {
			h.send(mc, &protocol.GameStart{Room: info})
		}
	}
	h.send(c, protocol.NewAck(seq, nil))
	if wasDiscoverable {
		h.broadcastLobbies()
	}
}

// gameplayEvent validates an entity event's context and stamps the sender's
// team on it. The payload's own senderTeam is never trusted.
func (h *Hub) gameplayEvent(c *conn, ev protocol.EntityEvent) (protocol.EntityEvent, bool) {
	r := h.roomOf(c)
	if r == nil || r.Status != room.StatusPlaying {
		return ev, false
	}
	p, ok := r.Player(c.id)
	if !ok {
		return ev, false
	}
	ev.SenderTeam = p.Team
	return ev, true
}

func (h *Hub) roomOf(c *conn) *room.Room {
	if c.roomCode == "" {
		return nil
	}
	return h.rooms[c.roomCode]
}

// leaveRoom removes the connection from its current room, tearing the room
// down if it empties and migrating the host role otherwise.
func (h *Hub) leaveRoom(c *conn) {
	r := h.roomOf(c)
	c.roomCode = ""
	if r == nil {
		return
	}

	wasDiscoverable := r.Discoverable()
	_, newHost := r.Leave(c.id)

	if r.Len() == 0 {
		delete(h.rooms, r.Code)
		h.log.Info("room deleted", zap.String("room", r.Code))
		if wasDiscoverable {
			h.broadcastLobbies()
		}
		return
	}

	if newHost != nil {
		h.log.Info("host migrated",
			zap.String("room", r.Code),
			zap.String("newHost", newHost.ID))
		for _, id := range r.MemberIDs() {
			if mc, ok := h.conns[id]; ok {
				h.send(mc, &protocol.HostChanged{NewHostID: newHost.ID})
			}
		}
	}
	h.broadcastRoom(r)
	if r.Discoverable() {
		h.broadcastLobbies()
	}
}

// sweepFinished tears down rooms stuck in finished with players attached.
func (h *Hub) sweepFinished(now time.Time) {
	if h.finishedTTL <= 0 {
		return
	}
	for code, r := range h.rooms {
		if r.Status != room.StatusFinished || now.Sub(r.FinishedAt) < h.finishedTTL {
			continue
		}
		info := r.Serialize()
		for _, id := range r.MemberIDs() {
			if mc, ok := h.conns[id]; ok {
				mc.roomCode = ""
				h.send(mc, &protocol.RoomUpdate{Room: info})
			}
		}
		delete(h.rooms, code)
		h.log.Info("finished room expired", zap.String("room", code))
	}
}

func (h *Hub) broadcastRoom(r *room.Room) {
	info := r.Serialize()
	for _, id := range r.MemberIDs() {
		if c, ok := h.conns[id]; ok {
			h.send(c, &protocol.RoomUpdate{Room: info})
		}
	}
}

func (h *Hub) broadcastOthers(sender *conn, m protocol.ServerMsg) {
	r := h.roomOf(sender)
	if r == nil {
		return
	}
	for _, id := range r.MemberIDs() {
		if id == sender.id {
			continue
		}
		if c, ok := h.conns[id]; ok {
			h.send(c, m)
		}
	}
}

// broadcastLobbies is signal-only: recipients re-poll getLobbies.
func (h *Hub) broadcastLobbies() {
	for _, c := range h.conns {
		h.send(c, &protocol.LobbiesUpdate{})
	}
}

func (h *Hub) broadcastPlayerCount() {
	count := len(h.conns)
	for _, c := range h.conns {
		h.send(c, &protocol.PlayerCountUpdate{Count: count})
	}
}

// send never blocks the loop. A connection that cannot drain its outbox is
// dropped the same way a disconnect would drop it.
func (h *Hub) send(c *conn, m protocol.ServerMsg) {
	if _, live := h.conns[c.id]; !live {
		return
	}
	select {
	case c.outbox <- m:
	default:
		h.log.Warn("dropping slow connection", zap.String("conn", c.id))
		delete(h.conns, c.id)
		h.leaveRoom(c)
		close(c.outbox)
	}
}
