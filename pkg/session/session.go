// Package session is the client half of the relay protocol: the room
// workflow, the host's periodic state broadcast, and the guest-side entity
// reconciliation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/ageofblocks/netplay/pkg/protocol"
)

var ErrClosed = errors.New("session closed")

// Callbacks are the application's slots for room and gameplay events. They
// run on the session's read goroutine, one at a time.
type Callbacks struct {
	OnPlayersUpdate     func(players map[string]protocol.PlayerInfo)
	OnGameStart         func(room protocol.RoomInfo)
	OnBuildingPlaced    func(ev protocol.EntityEvent)
	OnUnitSpawned       func(ev protocol.EntityEvent)
	OnGameState         func(snap protocol.GameSnapshot)
	OnCastleDamage      func(dmg protocol.CastleDamage)
	OnGameOver          func(winner int)
	OnHostChanged       func(newHostID string)
	OnLobbiesUpdate     func()
	OnPlayerCountUpdate func(count int)
}

type Option func(*Session)

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

func WithColumns(cols int) Option {
	return func(s *Session) { s.cols = cols }
}

// WithSyncRate overrides the host snapshot interval.
func WithSyncRate(d time.Duration) Option {
	return func(s *Session) { s.syncRate = d }
}

// Session wraps one connection to the relay. It lazily dials on the first
// room operation.
type Session struct {
	url      string
	log      *zap.Logger
	cb       Callbacks
	cols     int
	syncRate time.Duration

	writeMu sync.Mutex // serializes frame writes

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	connID   string
	welcomed chan struct{}
	seq      uint64
	pending  map[uint64]chan *protocol.Ack

	roomCode string
	team     int
	mode     string
	isHost   bool
	playing  bool

	source SnapshotSource
	sync   *HostSynchronizer
}

// New builds a session for the given websocket URL (e.g.
// "ws://localhost:3001/ws"). Callbacks must be registered up front; they
// may fire as soon as the first operation dials.
func New(url string, cb Callbacks, opts ...Option) *Session {
	s := &Session{
		url:      url,
		log:      zap.NewNop(),
		cb:       cb,
		cols:     DefaultColumns,
		syncRate: DefaultSyncRate,
		team:     1,
		pending:  make(map[uint64]chan *protocol.Ack),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

func (s *Session) Team() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.team
}

func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

func (s *Session) ConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// SetSimulation attaches the authoritative simulation. Required before this
// session can act as host; the synchronizer reads from it every sync tick.
func (s *Session) SetSimulation(src SnapshotSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

// connect dials lazily and waits for the server's welcome so the session
// knows its connection id before any room operation completes.
func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		welcomed := s.welcomed
		s.mu.Unlock()
		return s.awaitWelcome(ctx, welcomed)
	}

	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	conn.SetReadLimit(1 << 20)
	s.conn = conn
	s.welcomed = make(chan struct{})
	welcomed := s.welcomed
	s.mu.Unlock()

	go s.readLoop(conn)
	return s.awaitWelcome(ctx, welcomed)
}

func (s *Session) awaitWelcome(ctx context.Context, welcomed chan struct{}) error {
	select {
	case <-welcomed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) write(ctx context.Context, seq uint64, m protocol.ClientMsg) error {
	payload, err := protocol.EncodeClient(seq, m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, payload)
}

// request sends a message and waits for the matching ack.
func (s *Session) request(ctx context.Context, m protocol.ClientMsg) (*protocol.Ack, error) {
	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	ch := make(chan *protocol.Ack, 1)
	s.pending[seq] = ch
	s.mu.Unlock()

	if err := s.write(ctx, seq, m); err != nil {
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return ack, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// emit sends a fire-and-forget message; no ack will come back.
func (s *Session) emit(ctx context.Context, m protocol.ClientMsg) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	return s.write(ctx, 0, m)
}

func result[T any](ack *protocol.Ack) (T, error) {
	var out T
	if !ack.Success {
		return out, errors.New(ack.Error)
	}
	if len(ack.Data) > 0 {
		if err := json.Unmarshal(ack.Data, &out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// CreateRoom creates a private room and makes this session its host on
// team 1. Returns the shareable code.
func (s *Session) CreateRoom(ctx context.Context, mode, playerName string) (string, protocol.RoomInfo, error) {
	ack, err := s.request(ctx, &protocol.CreateRoom{Mode: mode, PlayerName: playerName})
	if err != nil {
		return "", protocol.RoomInfo{}, err
	}
	res, err := result[protocol.CreateRoomResult](ack)
	if err != nil {
		return "", protocol.RoomInfo{}, err
	}

	s.mu.Lock()
	s.roomCode = res.RoomCode
	s.isHost = true
	s.team = 1
	s.mode = res.Room.Mode
	s.mu.Unlock()
	return res.RoomCode, res.Room, nil
}

// CreateLobby creates a discoverable (or password-gated) room.
func (s *Session) CreateLobby(ctx context.Context, roomName, playerName string, public bool, password string) (string, protocol.RoomInfo, error) {
	ack, err := s.request(ctx, &protocol.CreateLobby{
		RoomName:   roomName,
		PlayerName: playerName,
		IsPublic:   public,
		Password:   password,
	})
	if err != nil {
		return "", protocol.RoomInfo{}, err
	}
	res, err := result[protocol.CreateLobbyResult](ack)
	if err != nil {
		return "", protocol.RoomInfo{}, err
	}

	s.mu.Lock()
	s.roomCode = res.RoomCode
	s.isHost = true
	s.team = 1
	s.mode = res.Room.Mode
	s.mu.Unlock()
	return res.RoomCode, res.Room, nil
}

func (s *Session) JoinRoom(ctx context.Context, roomCode, playerName string) (protocol.RoomInfo, int, error) {
	return s.join(ctx, &protocol.JoinRoom{RoomCode: roomCode, PlayerName: playerName})
}

func (s *Session) JoinLobby(ctx context.Context, roomCode, playerName, password string) (protocol.RoomInfo, int, error) {
	return s.join(ctx, &protocol.JoinLobby{RoomCode: roomCode, PlayerName: playerName, Password: password})
}

func (s *Session) join(ctx context.Context, m protocol.ClientMsg) (protocol.RoomInfo, int, error) {
	ack, err := s.request(ctx, m)
	if err != nil {
		return protocol.RoomInfo{}, 0, err
	}
	res, err := result[protocol.JoinResult](ack)
	if err != nil {
		return protocol.RoomInfo{}, 0, err
	}

	s.mu.Lock()
	s.roomCode = res.Room.Code
	s.isHost = false
	s.team = res.Team
	s.mode = res.Room.Mode
	s.mu.Unlock()
	return res.Room, res.Team, nil
}

func (s *Session) ToggleReady(ctx context.Context) (bool, error) {
	ack, err := s.request(ctx, &protocol.ToggleReady{})
	if err != nil {
		return false, err
	}
	res, err := result[protocol.ToggleReadyResult](ack)
	return res.Ready, err
}

// SetTeam requests a side switch. Fire-and-forget; the roster broadcast
// confirms it.
func (s *Session) SetTeam(ctx context.Context, team int) error {
	return s.emit(ctx, &protocol.SwitchTeam{Team: team})
}

func (s *Session) StartGame(ctx context.Context) error {
	ack, err := s.request(ctx, &protocol.StartGame{})
	if err != nil {
		return err
	}
	_, err = result[struct{}](ack)
	return err
}

func (s *Session) Lobbies(ctx context.Context) ([]protocol.LobbySummary, error) {
	ack, err := s.request(ctx, &protocol.GetLobbies{})
	if err != nil {
		return nil, err
	}
	res, err := result[protocol.LobbiesResult](ack)
	return res.Lobbies, err
}

func (s *Session) PlayerCount(ctx context.Context) (int, error) {
	ack, err := s.request(ctx, &protocol.GetPlayerCount{})
	if err != nil {
		return 0, err
	}
	res, err := result[protocol.PlayerCountResult](ack)
	return res.Count, err
}

// SendBuildingPlaced announces a locally placed building, converting the
// local coordinates to the world frame.
func (s *Session) SendBuildingPlaced(ctx context.Context, e LocalEntity) error {
	return s.emit(ctx, &protocol.BuildingPlaced{EntityEvent: s.entityEvent(e)})
}

// SendUnitSpawned announces a locally spawned unit.
func (s *Session) SendUnitSpawned(ctx context.Context, e LocalEntity) error {
	return s.emit(ctx, &protocol.UnitSpawned{EntityEvent: s.entityEvent(e)})
}

func (s *Session) entityEvent(e LocalEntity) protocol.EntityEvent {
	s.mu.Lock()
	team := s.team
	s.mu.Unlock()
	return protocol.EntityEvent{
		ID:         e.ID,
		Type:       e.Type,
		X:          ToWorld(team, e.X, s.cols),
		Y:          e.Y,
		HP:         e.HP,
		MaxHP:      e.MaxHP,
		SenderTeam: team,
	}
}

// SendCastleDamage relays a castle hit for impact effects on other clients.
func (s *Session) SendCastleDamage(ctx context.Context, dmg protocol.CastleDamage) error {
	return s.emit(ctx, &protocol.CastleDamage{Team: dmg.Team, Amount: dmg.Amount, HP: dmg.HP})
}

// LeaveRoom stops the synchronizer, tells the server, and forgets all
// room-scoped state. This is the session's only cancellation primitive.
func (s *Session) LeaveRoom() {
	s.stopSync()

	s.mu.Lock()
	conn := s.conn
	s.roomCode = ""
	s.isHost = false
	s.playing = false
	s.mu.Unlock()

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.write(ctx, 0, &protocol.LeaveRoom{})
	}
}

// Close leaves any room and tears down the connection.
func (s *Session) Close() {
	s.LeaveRoom()

	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.failPending()

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			s.log.Debug("session read ended", zap.Error(err))
			return
		}
		m, err := protocol.DecodeServer(data)
		if err != nil {
			s.log.Debug("bad server frame", zap.Error(err))
			continue
		}
		s.dispatch(m)
	}
}

func (s *Session) failPending() {
	s.mu.Lock()
	for seq, ch := range s.pending {
		close(ch)
		delete(s.pending, seq)
	}
	s.mu.Unlock()
}

func (s *Session) dispatch(m protocol.ServerMsg) {
	switch msg := m.(type) {
	case *protocol.Welcome:
		s.mu.Lock()
		s.connID = msg.ConnID
		welcomed := s.welcomed
		s.mu.Unlock()
		select {
		case <-welcomed:
		default:
			close(welcomed)
		}

	case *protocol.Ack:
		s.mu.Lock()
		ch, ok := s.pending[msg.Seq]
		if ok {
			delete(s.pending, msg.Seq)
		}
		s.mu.Unlock()
		if ok {
			ch <- msg
		}

	case *protocol.RoomUpdate:
		s.mu.Lock()
		if p, ok := msg.Room.Players[s.connID]; ok {
			s.team = p.Team
		}
		s.mu.Unlock()
		if s.cb.OnPlayersUpdate != nil {
			s.cb.OnPlayersUpdate(msg.Room.Players)
		}

	case *protocol.HostChanged:
		s.hostChanged(msg.NewHostID)

	case *protocol.GameStart:
		s.mu.Lock()
		s.playing = true
		start := s.isHost && s.source != nil
		s.mu.Unlock()
		if start {
			s.startSync()
		}
		if s.cb.OnGameStart != nil {
			s.cb.OnGameStart(msg.Room)
		}

	case *protocol.BuildingPlaced:
		if s.cb.OnBuildingPlaced != nil {
			s.cb.OnBuildingPlaced(msg.EntityEvent)
		}

	case *protocol.UnitSpawned:
		if s.cb.OnUnitSpawned != nil {
			s.cb.OnUnitSpawned(msg.EntityEvent)
		}

	case *protocol.GameSnapshot:
		if s.cb.OnGameState != nil {
			s.cb.OnGameState(*msg)
		}

	case *protocol.CastleDamage:
		if s.cb.OnCastleDamage != nil {
			s.cb.OnCastleDamage(*msg)
		}

	case *protocol.GameOver:
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
		s.stopSync()
		if s.cb.OnGameOver != nil {
			s.cb.OnGameOver(msg.Winner)
		}

	case *protocol.LobbiesUpdate:
		if s.cb.OnLobbiesUpdate != nil {
			s.cb.OnLobbiesUpdate()
		}

	case *protocol.PlayerCountUpdate:
		if s.cb.OnPlayerCountUpdate != nil {
			s.cb.OnPlayerCountUpdate(msg.Count)
		}
	}
}

// hostChanged handles host migration. Becoming host always (re)arms the
// synchronizer when a match is in progress, so the snapshot stream resumes
// without the application having to remember to do it.
func (s *Session) hostChanged(newHostID string) {
	s.mu.Lock()
	becameMe := newHostID == s.connID
	if becameMe {
		s.isHost = true
	}
	start := becameMe && s.playing && s.source != nil
	s.mu.Unlock()

	if start {
		s.startSync()
	}
	if s.cb.OnHostChanged != nil {
		s.cb.OnHostChanged(newHostID)
	}
}

func (s *Session) startSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sync != nil || s.source == nil {
		return
	}
	s.sync = newHostSynchronizer(s, s.source, s.syncRate)
	go s.sync.run()
}

func (s *Session) stopSync() {
	s.mu.Lock()
	hs := s.sync
	s.sync = nil
	s.mu.Unlock()
	if hs != nil {
		hs.stop()
	}
}
