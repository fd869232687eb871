package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("unknown message type")

// Envelope is the outer wire frame. Requests carry a client-chosen seq and
// are answered by an Ack echoing it; fire-and-forget messages use seq 0.
type Envelope struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClientMsg is the closed set of messages a client may send.
type ClientMsg interface{ isClientMsg() }

// ServerMsg is the closed set of messages the server may send.
type ServerMsg interface{ isServerMsg() }

// Client -> Server requests (acked).

type CreateRoom struct {
	Mode       string `json:"mode"`
	PlayerName string `json:"playerName"`
}

type CreateLobby struct {
	RoomName   string `json:"roomName"`
	PlayerName string `json:"playerName"`
	IsPublic   bool   `json:"isPublic"`
	Password   string `json:"password,omitempty"`
}

type JoinRoom struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type JoinLobby struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
	Password   string `json:"password,omitempty"`
}

type ToggleReady struct{}

type StartGame struct{}

type GetLobbies struct{}

type GetPlayerCount struct{}

// Client -> Server fire-and-forget.

type SwitchTeam struct {
	// Team 1 or 2 selects a side; anything else toggles.
	Team int `json:"team"`
}

type LeaveRoom struct{}

type BuildingPlaced struct {
	EntityEvent
}

type UnitSpawned struct {
	EntityEvent
}

type CastleDamage struct {
	Team   int `json:"team"`
	Amount int `json:"amount"`
	HP     int `json:"hp"`
}

type GameOver struct {
	Winner int `json:"winner"`
}

func (*CreateRoom) isClientMsg()     {}
func (*CreateLobby) isClientMsg()    {}
func (*JoinRoom) isClientMsg()       {}
func (*JoinLobby) isClientMsg()      {}
func (*ToggleReady) isClientMsg()    {}
func (*StartGame) isClientMsg()      {}
func (*GetLobbies) isClientMsg()     {}
func (*GetPlayerCount) isClientMsg() {}
func (*SwitchTeam) isClientMsg()     {}
func (*LeaveRoom) isClientMsg()      {}
func (*BuildingPlaced) isClientMsg() {}
func (*UnitSpawned) isClientMsg()    {}
func (*CastleDamage) isClientMsg()   {}
func (*GameOver) isClientMsg()       {}

// Server -> Client.

// Welcome tells a freshly accepted connection its identifier. Clients need
// it to recognize a hostChanged event naming themselves.
type Welcome struct {
	ConnID string `json:"connId"`
}

// Ack answers the request with the matching seq.
type Ack struct {
	Seq     uint64          `json:"seq"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type RoomUpdate struct {
	Room RoomInfo `json:"room"`
}

type HostChanged struct {
	NewHostID string `json:"newHostId"`
}

type GameStart struct {
	Room RoomInfo `json:"room"`
}

type LobbiesUpdate struct{}

type PlayerCountUpdate struct {
	Count int `json:"count"`
}

func (*Welcome) isServerMsg()           {}
func (*Ack) isServerMsg()               {}
func (*RoomUpdate) isServerMsg()        {}
func (*HostChanged) isServerMsg()       {}
func (*GameStart) isServerMsg()         {}
func (*LobbiesUpdate) isServerMsg()     {}
func (*PlayerCountUpdate) isServerMsg() {}
func (*BuildingPlaced) isServerMsg()    {}
func (*UnitSpawned) isServerMsg()       {}
func (*CastleDamage) isServerMsg()      {}
func (*GameOver) isServerMsg()          {}

// Roster and discovery payloads.

type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Team   int    `json:"team"`
	Ready  bool   `json:"ready"`
	IsHost bool   `json:"isHost"`
}

type RoomInfo struct {
	Code       string                `json:"code"`
	Mode       string                `json:"mode"`
	Status     string                `json:"status"`
	Players    map[string]PlayerInfo `json:"players"`
	MaxPlayers int                   `json:"maxPlayers"`
}

type LobbySummary struct {
	Code        string `json:"code"`
	RoomName    string `json:"roomName"`
	HostName    string `json:"hostName"`
	Players     int    `json:"players"`
	MaxPlayers  int    `json:"maxPlayers"`
	HasPassword bool   `json:"hasPassword"`
	CreatedAt   int64  `json:"createdAt"`
}

// Ack result payloads, marshaled into Ack.Data.

type CreateRoomResult struct {
	RoomCode string   `json:"roomCode"`
	Room     RoomInfo `json:"room"`
}

type CreateLobbyResult struct {
	RoomCode string   `json:"roomCode"`
	Room     RoomInfo `json:"room"`
	RoomName string   `json:"roomName"`
}

type JoinResult struct {
	Room RoomInfo `json:"room"`
	Team int      `json:"team"`
}

type ToggleReadyResult struct {
	Ready bool `json:"ready"`
}

type LobbiesResult struct {
	Lobbies []LobbySummary `json:"lobbies"`
}

type PlayerCountResult struct {
	Count int `json:"count"`
}

// Wire tags.
const (
	TagCreateRoom     = "createRoom"
	TagCreateLobby    = "createLobby"
	TagJoinRoom       = "joinRoom"
	TagJoinLobby      = "joinLobby"
	TagToggleReady    = "toggleReady"
	TagSwitchTeam     = "switchTeam"
	TagStartGame      = "startGame"
	TagGetLobbies     = "getLobbies"
	TagGetPlayerCount = "getPlayerCount"
	TagLeaveRoom      = "leaveRoom"

	TagBuildingPlaced = "buildingPlaced"
	TagUnitSpawned    = "unitSpawned"
	TagGameStateSync  = "gameStateSync"
	TagCastleDamage   = "castleDamage"
	TagGameOver       = "gameOver"

	TagWelcome           = "welcome"
	TagAck               = "ack"
	TagRoomUpdate        = "roomUpdate"
	TagHostChanged       = "hostChanged"
	TagGameStart         = "gameStart"
	TagLobbiesUpdate     = "lobbiesUpdate"
	TagPlayerCountUpdate = "playerCountUpdate"
)

func clientTag(m ClientMsg) string {
	switch m.(type) {
	case *CreateRoom:
		return TagCreateRoom
	case *CreateLobby:
		return TagCreateLobby
	case *JoinRoom:
		return TagJoinRoom
	case *JoinLobby:
		return TagJoinLobby
	case *ToggleReady:
		return TagToggleReady
	case *SwitchTeam:
		return TagSwitchTeam
	case *StartGame:
		return TagStartGame
	case *GetLobbies:
		return TagGetLobbies
	case *GetPlayerCount:
		return TagGetPlayerCount
	case *LeaveRoom:
		return TagLeaveRoom
	case *BuildingPlaced:
		return TagBuildingPlaced
	case *UnitSpawned:
		return TagUnitSpawned
	case *GameSnapshot:
		return TagGameStateSync
	case *CastleDamage:
		return TagCastleDamage
	case *GameOver:
		return TagGameOver
	}
	return ""
}

func serverTag(m ServerMsg) string {
	switch m.(type) {
	case *Welcome:
		return TagWelcome
	case *Ack:
		return TagAck
	case *RoomUpdate:
		return TagRoomUpdate
	case *HostChanged:
		return TagHostChanged
	case *GameStart:
		return TagGameStart
	case *LobbiesUpdate:
		return TagLobbiesUpdate
	case *PlayerCountUpdate:
		return TagPlayerCountUpdate
	case *BuildingPlaced:
		return TagBuildingPlaced
	case *UnitSpawned:
		return TagUnitSpawned
	case *GameSnapshot:
		return TagGameStateSync
	case *CastleDamage:
		return TagCastleDamage
	case *GameOver:
		return TagGameOver
	}
	return ""
}

// EncodeClient frames a client message. Pass seq 0 for fire-and-forget.
func EncodeClient(seq uint64, m ClientMsg) ([]byte, error) {
	tag := clientTag(m)
	if tag == "" {
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: tag, Seq: seq, Data: data})
}

// DecodeClient parses one inbound frame at the router boundary, returning a
// statically-known payload shape.
func DecodeClient(raw []byte) (ClientMsg, uint64, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, err
	}

	var m ClientMsg
	switch env.Type {
	case TagCreateRoom:
		m = &CreateRoom{}
	case TagCreateLobby:
		m = &CreateLobby{}
	case TagJoinRoom:
		m = &JoinRoom{}
	case TagJoinLobby:
		m = &JoinLobby{}
	case TagToggleReady:
		m = &ToggleReady{}
	case TagSwitchTeam:
		m = &SwitchTeam{}
	case TagStartGame:
		m = &StartGame{}
	case TagGetLobbies:
		m = &GetLobbies{}
	case TagGetPlayerCount:
		m = &GetPlayerCount{}
	case TagLeaveRoom:
		m = &LeaveRoom{}
	case TagBuildingPlaced:
		m = &BuildingPlaced{}
	case TagUnitSpawned:
		m = &UnitSpawned{}
	case TagGameStateSync:
		m = &GameSnapshot{}
	case TagCastleDamage:
		m = &CastleDamage{}
	case TagGameOver:
		m = &GameOver{}
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, m); err != nil {
			return nil, 0, err
		}
	}
	return m, env.Seq, nil
}

// EncodeServer frames a server message.
func EncodeServer(m ServerMsg) ([]byte, error) {
	tag := serverTag(m)
	if tag == "" {
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: tag, Data: data})
}

// DecodeServer parses one server frame on the client side.
func DecodeServer(raw []byte) (ServerMsg, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	var m ServerMsg
	switch env.Type {
	case TagWelcome:
		m = &Welcome{}
	case TagAck:
		m = &Ack{}
	case TagRoomUpdate:
		m = &RoomUpdate{}
	case TagHostChanged:
		m = &HostChanged{}
	case TagGameStart:
		m = &GameStart{}
	case TagLobbiesUpdate:
		m = &LobbiesUpdate{}
	case TagPlayerCountUpdate:
		m = &PlayerCountUpdate{}
	case TagBuildingPlaced:
		m = &BuildingPlaced{}
	case TagUnitSpawned:
		m = &UnitSpawned{}
	case TagGameStateSync:
		m = &GameSnapshot{}
	case TagCastleDamage:
		m = &CastleDamage{}
	case TagGameOver:
		m = &GameOver{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewAck builds a success ack, marshaling result into Ack.Data.
func NewAck(seq uint64, result any) *Ack {
	a := &Ack{Seq: seq, Success: true}
	if result != nil {
		data, err := json.Marshal(result)
		if err == nil {
			a.Data = data
		}
	}
	return a
}

// NewErrAck builds a failure ack carrying the error string.
func NewErrAck(seq uint64, err error) *Ack {
	return &Ack{Seq: seq, Success: false, Error: err.Error()}
}
