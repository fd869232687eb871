package protocol

// Entity and snapshot payloads shared by the relay server and game clients.
//
// All coordinates on the wire are world-frame: team 1's left edge is x=0.
// Each client mirrors into its own local frame on receipt (see pkg/session).

// EntityEvent is a discrete spawn/placement announcement. The id is chosen
// by the side that created the entity and is never reused.
type EntityEvent struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	HP         int     `json:"hp"`
	MaxHP      int     `json:"maxHp"`
	SenderTeam int     `json:"senderTeam"`
}

// EntityState is one live unit or building inside a periodic snapshot.
type EntityState struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	HP    int     `json:"hp"`
	Alive bool    `json:"alive"`
	Team  int     `json:"team"`
}

type CastleState struct {
	HP    int  `json:"hp"`
	Alive bool `json:"alive"`
}

type Castles struct {
	Team1 CastleState `json:"team1"`
	Team2 CastleState `json:"team2"`
}

// GameSnapshot is the host's full authoritative state, sent every sync tick
// whether or not anything changed. Guests reconcile against it by entity id.
type GameSnapshot struct {
	Units     []EntityState `json:"units"`
	Buildings []EntityState `json:"buildings"`
	Castles   Castles       `json:"castles"`
	Timestamp int64         `json:"timestamp"`
}

func (*GameSnapshot) isClientMsg() {}
func (*GameSnapshot) isServerMsg() {}
