package session

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultColumns is the game board width in grid cells.
const DefaultColumns = 30

// ToWorld converts a local-frame x coordinate into the shared world frame.
// Team 1's local frame is the world frame; team 2's is mirrored on X. The
// mapping is an involution, so it also converts world back to local.
func ToWorld(team int, x float64, cols int) float64 {
	if team == 1 {
		return x
	}
	return float64(cols-1) - x
}

// ToLocal converts a world-frame x into the viewer's local frame.
func ToLocal(team int, x float64, cols int) float64 {
	return ToWorld(team, x, cols)
}

// NewSyncID mints a durable entity id for a locally spawned unit or
// building. Ids are chosen by the spawning side and never reused.
func NewSyncID(kind string) string {
	return fmt.Sprintf("%s_%s", kind, uuid.NewString())
}
