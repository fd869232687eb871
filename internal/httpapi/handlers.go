package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ageofblocks/netplay/internal/hub"
)

// Health returns process-wide room and player counts, same shape as the
// status probe game launchers poll.
func Health(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan hub.Stats, 1)
		h.Inbox() <- hub.GetStats{Reply: reply}

		var stats hub.Stats
		select {
		case stats = <-reply:
		case <-time.After(2 * time.Second):
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Status  string `json:"status"`
			Rooms   int    `json:"rooms"`
			Players int    `json:"players"`
		}{Status: "ok", Rooms: stats.Rooms, Players: stats.Players})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
