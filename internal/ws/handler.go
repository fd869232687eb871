package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ageofblocks/netplay/internal/hub"
	"github.com/ageofblocks/netplay/pkg/protocol"
)

const (
	outboxSize   = 64
	writeTimeout = 3 * time.Second

	// Snapshots for a busy match can outgrow the library default.
	maxFrameBytes = 1 << 20
)

// Handler upgrades the connection and shuttles frames between it and the
// hub. The read side ending, for any reason, counts as a leave.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // game clients connect from any origin
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(maxFrameBytes)

		connID := uuid.NewString()
		out := make(chan protocol.ServerMsg, outboxSize)

		h.Inbox() <- hub.Register{ConnID: connID, Outbox: out}
		defer func() { h.Inbox() <- hub.Unregister{ConnID: connID} }()

		log.Debug("connection opened", zap.String("conn", connID))

		// Writer goroutine: drains the outbox until the hub closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for m := range out {
				payload, err := protocol.EncodeServer(m)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read ended", zap.String("conn", connID), zap.Error(err))
				}
				return
			}

			m, seq, err := protocol.DecodeClient(data)
			if err != nil {
				// Malformed frames are dropped with no reply.
				log.Debug("bad frame", zap.String("conn", connID), zap.Error(err))
				continue
			}

			h.Inbox() <- hub.FromClient{ConnID: connID, Seq: seq, Msg: m}
		}
	}
}
