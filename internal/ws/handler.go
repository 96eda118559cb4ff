package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/driftsync/internal/hub"
	"github.com/DoyleJ11/driftsync/internal/room"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	helloTimeout = 10 * time.Second
	pingInterval = 15 * time.Second
)

// Handler upgrades /ws?room=<name>. The first frame must be a Join; after
// that every frame is relayed into the room and the room's traffic is
// written back until either side goes away.
func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("room")
		if name == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}

		rm := h.Lookup(r.Context(), name)
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := logger.With(zap.String("conn", uuid.NewString()), zap.String("room", name))

		helloCtx, cancel := context.WithTimeout(r.Context(), helloTimeout)
		hello, err := readFrame(helloCtx, conn)
		cancel()
		if err != nil || hello.Type != types.ClientJoin {
			writeError(r.Context(), conn, "expected Join")
			return
		}

		out := make(chan types.ServerMessage, 64)
		self, err := rm.Join(r.Context(), hello.Name, hello.Props, out)
		if err != nil {
			writeError(r.Context(), conn, err.Error())
			return
		}
		log = log.With(zap.Int32("actor", int32(self)))
		log.Info("member connected")
		defer func() {
			_ = rm.Send(context.Background(), room.Leave{Actor: self})
			log.Info("member disconnected")
		}()

		connCtx, connCancel := context.WithCancel(r.Context())
		defer connCancel()

		// Writer goroutine. The room closes out when we left or were dropped.
		go func() {
			defer connCancel()
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("marshal relay frame", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(connCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					log.Debug("write failed", zap.Error(err))
					return
				}
			}
			_ = conn.Close(websocket.StatusNormalClosure, "left room")
		}()

		go keepAlive(connCtx, conn, log)

		// Reader loop
		for {
			cm, err := readFrame(connCtx, conn)
			if err != nil {
				if errors.Is(err, errBadFrame) {
					writeError(connCtx, conn, "bad json")
					continue
				}
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}
			if cm.Type == types.ClientLeave {
				_ = rm.Send(connCtx, room.Leave{Actor: self})
				continue
			}
			if err := rm.Send(connCtx, room.FromClient{Actor: self, Msg: cm}); err != nil {
				return
			}
		}
	}
}

func keepAlive(ctx context.Context, conn *websocket.Conn, log *zap.Logger) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
