package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/DoyleJ11/driftsync/internal/hub"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"go.uber.org/zap"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// CreateRoom registers a room. An empty name asks the relay to pick a
// free code; a zero capacity means the hub's maximum.
func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "bad json"})
			return
		}

		if req.Name != "" {
			if err := hub.ValidateRoomName(req.Name); err != nil {
				writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
				return
			}
			rm, err := h.Create(r.Context(), req.Name, req.Capacity)
			if err != nil {
				writeCreateError(w, err, log)
				return
			}
			writeJSON(w, http.StatusCreated, types.CreateRoomResponse{Name: req.Name, Capacity: rm.Capacity()})
			return
		}

		for {
			c, err := GenerateCode()
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: "failed to generate code"})
				return
			}
			rm, err := h.Create(r.Context(), c, req.Capacity)
			if errors.Is(err, hub.ErrRoomExists) {
				log.Debug("collision on code, regenerating", zap.String("code", c))
				continue
			}
			if err != nil {
				writeCreateError(w, err, log)
				return
			}
			writeJSON(w, http.StatusCreated, types.CreateRoomResponse{Name: c, Capacity: rm.Capacity()})
			return
		}
	}
}

func writeCreateError(w http.ResponseWriter, err error, log *zap.Logger) {
	switch {
	case errors.Is(err, hub.ErrRoomExists):
		writeJSON(w, http.StatusConflict, types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, hub.ErrInvalidCapacity):
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
	default:
		log.Warn("create room", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Error: "relay unavailable"})
	}
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []types.RoomInfo, 1)
		h.Inbox() <- hub.ListRooms{Reply: reply}
		writeJSON(w, http.StatusOK, <-reply)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
