package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/driftsync/pkg/types"
	"github.com/coder/websocket"
)

var errBadFrame = errors.New("bad frame")

func readFrame(ctx context.Context, conn *websocket.Conn) (types.ClientMessage, error) {
	var cm types.ClientMessage
	_, data, err := conn.Read(ctx)
	if err != nil {
		return cm, err
	}
	if err := json.Unmarshal(data, &cm); err != nil {
		return cm, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return cm, nil
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	_ = writeFrame(ctx, conn, types.ServerMessage{Type: types.ServerError, Error: reason})
}
