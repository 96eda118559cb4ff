package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/DoyleJ11/driftsync/internal/transport"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"github.com/coder/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Client is a transport.Transport talking to the relay over HTTP for the
// room directory and over a websocket for room traffic.
type Client struct {
	base    string
	name    string
	http    *http.Client
	log     *zap.Logger
	inbound chan transport.Message
	closed  chan struct{}
	once    sync.Once

	mu        sync.Mutex
	connected bool
	conn      *websocket.Conn
	leaving   bool
	gen       int
}

var _ transport.Transport = (*Client)(nil)

func NewClient(baseURL, name string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		name:    name,
		http:    &http.Client{Timeout: 5 * writeTimeout},
		log:     logger.With(zap.String("transport", "ws"), zap.String("name", name)),
		inbound: make(chan transport.Message, 256),
		closed:  make(chan struct{}),
	}
}

func (c *Client) Inbound() <-chan transport.Message { return c.inbound }

func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrNotConnected, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthz returned %d", transport.ErrNotConnected, resp.StatusCode)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.push(transport.ConnectedToServer{})
	return nil
}

func (c *Client) CreateRoom(ctx context.Context, name string, capacity int) error {
	body, err := json.Marshal(types.CreateRoomRequest{Name: name, Capacity: capacity})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/rooms", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return c.lost(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return transport.ErrRoomExists
	default:
		var e types.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("create room: %d %s", resp.StatusCode, e.Error)
	}
}

func (c *Client) JoinRoom(ctx context.Context, name string, props map[string]string) error {
	c.mu.Lock()
	inRoom := c.conn != nil
	c.mu.Unlock()
	if inRoom {
		return c.joinFailed(name, errors.New("already in a room"))
	}

	u, err := url.Parse(c.base + "/ws")
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.RawQuery = url.Values{"room": {name}}.Encode()

	conn, resp, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return c.joinFailed(name, transport.ErrRoomNotFound)
		}
		return c.joinFailed(name, c.lost(err))
	}
	hello := types.ClientMessage{Type: types.ClientJoin, Name: c.name, Props: props}
	if err := writeFrame(ctx, conn, hello); err != nil {
		conn.CloseNow()
		return c.joinFailed(name, c.lost(err))
	}

	c.mu.Lock()
	c.conn, c.leaving = conn, false
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.readLoop(name, conn, gen)
	return nil
}

func (c *Client) readLoop(roomName string, conn *websocket.Conn, gen int) {
	joined := false
	var cause error
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			cause = err
			break
		}
		var sm types.ServerMessage
		if err := json.Unmarshal(data, &sm); err != nil {
			c.log.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		if !joined && sm.Type == types.ServerError {
			cause = joinError(sm.Error)
			break
		}
		if sm.Type == types.ServerJoined {
			joined = true
		}
		if msg, ok := transport.FromWire(roomName, sm); ok {
			c.push(msg)
		}
	}
	conn.CloseNow()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	leaving := c.leaving
	c.conn = nil
	if joined && !leaving {
		c.connected = false
	}
	c.mu.Unlock()

	switch {
	case !joined:
		c.push(transport.JoinFailed{Room: roomName, Reason: cause})
	case leaving:
		c.push(transport.LeftRoom{})
	default:
		c.log.Warn("relay connection lost", zap.Error(cause))
		c.push(transport.Disconnected{Cause: cause})
	}
}

func joinError(reason string) error {
	switch reason {
	case "room full":
		return transport.ErrRoomFull
	case "room closed":
		return transport.ErrRoomNotFound
	default:
		return errors.New(reason)
	}
}

func (c *Client) LeaveRoom() error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return transport.ErrNotInRoom
	}
	c.leaving = true
	c.mu.Unlock()
	return writeFrame(context.Background(), conn, types.ClientMessage{Type: types.ClientLeave})
}

func (c *Client) ListRooms(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/rooms", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.lost(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("list rooms: status %d", resp.StatusCode)
	}
	var rooms []types.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	c.push(transport.RoomListUpdated{Rooms: rooms})
	return nil
}

func (c *Client) Broadcast(code types.EventCode, payload []byte) error {
	return c.send(transport.BroadcastFrame(code, payload))
}

func (c *Client) SendTo(code types.EventCode, payload []byte, target types.ActorID) error {
	return c.send(transport.SendToFrame(code, payload, target))
}

func (c *Client) SendState(payload []byte) error { return c.send(transport.StateFrame(payload)) }

func (c *Client) SetProperties(props map[string]string) error {
	return c.send(transport.PropertiesFrame(props))
}

func (c *Client) SetRoomVisible(visible bool) error {
	return c.send(transport.VisibleFrame(visible))
}

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.leaving = true
		c.mu.Unlock()
		if conn != nil {
			err = multierr.Append(err, writeFrame(context.Background(), conn, types.ClientMessage{Type: types.ClientLeave}))
			err = multierr.Append(err, conn.Close(websocket.StatusNormalClosure, "bye"))
		}
		close(c.closed)
	})
	return err
}

func (c *Client) send(cm types.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrNotInRoom
	}
	return writeFrame(context.Background(), conn, cm)
}

// lost reports a failed round trip to the relay as a disconnect while we
// believed we were connected.
func (c *Client) lost(err error) error {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()
	if was {
		c.push(transport.Disconnected{Cause: err})
	}
	return err
}

func (c *Client) joinFailed(name string, err error) error {
	c.push(transport.JoinFailed{Room: name, Reason: err})
	return err
}

func (c *Client) push(m transport.Message) {
	select {
	case c.inbound <- m:
	case <-c.closed:
	}
}
