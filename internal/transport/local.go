package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/DoyleJ11/driftsync/internal/hub"
	"github.com/DoyleJ11/driftsync/internal/room"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"go.uber.org/zap"
)

// Local is an in-process Transport bound straight to a Hub. It behaves like
// the websocket client minus the sockets, which makes it the transport of
// choice for multi-peer tests and single-process demos.
type Local struct {
	hub     *hub.Hub
	name    string
	log     *zap.Logger
	inbound chan Message
	closed  chan struct{}
	once    sync.Once

	mu          sync.Mutex
	connected   bool
	unreachable bool
	room        *room.Room
	self        types.ActorID
	leaving     bool
	gen         int
}

func NewLocal(h *hub.Hub, name string, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		hub:     h,
		name:    name,
		log:     logger.With(zap.String("transport", "local"), zap.String("name", name)),
		inbound: make(chan Message, 256),
		closed:  make(chan struct{}),
	}
}

func (l *Local) Inbound() <-chan Message { return l.inbound }

func (l *Local) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.unreachable {
		l.mu.Unlock()
		return ErrNotConnected
	}
	select {
	case <-l.hub.Done():
		l.mu.Unlock()
		return ErrNotConnected
	default:
	}
	l.connected = true
	l.mu.Unlock()

	l.push(ConnectedToServer{})
	return nil
}

// SetReachable makes subsequent Connect calls fail (false) or succeed.
func (l *Local) SetReachable(ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unreachable = !ok
}

// Sever simulates losing the connection to the relay.
func (l *Local) Sever() {
	l.mu.Lock()
	l.connected = false
	r, self := l.room, l.self
	l.leaving = false
	l.mu.Unlock()

	if r == nil {
		l.push(Disconnected{Cause: ErrNotConnected})
		return
	}
	// The pump reports Disconnected once the room closes our outbox.
	if err := r.Send(context.Background(), room.Leave{Actor: self}); err != nil {
		l.push(Disconnected{Cause: err})
	}
}

// CreateRoom registers a room with the hub, which bounds its capacity the
// same way the HTTP API does.
func (l *Local) CreateRoom(ctx context.Context, name string, capacity int) error {
	if !l.isConnected() {
		return ErrNotConnected
	}
	if err := hub.ValidateRoomName(name); err != nil {
		return err
	}
	_, err := l.hub.Create(ctx, name, capacity)
	if errors.Is(err, hub.ErrRoomExists) {
		return ErrRoomExists
	}
	return err
}

func (l *Local) JoinRoom(ctx context.Context, name string, props map[string]string) error {
	l.mu.Lock()
	connected, inRoom := l.connected, l.room != nil
	l.mu.Unlock()
	if !connected {
		return l.joinFailed(name, ErrNotConnected)
	}
	if inRoom {
		return l.joinFailed(name, errors.New("already in a room"))
	}

	r := l.hub.Lookup(ctx, name)
	if r == nil {
		return l.joinFailed(name, ErrRoomNotFound)
	}
	out := make(chan types.ServerMessage, 256)
	self, err := r.Join(ctx, l.name, props, out)
	switch {
	case errors.Is(err, room.ErrRoomFull):
		return l.joinFailed(name, ErrRoomFull)
	case errors.Is(err, room.ErrRoomClosed):
		return l.joinFailed(name, ErrRoomNotFound)
	case err != nil:
		return l.joinFailed(name, err)
	}

	l.mu.Lock()
	l.room, l.self, l.leaving = r, self, false
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	go l.pump(name, out, gen)
	return nil
}

func (l *Local) joinFailed(name string, err error) error {
	l.push(JoinFailed{Room: name, Reason: err})
	return err
}

func (l *Local) pump(roomName string, out <-chan types.ServerMessage, gen int) {
	for m := range out {
		if msg, ok := FromWire(roomName, m); ok {
			l.push(msg)
		}
	}

	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		return
	}
	leaving := l.leaving
	l.room, l.self = nil, 0
	if !leaving {
		l.connected = false
	}
	l.mu.Unlock()

	if leaving {
		l.push(LeftRoom{})
		return
	}
	l.log.Warn("lost room membership", zap.String("room", roomName))
	l.push(Disconnected{Cause: ErrDropped})
}

func (l *Local) LeaveRoom() error {
	l.mu.Lock()
	r, self := l.room, l.self
	if r == nil {
		l.mu.Unlock()
		return ErrNotInRoom
	}
	l.leaving = true
	l.mu.Unlock()

	err := r.Send(context.Background(), room.Leave{Actor: self})
	if errors.Is(err, room.ErrRoomClosed) {
		// Our outbox was closed with the room; the pump reports LeftRoom.
		return nil
	}
	return err
}

func (l *Local) ListRooms(ctx context.Context) error {
	if !l.isConnected() {
		return ErrNotConnected
	}
	reply := make(chan []types.RoomInfo, 1)
	select {
	case l.hub.Inbox() <- hub.ListRooms{Reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case rooms := <-reply:
		l.push(RoomListUpdated{Rooms: rooms})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Broadcast(code types.EventCode, payload []byte) error {
	return l.send(BroadcastFrame(code, payload))
}

func (l *Local) SendTo(code types.EventCode, payload []byte, target types.ActorID) error {
	return l.send(SendToFrame(code, payload, target))
}

func (l *Local) SendState(payload []byte) error { return l.send(StateFrame(payload)) }

func (l *Local) SetProperties(props map[string]string) error {
	return l.send(PropertiesFrame(props))
}

func (l *Local) SetRoomVisible(visible bool) error { return l.send(VisibleFrame(visible)) }

func (l *Local) Close() error {
	l.once.Do(func() {
		_ = l.LeaveRoom()
		close(l.closed)
	})
	return nil
}

func (l *Local) send(cm types.ClientMessage) error {
	l.mu.Lock()
	r, self := l.room, l.self
	l.mu.Unlock()
	if r == nil {
		return ErrNotInRoom
	}
	return r.Send(context.Background(), room.FromClient{Actor: self, Msg: cm})
}

func (l *Local) isConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Local) push(m Message) {
	select {
	case l.inbound <- m:
	case <-l.closed:
	}
}
