package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/driftsync/internal/room"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrRoomExists      = errors.New("room already exists")
	ErrInvalidCapacity = errors.New("capacity out of range")
)

type HubMsg interface{ isHubMsg() }

// CreateRoom replies with ErrRoomExists when the name is taken. A zero
// capacity means the hub's maximum.
type CreateRoom struct {
	Name     string
	Capacity int
	Reply    chan Created
}

type Created struct {
	Room *room.Room
	Err  error
}

type GetRoom struct {
	Name  string
	Reply chan *room.Room
}

// RemoveRoom only removes the entry while it still points at Room.
type RemoveRoom struct {
	Name string
	Room *room.Room
}

type RoomUpdated struct {
	Room *room.Room
	Info types.RoomInfo
}

// ListRooms replies with visible rooms only, sorted by name.
type ListRooms struct {
	Reply chan []types.RoomInfo
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (RoomUpdated) isHubMsg() {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type entry struct {
	room *room.Room
	info types.RoomInfo
}

type Hub struct {
	inbox       chan HubMsg
	rooms       map[string]*entry
	maxPlayers  int
	idleTimeout time.Duration
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

type Option func(*Hub)

// WithMaxPlayers bounds the capacity of every room (default 5).
func WithMaxPlayers(n int) Option { return func(h *Hub) { h.maxPlayers = n } }

// WithIdleTimeout closes rooms nobody joined within d (default one minute).
func WithIdleTimeout(d time.Duration) Option { return func(h *Hub) { h.idleTimeout = d } }

func NewHub(parent context.Context, logger *zap.Logger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		inbox:       make(chan HubMsg, 64),
		rooms:       make(map[string]*entry),
		maxPlayers:  5,
		idleTimeout: time.Minute,
		log:         logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) MaxPlayers() int { return h.maxPlayers }

// Create is a convenience wrapper around CreateRoom.
func (h *Hub) Create(ctx context.Context, name string, capacity int) (*room.Room, error) {
	reply := make(chan Created, 1)
	select {
	case h.inbox <- CreateRoom{Name: name, Capacity: capacity, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
	select {
	case res := <-reply:
		return res.Room, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
}

// Lookup is a convenience wrapper around GetRoom.
func (h *Hub) Lookup(ctx context.Context, name string) *room.Room {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- GetRoom{Name: name, Reply: reply}:
	case <-ctx.Done():
		return nil
	case <-h.ctx.Done():
		return nil
	}
	select {
	case r := <-reply:
		return r
	case <-ctx.Done():
		return nil
	case <-h.ctx.Done():
		return nil
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			clear(h.rooms)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.create(msg.Name, msg.Capacity)

			case GetRoom:
				if e := h.rooms[msg.Name]; e != nil {
					msg.Reply <- e.room
					break
				}
				msg.Reply <- nil

			case RemoveRoom:
				if e := h.rooms[msg.Name]; e != nil && e.room == msg.Room {
					delete(h.rooms, msg.Name)
					h.log.Info("room removed", zap.String("room", msg.Name))
				}

			case RoomUpdated:
				if e := h.rooms[msg.Info.Name]; e != nil && e.room == msg.Room {
					e.info = msg.Info
				}

			case ListRooms:
				out := make([]types.RoomInfo, 0, len(h.rooms))
				for _, e := range h.rooms {
					if e.info.Visible {
						out = append(out, e.info)
					}
				}
				slices.SortFunc(out, func(a, b types.RoomInfo) int { return strings.Compare(a.Name, b.Name) })
				msg.Reply <- out

			case ShutdownHub:
				// Rooms run under the hub's context and stop with it.
				clear(h.rooms)
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) create(name string, capacity int) Created {
	if capacity == 0 {
		capacity = h.maxPlayers
	}
	if capacity < 1 || capacity > h.maxPlayers {
		return Created{Err: fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCapacity, capacity, h.maxPlayers)}
	}
	if e := h.rooms[name]; e != nil {
		return Created{Err: ErrRoomExists}
	}
	r := room.NewRoom(h.ctx, room.Config{
		Name:        name,
		Capacity:    capacity,
		IdleTimeout: h.idleTimeout,
		OnUpdate:    h.onRoomUpdate,
		OnEmpty:     h.onRoomEmpty,
		Logger:      h.log,
	})
	h.rooms[name] = &entry{
		room: r,
		info: types.RoomInfo{Name: name, Capacity: capacity, Visible: true},
	}
	h.log.Info("room created", zap.String("room", name), zap.Int("capacity", capacity))
	return Created{Room: r}
}

// onRoomUpdate and onRoomEmpty run on room goroutines.
func (h *Hub) onRoomUpdate(r *room.Room, info types.RoomInfo) {
	select {
	case h.inbox <- RoomUpdated{Room: r, Info: info}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) onRoomEmpty(r *room.Room) {
	select {
	case h.inbox <- RemoveRoom{Name: r.Name(), Room: r}:
	case <-h.ctx.Done():
	}
}

var ErrInvalidRoomName = errors.New("room name must be 3 to 16 characters")

func ValidateRoomName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 3 || n > 16 || n != utf8.RuneCountInString(name) {
		return ErrInvalidRoomName
	}
	return nil
}
