package room

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/DoyleJ11/driftsync/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrRoomFull   = errors.New("room full")
	ErrRoomClosed = errors.New("room closed")
)

type Msg interface{ isRoomMsg() }

type Join struct {
	Name   string
	Props  map[string]string
	Outbox chan types.ServerMessage // where this member wants to receive relay traffic
	Reply  chan JoinResult
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	Self types.ActorID
	Err  error
}

type Leave struct{ Actor types.ActorID }

func (Leave) isRoomMsg() {}

type FromClient struct {
	Actor types.ActorID
	Msg   types.ClientMessage
}

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Info    types.RoomInfo
	Master  types.ActorID
	Members []types.Participant
}

type Config struct {
	Name     string
	Capacity int

	// IdleTimeout closes a room nobody joined within it. Zero disables it.
	IdleTimeout time.Duration

	// OnUpdate and OnEmpty run on the room goroutine and must not block.
	OnUpdate func(*Room, types.RoomInfo)
	OnEmpty  func(*Room)
	Logger   *zap.Logger
}

type member struct {
	info   types.Participant
	outbox chan types.ServerMessage
}

// Room relays traffic between the members of one session. It assigns
// ActorIDs in join order and designates the lowest live ActorID as master.
// It has no opinion about the session itself.
type Room struct {
	cfg     Config
	inbox   chan Msg
	members map[types.ActorID]*member
	nextID  types.ActorID
	master  types.ActorID
	visible bool
	dropped []types.ActorID
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRoom(parent context.Context, cfg Config) *Room {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := &Room{
		cfg:     cfg,
		inbox:   make(chan Msg, 64),
		members: make(map[types.ActorID]*member),
		visible: true,
		log:     cfg.Logger.With(zap.String("room", cfg.Name)),
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

// Inbox is exposed so the hub, transports and tests can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Name() string { return r.cfg.Name }

func (r *Room) Capacity() int { return r.cfg.Capacity }

// Done is closed once the room stopped; messages sent after that are lost.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Send delivers m unless the room or ctx is done first.
func (r *Room) Send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join adds a member and waits for its ActorID.
func (r *Room) Join(ctx context.Context, name string, props map[string]string, outbox chan types.ServerMessage) (types.ActorID, error) {
	reply := make(chan JoinResult, 1)
	if err := r.Send(ctx, Join{Name: name, Props: props, Outbox: outbox, Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case res := <-reply:
		return res.Self, res.Err
	case <-r.ctx.Done():
		return 0, ErrRoomClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Room) loop() {
	var idle <-chan time.Time
	if r.cfg.IdleTimeout > 0 {
		t := time.NewTimer(r.cfg.IdleTimeout)
		defer t.Stop()
		idle = t.C
	}

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-idle:
			r.log.Info("nobody joined, closing", zap.Duration("idle", r.cfg.IdleTimeout))
			r.close()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.join(msg)

			case Leave:
				r.leave(msg.Actor)

			case FromClient:
				r.fromClient(msg)

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- r.view()

			case Shutdown:
				r.shutdown()
				return
			}

			// Slow members were dropped during the last broadcast. Their
			// departure is announced like any other leave.
			for len(r.dropped) > 0 {
				id := r.dropped[0]
				r.dropped = r.dropped[1:]
				r.leave(id)
			}

			if r.nextID > 0 {
				idle = nil
			}
			if len(r.members) == 0 && r.nextID > 0 {
				r.log.Info("room empty, closing")
				r.close()
				return
			}
		}
	}
}

func (r *Room) join(msg Join) {
	if r.cfg.Capacity > 0 && len(r.members) >= r.cfg.Capacity {
		msg.Reply <- JoinResult{Err: ErrRoomFull}
		return
	}
	r.nextID++
	id := r.nextID
	p := types.Participant{ID: id, Name: msg.Name, Props: msg.Props}.Clone()
	if p.Props == nil {
		p.Props = map[string]string{}
	}
	r.members[id] = &member{info: p, outbox: msg.Outbox}
	if r.master == 0 {
		r.master = id
	}
	msg.Reply <- JoinResult{Self: id}

	r.log.Info("member joined", zap.Int32("actor", int32(id)), zap.String("name", p.Name))
	r.send(id, types.ServerMessage{
		Type:    types.ServerJoined,
		Self:    id,
		Master:  r.master,
		Members: r.participants(),
	})
	r.broadcast(id, types.ServerMessage{Type: types.ServerParticipantJoined, Participant: &p})
	r.notifyUpdate()
}

func (r *Room) leave(id types.ActorID) {
	m, ok := r.members[id]
	if !ok {
		return
	}
	close(m.outbox) // Tell member no more traffic
	delete(r.members, id)
	r.log.Info("member left", zap.Int32("actor", int32(id)))

	r.broadcast(0, types.ServerMessage{Type: types.ServerParticipantLeft, Actor: id})
	if id == r.master {
		r.master = r.lowestMember()
		if r.master != 0 {
			r.log.Info("master changed", zap.Int32("actor", int32(r.master)))
			r.broadcast(0, types.ServerMessage{Type: types.ServerMasterChanged, Actor: r.master})
		}
	}
	r.notifyUpdate()
}

func (r *Room) fromClient(msg FromClient) {
	sender, ok := r.members[msg.Actor]
	if !ok {
		return
	}
	cm := msg.Msg
	switch cm.Type {
	case types.ClientBroadcast:
		r.broadcast(msg.Actor, types.ServerMessage{
			Type: types.ServerEvent, Code: cm.Code, Payload: cm.Payload, Sender: msg.Actor,
		})

	case types.ClientSendTo:
		if _, ok := r.members[cm.Target]; !ok {
			r.log.Debug("send to unknown member", zap.Int32("target", int32(cm.Target)))
			return
		}
		r.send(cm.Target, types.ServerMessage{
			Type: types.ServerEvent, Code: cm.Code, Payload: cm.Payload, Sender: msg.Actor,
		})

	case types.ClientState:
		r.broadcast(msg.Actor, types.ServerMessage{Type: types.ServerState, Payload: cm.Payload, Sender: msg.Actor})

	case types.ClientSetProperties:
		for k, v := range cm.Props {
			sender.info.Props[k] = v
		}
		p := sender.info.Clone()
		r.broadcast(0, types.ServerMessage{Type: types.ServerProperties, Participant: &p})

	case types.ClientSetVisible:
		if msg.Actor != r.master {
			r.send(msg.Actor, types.ServerMessage{Type: types.ServerError, Error: "only the master can change visibility"})
			return
		}
		if cm.Visible != nil && *cm.Visible != r.visible {
			r.visible = *cm.Visible
			r.notifyUpdate()
		}

	case types.ClientLeave:
		r.leave(msg.Actor)

	default:
		r.send(msg.Actor, types.ServerMessage{Type: types.ServerError, Error: "unknown type"})
	}
}

func (r *Room) send(id types.ActorID, msg types.ServerMessage) {
	m, ok := r.members[id]
	if !ok || slices.Contains(r.dropped, id) {
		return
	}
	select {
	case m.outbox <- msg:
		// ok
	default:
		// Member is slow/full - drop them after this message is handled.
		r.log.Warn("dropping slow member", zap.Int32("actor", int32(id)))
		r.dropped = append(r.dropped, id)
	}
}

// broadcast sends to every member except the one named by except.
func (r *Room) broadcast(except types.ActorID, msg types.ServerMessage) {
	for id := range r.members {
		if id != except {
			r.send(id, msg)
		}
	}
}

func (r *Room) participants() []types.Participant {
	out := make([]types.Participant, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.info.Clone())
	}
	slices.SortFunc(out, func(a, b types.Participant) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *Room) lowestMember() types.ActorID {
	var low types.ActorID
	for id := range r.members {
		if low == 0 || id < low {
			low = id
		}
	}
	return low
}

func (r *Room) info() types.RoomInfo {
	return types.RoomInfo{
		Name:     r.cfg.Name,
		Members:  len(r.members),
		Capacity: r.cfg.Capacity,
		Visible:  r.visible,
	}
}

func (r *Room) view() View {
	return View{Info: r.info(), Master: r.master, Members: r.participants()}
}

func (r *Room) notifyUpdate() {
	if r.cfg.OnUpdate != nil {
		r.cfg.OnUpdate(r, r.info())
	}
}

// close reports the room empty to its owner and stops it.
func (r *Room) close() {
	if r.cfg.OnEmpty != nil {
		r.cfg.OnEmpty(r)
	}
	r.cancel()
}

func (r *Room) shutdown() {
	for id, m := range r.members {
		close(m.outbox)
		delete(r.members, id)
	}
	r.cancel()
}
