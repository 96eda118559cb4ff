package peer

import (
	"errors"
	"strconv"

	"github.com/DoyleJ11/driftsync/internal/engine"
	"github.com/DoyleJ11/driftsync/internal/future"
	"github.com/DoyleJ11/driftsync/internal/roster"
	"github.com/DoyleJ11/driftsync/internal/transport"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"go.uber.org/zap"
)

func (p *Peer) handle(m transport.Message) {
	switch msg := m.(type) {
	case transport.ConnectedToServer:
		p.runActions(p.sup.OnConnected())

	case transport.Disconnected:
		p.log.Warn("disconnected", zap.Error(msg.Cause))
		p.resetRoom()
		p.reconnectAcc = 0
		p.runActions(p.sup.OnDisconnected())

	case transport.JoinedRoom:
		p.onJoined(msg)

	case transport.JoinFailed:
		p.log.Warn("join failed", zap.String("room", msg.Room), zap.Error(msg.Reason))
		p.mu.Lock()
		p.connected.Reject(msg.Reason)
		p.connected = future.New[struct{}]()
		p.mu.Unlock()
		p.notify(JoinRejected{Room: msg.Room, Reason: msg.Reason})

	case transport.LeftRoom:
		p.log.Info("left room", zap.String("room", p.roomName))
		p.resetRoom()
		if !p.ui.OnMenu() {
			p.ui.ShowMenu()
		}

	case transport.ParticipantJoined:
		p.onParticipantJoined(msg.Participant)

	case transport.ParticipantLeft:
		p.onParticipantLeft(msg.Actor)

	case transport.MasterChanged:
		p.onMasterChanged(msg.Actor)

	case transport.EventReceived:
		p.onEvent(msg)

	case transport.StateReceived:
		p.onState(msg)

	case transport.PropertiesChanged:
		p.onProperties(msg.Participant)

	case transport.RoomListUpdated:
		p.notify(RoomsListed{Rooms: msg.Rooms})

	case transport.RelayError:
		p.log.Warn("relay error", zap.String("reason", msg.Reason))
	}
}

func (p *Peer) onJoined(msg transport.JoinedRoom) {
	p.roomName = msg.Room
	clear(p.members)
	for _, m := range msg.Members {
		p.members[m.ID] = m
	}
	p.props = map[string]string{}
	if me, ok := p.members[msg.Self]; ok {
		for k, v := range me.Props {
			p.props[k] = v
		}
	}

	p.slots.Reset(msg.Self)
	p.roster.Clear()
	p.mu.Lock()
	p.self, p.master, p.inRoom = msg.Self, msg.Master, true
	p.session = engine.NewSession(p.cfg.Rules)
	connected := p.connected
	p.mu.Unlock()

	p.log.Info("joined room",
		zap.String("room", msg.Room),
		zap.Int32("self", int32(msg.Self)),
		zap.Int32("master", int32(msg.Master)),
		zap.Int("members", len(msg.Members)))

	if len(msg.Members) <= 1 {
		p.slots.MarkSynced()
	}
	p.pendingSpawn, p.syncWait, p.spawned = true, 0, false
	p.ticks, p.forceSnapshot = 0, true
	connected.Resolve(struct{}{})
	p.notify(RosterChanged{Entries: p.roster.Entries()})
}

func (p *Peer) onParticipantJoined(part types.Participant) {
	p.members[part.ID] = part
	p.log.Info("participant joined", zap.Int32("actor", int32(part.ID)), zap.String("name", part.Name))

	if err := p.slots.SendSync(part.ID); err != nil {
		p.log.Warn("send slot sync", zap.Int32("to", int32(part.ID)), zap.Error(err))
	}
	if p.IsAuthoritative() {
		// Late joiners learn the roster from the authority.
		for _, e := range p.roster.Entries() {
			p.sendEntry(e, part.ID)
		}
		p.forceSnapshot = true
	}
}

func (p *Peer) onParticipantLeft(id types.ActorID) {
	delete(p.members, id)
	p.slots.Drop(id)
	if e, ok := p.roster.Get(id); ok && p.roster.Remove(id) {
		p.controllers.SetActive(e.Entity, false)
		p.notify(RosterChanged{Entries: p.roster.Entries()})
	}
	p.log.Info("participant left", zap.Int32("actor", int32(id)))
}

func (p *Peer) onMasterChanged(id types.ActorID) {
	p.mu.Lock()
	p.master = id
	self := p.self
	p.mu.Unlock()

	if id == self {
		s := p.currentSession()
		p.log.Info("taking over authority",
			zap.Stringer("state", s.State), zap.Duration("timer", s.Timer))
		p.forceSnapshot = true
	}
	// An announcement may have been lost with the previous master.
	if !p.spawned {
		return
	}
	if id != self {
		p.sendEntry(p.own, id)
		return
	}
	if _, ok := p.roster.Get(self); !ok {
		p.announce(p.own)
	}
}

func (p *Peer) onEvent(msg transport.EventReceived) {
	switch msg.Code {
	case types.EventSlotSync:
		out, err := p.slots.ApplySync(msg.Payload)
		if err != nil {
			p.log.Warn("bad slot sync", zap.Int32("from", int32(msg.Sender)), zap.Error(err))
			return
		}
		for _, id := range p.slots.Prune(p.isMember) {
			p.log.Debug("pruned slot of departed participant", zap.Int32("actor", int32(id)))
		}
		p.onSlotOutcome(out.Displaced, out.Index, out.Full)

	case types.EventSlotTaken:
		out, err := p.slots.ApplyTaken(msg.Payload)
		if err != nil {
			p.log.Warn("bad slot claim", zap.Int32("from", int32(msg.Sender)), zap.Error(err))
			return
		}
		p.onSlotOutcome(out.Displaced, out.Index, out.Full)

	case types.EventSlotReleased:
		if err := p.slots.ApplyReleased(msg.Payload); err != nil {
			p.log.Warn("bad slot release", zap.Int32("from", int32(msg.Sender)), zap.Error(err))
		}

	case types.EventParticipantSpawned:
		e, err := roster.DecodeEntry(msg.Payload)
		if err != nil {
			p.log.Warn("bad spawn announcement", zap.Int32("from", int32(msg.Sender)), zap.Error(err))
			return
		}
		p.onSpawnAnnouncement(e, msg.Sender)

	default:
		p.log.Debug("ignoring event", zap.Uint8("code", uint8(msg.Code)))
	}
}

func (p *Peer) onSpawnAnnouncement(e roster.Entry, sender types.ActorID) {
	if !p.isMember(e.Participant) {
		p.log.Debug("announcement for absent participant", zap.Int32("actor", int32(e.Participant)))
		return
	}
	if p.IsAuthoritative() {
		if sender != e.Participant {
			p.log.Warn("announcement on behalf of another participant", zap.Int32("from", int32(sender)))
			return
		}
		p.addEntry(e)
		p.broadcastEntry(e)
		return
	}
	p.mu.RLock()
	master := p.master
	p.mu.RUnlock()
	if sender != master {
		p.log.Debug("announcement not from authority", zap.Int32("from", int32(sender)))
		return
	}
	p.addEntry(e)
}

func (p *Peer) onState(msg transport.StateReceived) {
	p.mu.RLock()
	fromMaster := msg.Sender == p.master && p.master != p.self
	p.mu.RUnlock()
	if !fromMaster {
		return
	}
	snap, err := engine.DecodeSnapshot(msg.Payload)
	if err != nil {
		p.log.Warn("skipping snapshot", zap.Int32("from", int32(msg.Sender)), zap.Error(err))
		return
	}
	events, s := engine.ApplySnapshot(p.currentSession(), snap)
	p.setSession(s)
	p.applyEvents(events)
}

func (p *Peer) onProperties(part types.Participant) {
	if _, ok := p.members[part.ID]; ok {
		p.members[part.ID] = part
	}
	if part.ID == p.Self() {
		for k, v := range part.Props {
			p.props[k] = v
		}
	}
	raw, ok := part.Props[types.PropScore]
	if !ok {
		return
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		p.log.Debug("ignoring non-numeric score", zap.String("score", raw))
		return
	}
	// Never recreates an entry; a stale update after a leave is ignored.
	if p.roster.SetScore(part.ID, score) {
		p.notify(RosterChanged{Entries: p.roster.Entries()})
	}
}

func (p *Peer) isMember(id types.ActorID) bool {
	_, ok := p.members[id]
	return ok
}

// resetRoom drops all per-room state and re-arms the room futures.
func (p *Peer) resetRoom() {
	wasIn := p.InRoom()
	p.slots.Reset(0)
	p.roster.Clear()
	clear(p.members)
	p.props = map[string]string{}
	p.roomName = ""
	p.pendingSpawn, p.spawned = false, false
	p.own = roster.Entry{}

	p.mu.Lock()
	prev := p.session.State
	p.session = engine.NewSession(p.cfg.Rules)
	p.self, p.master, p.inRoom = 0, 0, false
	p.connected.Cancel()
	p.connected = future.New[struct{}]()
	if p.reward != nil {
		p.reward.Cancel()
		p.reward = nil
	}
	p.mu.Unlock()

	if wasIn {
		p.notify(RosterChanged{})
		if prev != engine.StateWaitingForPlayers {
			p.notify(StateChanged{From: prev, To: engine.StateWaitingForPlayers})
		}
	}
}

func isCancelled(err error) bool { return errors.Is(err, future.ErrCancelled) }
