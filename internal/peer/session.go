package peer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/DoyleJ11/driftsync/internal/engine"
	"github.com/DoyleJ11/driftsync/internal/future"
	"github.com/DoyleJ11/driftsync/internal/reconnect"
	"github.com/DoyleJ11/driftsync/internal/roster"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"go.uber.org/zap"
)

type command interface{ isCommand() }

type cmdLeave struct{}

type cmdEndSession struct{}

type cmdSetScore struct{ score int }

type cmdReconnectFailed struct{ err error }

func (cmdLeave) isCommand()           {}
func (cmdEndSession) isCommand()      {}
func (cmdSetScore) isCommand()        {}
func (cmdReconnectFailed) isCommand() {}

const reconnectTimeout = 5 * time.Second

func (p *Peer) exec(c command) {
	switch cmd := c.(type) {
	case cmdLeave:
		p.leave("requested")

	case cmdEndSession:
		if !p.IsAuthoritative() {
			p.log.Warn("end session ignored", zap.Error(ErrNotAuthoritative))
			return
		}
		events, s, err := engine.EndGame(p.currentSession())
		if err != nil {
			p.log.Debug("end session", zap.Error(err))
			return
		}
		p.setSession(s)
		p.applyEvents(events)

	case cmdSetScore:
		self := p.Self()
		if self == 0 {
			return
		}
		p.own.Score = cmd.score
		if p.roster.SetScore(self, cmd.score) {
			p.notify(RosterChanged{Entries: p.roster.Entries()})
		}
		if err := p.tr.SetProperties(map[string]string{types.PropScore: strconv.Itoa(cmd.score)}); err != nil {
			p.log.Warn("publish score", zap.Error(err))
		}

	case cmdReconnectFailed:
		p.log.Warn("reconnect attempt failed", zap.Error(cmd.err))
		p.runActions(p.sup.OnAttemptFailed())
	}
}

// evaluate advances the state machine on the authority and publishes the
// snapshot. Followers only ever move through onState.
func (p *Peer) evaluate(dt time.Duration) {
	if !p.IsAuthoritative() {
		return
	}
	s := p.currentSession()
	if s.State.Live() {
		events, next := engine.Step(s, engine.Input{RosterSize: p.roster.Len(), Elapsed: dt})
		p.setSession(next)
		p.applyEvents(events)
	}

	p.ticks++
	if p.forceSnapshot || p.ticks%p.cfg.SnapshotEvery == 0 {
		p.forceSnapshot = false
		p.sendSnapshot()
	}
}

func (p *Peer) sendSnapshot() {
	data, err := engine.EncodeSnapshot(engine.SnapshotOf(p.currentSession()))
	if err != nil {
		p.log.Error("encode snapshot", zap.Error(err))
		return
	}
	if err := p.tr.SendState(data); err != nil {
		p.log.Debug("send snapshot", zap.Error(err))
	}
}

func (p *Peer) applyEvents(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtStateChanged:
			p.log.Info("session state changed",
				zap.Stringer("from", ev.From), zap.Stringer("to", ev.To))
			p.forceSnapshot = true
			p.notify(StateChanged{From: ev.From, To: ev.To})

		case engine.EvtCountdownStarted, engine.EvtCountdownAborted:
			p.log.Debug(string(ev.Type), zap.Duration("timer", p.CurrentTimer()))

		case engine.EvtGameplayStarted:
			if p.IsAuthoritative() {
				if err := p.tr.SetRoomVisible(false); err != nil {
					p.log.Warn("hide room", zap.Error(err))
				}
			}
			for _, e := range p.roster.Entries() {
				p.controllers.SetActive(e.Entity, true)
			}

		case engine.EvtGameEnded:
			for _, e := range p.roster.Entries() {
				p.controllers.SetActive(e.Entity, false)
			}
			reward := 0
			if e, ok := p.roster.Get(p.Self()); ok {
				reward = e.Score / 2
			}
			p.mu.Lock()
			if p.reward != nil {
				p.reward.Cancel()
			}
			p.reward = future.New[int]()
			p.mu.Unlock()
			p.log.Info("game over", zap.Int("reward", reward))
			p.ui.ShowGameOver(reward)
		}
	}
}

// checkReward credits the acknowledged reward and leaves the room.
func (p *Peer) checkReward() {
	p.mu.Lock()
	f := p.reward
	if f == nil || !f.Resolved() {
		p.mu.Unlock()
		return
	}
	p.reward = nil
	p.mu.Unlock()
	amount, err := f.Result()
	if err != nil {
		if !isCancelled(err) {
			p.log.Warn("reward prompt failed", zap.Error(err))
		}
		return
	}
	p.wallet.Credit(amount)
	p.log.Info("reward credited", zap.Int("amount", amount))
	p.leave("session over")
}

// trySpawn places the local participant once the slot table is trusted.
func (p *Peer) trySpawn(dt time.Duration) {
	if !p.pendingSpawn || !p.InRoom() {
		return
	}
	if !p.slots.Synced().Resolved() {
		p.syncWait += dt
		if p.syncWait < p.cfg.SyncTimeout {
			return
		}
		p.log.Warn("no slot sync received, spawning from local view", zap.Duration("waited", p.syncWait))
		p.slots.MarkSynced()
	}
	p.pendingSpawn = false
	self := p.Self()

	idx, ok := p.slots.Acquire(self)
	if !ok {
		p.log.Warn("cannot join playable roster: no free slot")
		p.ui.SessionFull()
		p.leave("session full")
		return
	}

	blob, ok := p.props[types.PropPlayerData]
	if !ok || blob == "" {
		p.log.Warn("cannot join playable roster: missing player data")
		p.slots.Release(self)
		p.leave("missing player data")
		return
	}

	entity, err := p.spawner.Spawn(idx, []byte(blob))
	if err != nil {
		p.log.Error("spawn failed", zap.Int("slot", idx), zap.Error(err))
		p.slots.Release(self)
		p.leave("spawn failed")
		return
	}
	p.spawned = true

	e := roster.Entry{
		Participant: self,
		DisplayName: displayName(blob, p.cfg.Name),
		Entity:      entity,
		Slot:        idx,
	}
	p.log.Info("spawned", zap.Int("slot", idx), zap.Int32("entity", int32(entity)))
	p.announce(e)
}

func (p *Peer) announce(e roster.Entry) {
	p.own = e
	if p.IsAuthoritative() {
		p.addEntry(e)
		p.broadcastEntry(e)
		return
	}
	p.mu.RLock()
	master := p.master
	p.mu.RUnlock()
	p.sendEntry(e, master)
}

func (p *Peer) onSlotOutcome(displaced bool, idx int, full bool) {
	if !displaced || !p.spawned {
		return
	}
	if full {
		p.log.Warn("lost slot and none is free, leaving")
		p.ui.SessionFull()
		p.leave("session full")
		return
	}
	e := p.own
	e.Slot = idx
	p.log.Info("moved to another slot", zap.Int("slot", idx))
	p.announce(e)
}

func (p *Peer) addEntry(e roster.Entry) {
	p.roster.Upsert(e)
	if p.currentSession().State == engine.StatePlaying {
		p.controllers.SetActive(e.Entity, true)
	}
	p.notify(RosterChanged{Entries: p.roster.Entries()})
}

func (p *Peer) broadcastEntry(e roster.Entry) {
	data, err := roster.EncodeEntry(e)
	if err != nil {
		p.log.Error("encode roster entry", zap.Error(err))
		return
	}
	if err := p.tr.Broadcast(types.EventParticipantSpawned, data); err != nil {
		p.log.Warn("broadcast roster entry", zap.Error(err))
	}
}

func (p *Peer) sendEntry(e roster.Entry, to types.ActorID) {
	data, err := roster.EncodeEntry(e)
	if err != nil {
		p.log.Error("encode roster entry", zap.Error(err))
		return
	}
	if err := p.tr.SendTo(types.EventParticipantSpawned, data, to); err != nil {
		p.log.Warn("send roster entry", zap.Int32("to", int32(to)), zap.Error(err))
	}
}

func (p *Peer) leave(reason string) {
	if !p.InRoom() {
		return
	}
	p.log.Info("leaving room", zap.String("reason", reason))
	if err := p.tr.LeaveRoom(); err != nil {
		p.log.Warn("leave room", zap.Error(err))
	}
}

// superviseConnection feeds the reconnect policy one tick per second of
// accumulated time while disconnected.
func (p *Peer) superviseConnection(dt time.Duration) {
	if p.sup.State() != reconnect.Reconnecting {
		p.reconnectAcc = 0
		return
	}
	p.reconnectAcc += dt
	for p.reconnectAcc >= time.Second && p.sup.State() == reconnect.Reconnecting {
		p.reconnectAcc -= time.Second
		p.runActions(p.sup.Tick())
	}
}

func (p *Peer) runActions(actions []reconnect.Action) {
	for _, a := range actions {
		switch a.Kind {
		case reconnect.ShowCountdown:
			p.ui.ShowReconnectCountdown(a.Countdown)
		case reconnect.HideCountdown:
			p.ui.HideReconnectCountdown()
		case reconnect.AttemptReconnect:
			go p.attemptReconnect()
		case reconnect.ReturnToMenu:
			if !p.ui.OnMenu() {
				p.ui.ShowMenu()
			}
		}
	}
}

func (p *Peer) attemptReconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
	defer cancel()
	if err := p.tr.Connect(ctx); err != nil {
		p.enqueue(cmdReconnectFailed{err: err})
	}
}

type profile struct {
	Nick string `json:"nick"`
}

func displayName(blob, fallback string) string {
	var pr profile
	if err := json.Unmarshal([]byte(blob), &pr); err == nil && pr.Nick != "" {
		return pr.Nick
	}
	return fallback
}
