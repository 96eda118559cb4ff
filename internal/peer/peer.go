// Package peer runs one participant of a session: it owns the inbound
// queue, the slot table, the roster and the session state machine, and
// advances all of them from a single tick.
package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/driftsync/internal/engine"
	"github.com/DoyleJ11/driftsync/internal/future"
	"github.com/DoyleJ11/driftsync/internal/reconnect"
	"github.com/DoyleJ11/driftsync/internal/roster"
	"github.com/DoyleJ11/driftsync/internal/slots"
	"github.com/DoyleJ11/driftsync/internal/transport"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"go.uber.org/zap"
)

var ErrNotAuthoritative = errors.New("only the authoritative peer can do that")

type Config struct {
	Name          string
	Profile       []byte // stored in the PlayerData property on join
	Rules         engine.Rules
	TickRate      int
	SnapshotEvery int
	SlotCount     int
	SyncTimeout   time.Duration
	Reconnect     reconnect.Config
}

type Deps struct {
	Transport   transport.Transport
	Spawner     Spawner
	Controllers Controllers
	UI          UI
	Wallet      Wallet
	Logger      *zap.Logger
}

type Peer struct {
	cfg         Config
	tr          transport.Transport
	spawner     Spawner
	controllers Controllers
	ui          UI
	wallet      Wallet
	log         *zap.Logger

	slots  *slots.Allocator
	roster *roster.Registry
	sup    *reconnect.Supervisor

	commands chan command
	notes    chan Notification

	// Read by UI goroutines.
	mu        sync.RWMutex
	session   engine.Session
	self      types.ActorID
	master    types.ActorID
	inRoom    bool
	connected *future.Future[struct{}]
	reward    *future.Future[int] // set only while the game-over prompt is open

	// Owned by the tick goroutine.
	roomName      string
	members       map[types.ActorID]types.Participant
	props         map[string]string
	pendingSpawn  bool
	syncWait      time.Duration
	spawned       bool
	own           roster.Entry
	ticks         int
	forceSnapshot bool
	reconnectAcc  time.Duration
}

func New(cfg Config, deps Deps) *Peer {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 20
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 1
	}
	if cfg.SlotCount <= 0 {
		cfg.SlotCount = 5
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 2 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Spawner == nil {
		deps.Spawner = &nopSpawner{}
	}
	if deps.Controllers == nil {
		deps.Controllers = nopControllers{}
	}
	if deps.UI == nil {
		deps.UI = nopUI{}
	}
	if deps.Wallet == nil {
		deps.Wallet = nopWallet{}
	}
	log := deps.Logger.With(zap.String("peer", cfg.Name))

	return &Peer{
		cfg:         cfg,
		tr:          deps.Transport,
		spawner:     deps.Spawner,
		controllers: deps.Controllers,
		ui:          deps.UI,
		wallet:      deps.Wallet,
		log:         log,
		slots:       slots.New(cfg.SlotCount, deps.Transport, log),
		roster:      roster.NewRegistry(),
		sup:         reconnect.NewSupervisor(cfg.Reconnect, log),
		commands:    make(chan command, 64),
		notes:       make(chan Notification, 64),
		session:     engine.NewSession(cfg.Rules),
		connected:   future.New[struct{}](),
		members:     make(map[types.ActorID]types.Participant),
		props:       make(map[string]string),
	}
}

func (p *Peer) Connect(ctx context.Context) error { return p.tr.Connect(ctx) }

// Host creates a room and joins it.
func (p *Peer) Host(ctx context.Context, room string, capacity int) error {
	if err := p.tr.CreateRoom(ctx, room, capacity); err != nil {
		return err
	}
	return p.Join(ctx, room)
}

// Join asks the relay for a seat. Success is observed through
// UntilConnectedToRoom once the next ticks processed the reply.
func (p *Peer) Join(ctx context.Context, room string) error {
	props := map[string]string{}
	if len(p.cfg.Profile) > 0 {
		props[types.PropPlayerData] = string(p.cfg.Profile)
	}
	return p.tr.JoinRoom(ctx, room, props)
}

func (p *Peer) RefreshRooms(ctx context.Context) error { return p.tr.ListRooms(ctx) }

func (p *Peer) RequestLeave()      { p.enqueue(cmdLeave{}) }
func (p *Peer) EndSession()        { p.enqueue(cmdEndSession{}) }
func (p *Peer) SetScore(score int) { p.enqueue(cmdSetScore{score: score}) }

// AcknowledgeReward confirms the game-over prompt. It reports false when no
// reward is pending.
func (p *Peer) AcknowledgeReward(amount int) bool {
	p.mu.RLock()
	f := p.reward
	p.mu.RUnlock()
	if f == nil {
		return false
	}
	return f.Resolve(amount)
}

func (p *Peer) CurrentState() engine.SessionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session.State
}

func (p *Peer) CurrentTimer() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session.Timer
}

func (p *Peer) Roster() []roster.Entry { return p.roster.Entries() }

func (p *Peer) Self() types.ActorID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.self
}

func (p *Peer) IsAuthoritative() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inRoom && p.self != 0 && p.self == p.master
}

func (p *Peer) InRoom() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inRoom
}

// UntilConnectedToRoom resolves on the next successful join and is
// cancelled when the attempt fails or the room is left first.
func (p *Peer) UntilConnectedToRoom() *future.Future[struct{}] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Peer) UntilSynced() *future.Future[struct{}] { return p.slots.Synced() }

func (p *Peer) SlotOf(id types.ActorID) (int, bool) { return p.slots.SlotOf(id) }

func (p *Peer) ReconnectState() reconnect.State { return p.sup.State() }

// Notifications are dropped when the consumer falls behind.
func (p *Peer) Notifications() <-chan Notification { return p.notes }

// Run ticks at the configured rate until ctx is done.
func (p *Peer) Run(ctx context.Context) error {
	t := time.NewTicker(time.Second / time.Duration(p.cfg.TickRate))
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			p.Tick(now.Sub(last))
			last = now
		}
	}
}

// Tick runs one step: everything queued since the previous tick is applied
// in arrival order, then the session is evaluated. Tick is not safe for
// concurrent use; Run is its only caller outside tests.
func (p *Peer) Tick(dt time.Duration) {
	p.drain()
	p.superviseConnection(dt)
	p.trySpawn(dt)
	p.evaluate(dt)
	p.checkReward()
}

func (p *Peer) drain() {
	for {
		select {
		case m := <-p.tr.Inbound():
			p.handle(m)
			continue
		default:
		}
		select {
		case c := <-p.commands:
			p.exec(c)
		default:
			return
		}
	}
}

func (p *Peer) notify(n Notification) {
	select {
	case p.notes <- n:
	default:
		p.log.Warn("notification consumer is slow, dropping", zap.Any("notification", n))
	}
}

func (p *Peer) enqueue(c command) {
	select {
	case p.commands <- c:
	default:
		p.log.Warn("command queue full, dropping", zap.Any("command", c))
	}
}

func (p *Peer) setSession(s engine.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

func (p *Peer) currentSession() engine.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}
