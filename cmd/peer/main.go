// Command peer runs one headless participant against a relay: it hosts or
// joins a room, scores while the session is playing and accepts the default
// reward when it ends.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/DoyleJ11/driftsync/internal/config"
	"github.com/DoyleJ11/driftsync/internal/engine"
	"github.com/DoyleJ11/driftsync/internal/logging"
	"github.com/DoyleJ11/driftsync/internal/peer"
	"github.com/DoyleJ11/driftsync/internal/reconnect"
	"github.com/DoyleJ11/driftsync/internal/roster"
	"github.com/DoyleJ11/driftsync/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	name := flag.String("name", "", "nickname shown on the leaderboard")
	roomName := flag.String("room", "", "room to join or host")
	host := flag.Bool("host", false, "create the room before joining it")
	rate := flag.Int("score-rate", 10, "points gained per second of gameplay")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if *name == "" {
		*name = "peer-" + time.Now().Format("150405")
	}
	profile, err := json.Marshal(map[string]string{"nick": *name})
	if err != nil {
		logger.Fatal("encode profile", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := &consoleUI{log: logger, rewards: make(chan int, 1)}
	p := peer.New(peer.Config{
		Name:    *name,
		Profile: profile,
		Rules: engine.Rules{
			PlayersRequired:   cfg.PlayersRequired,
			CountdownDuration: cfg.Countdown,
			GameplayDuration:  cfg.Gameplay,
		},
		TickRate:      cfg.TickRate,
		SnapshotEvery: cfg.SnapshotEvery,
		SlotCount:     cfg.SlotCount,
		Reconnect: reconnect.Config{
			Countdown:   cfg.ReconnectCountdown,
			MaxAttempts: cfg.ReconnectAttempts,
		},
	}, peer.Deps{
		Transport: ws.NewClient(cfg.ServerURL, *name, logger),
		Spawner:   &consoleSpawner{log: logger},
		UI:        ui,
		Logger:    logger,
	})

	if err := p.Connect(ctx); err != nil {
		logger.Fatal("connect to relay", zap.String("url", cfg.ServerURL), zap.Error(err))
	}
	if *roomName != "" {
		join := p.Join
		if *host {
			join = func(ctx context.Context, room string) error { return p.Host(ctx, room, cfg.MaxPlayers) }
		}
		if err := join(ctx, *roomName); err != nil {
			logger.Fatal("enter room", zap.String("room", *roomName), zap.Error(err))
		}
	} else if err := p.RefreshRooms(ctx); err != nil {
		logger.Warn("list rooms", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return watch(gctx, p, ui, *rate) })
	if err := g.Wait(); err != nil {
		logger.Error("peer stopped", zap.Error(err))
	}
}

// watch logs notifications, scores while playing and acknowledges rewards.
func watch(ctx context.Context, p *peer.Peer, ui *consoleUI, rate int) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	score := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case n := <-p.Notifications():
			ui.observe(n, p.InRoom())
			if sc, ok := n.(peer.StateChanged); ok && sc.To == engine.StateWaitingForPlayers {
				score = 0
			}

		case amount := <-ui.rewards:
			p.AcknowledgeReward(amount)

		case <-t.C:
			if p.CurrentState() == engine.StatePlaying {
				score += rate
				p.SetScore(score)
			}
		}
	}
}

// consoleUI hooks run on the tick goroutine; observe runs on the watcher.
type consoleUI struct {
	log     *zap.Logger
	rewards chan int
	onMenu  atomic.Bool
}

// observe logs a notification. Any roster update while in a room means the
// player has left the menu.
func (u *consoleUI) observe(n peer.Notification, inRoom bool) {
	switch n := n.(type) {
	case peer.StateChanged:
		u.log.Info("session", zap.Stringer("from", n.From), zap.Stringer("to", n.To))
	case peer.RosterChanged:
		if inRoom {
			u.onMenu.Store(false)
		}
		for i, e := range n.Entries {
			u.log.Info("leaderboard", zap.Int("rank", i+1), zap.String("name", e.DisplayName), zap.Int("score", e.Score))
		}
	case peer.RoomsListed:
		for _, r := range n.Rooms {
			u.log.Info("room", zap.String("name", r.Name), zap.Int("members", r.Members), zap.Int("capacity", r.Capacity))
		}
	case peer.JoinRejected:
		u.log.Warn("join rejected", zap.String("room", n.Room), zap.Error(n.Reason))
	}
}

func (u *consoleUI) ShowReconnectCountdown(n int) {
	u.log.Warn("reconnecting", zap.Int("in_seconds", n))
}

func (u *consoleUI) HideReconnectCountdown() { u.log.Info("reconnected") }

func (u *consoleUI) OnMenu() bool { return u.onMenu.Load() }

func (u *consoleUI) ShowMenu() {
	u.onMenu.Store(true)
	u.log.Info("back at the menu")
}

func (u *consoleUI) ShowGameOver(reward int) {
	u.log.Info("game over", zap.Int("reward", reward))
	select {
	case u.rewards <- reward:
	default:
	}
}

func (u *consoleUI) SessionFull() { u.log.Warn("session is full") }

type consoleSpawner struct {
	log  *zap.Logger
	next roster.EntityRef
}

func (s *consoleSpawner) Spawn(slot int, profile []byte) (roster.EntityRef, error) {
	s.next++
	s.log.Info("spawned", zap.Int("slot", slot), zap.ByteString("profile", profile))
	return s.next, nil
}
