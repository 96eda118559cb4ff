package reconnect

import (
	"sync"

	"go.uber.org/zap"
)

type State int

const (
	Connected State = iota
	Reconnecting
	GivingUp
)

func (s State) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case GivingUp:
		return "GivingUp"
	default:
		return "Unknown"
	}
}

type ActionKind int

const (
	ShowCountdown ActionKind = iota
	HideCountdown
	AttemptReconnect
	ReturnToMenu
)

type Action struct {
	Kind      ActionKind
	Countdown int
}

type Config struct {
	Countdown   int // seconds before each attempt
	MaxAttempts int // attempts per outage
}

// Supervisor is the local reconnection policy. It does not talk to the
// transport itself: every call returns the actions the owner should carry
// out, and Tick is expected once per second while disconnected.
type Supervisor struct {
	mu        sync.Mutex
	cfg       Config
	state     State
	countdown int
	attempts  int
	log       *zap.Logger
}

func NewSupervisor(cfg Config, logger *zap.Logger) *Supervisor {
	if cfg.Countdown <= 0 {
		cfg.Countdown = 3
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{cfg: cfg, log: logger}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Countdown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

// OnDisconnected starts a new outage. Repeated notifications during the
// same outage are ignored.
func (s *Supervisor) OnDisconnected() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return nil
	}
	s.state = Reconnecting
	s.countdown = s.cfg.Countdown
	s.attempts = 0
	s.log.Warn("connection lost", zap.Int("countdown", s.countdown))
	return []Action{{Kind: ShowCountdown, Countdown: s.countdown}}
}

// OnConnected ends the outage wherever it was. No menu transition.
func (s *Supervisor) OnConnected() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Connected {
		return nil
	}
	s.log.Info("connection restored", zap.Int("attempts", s.attempts))
	s.state = Connected
	s.countdown = 0
	s.attempts = 0
	return []Action{{Kind: HideCountdown}}
}

func (s *Supervisor) Tick() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Reconnecting {
		return nil
	}
	s.countdown--
	if s.countdown > 0 {
		return []Action{{Kind: ShowCountdown, Countdown: s.countdown}}
	}

	s.attempts++
	first := s.attempts == 1
	s.state = GivingUp
	s.log.Info("attempting reconnect", zap.Int("attempt", s.attempts))
	actions := []Action{{Kind: AttemptReconnect}}
	if first {
		actions = append(actions, Action{Kind: ReturnToMenu})
	}
	return actions
}

// OnAttemptFailed restarts the countdown until the attempt budget for this
// outage is spent.
func (s *Supervisor) OnAttemptFailed() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != GivingUp {
		return nil
	}
	if s.attempts >= s.cfg.MaxAttempts {
		s.log.Warn("giving up on reconnect", zap.Int("attempts", s.attempts))
		return nil
	}
	s.state = Reconnecting
	s.countdown = s.cfg.Countdown
	return []Action{{Kind: ShowCountdown, Countdown: s.countdown}}
}
