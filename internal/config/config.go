// Package config reads process configuration from the environment, with an
// optional .env file loaded first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Config struct {
	ListenAddr string
	ServerURL  string

	MaxPlayers      int
	PlayersRequired int
	Countdown       time.Duration
	Gameplay        time.Duration
	TickRate        int
	SnapshotEvery   int
	SlotCount       int
	RoomIdleTimeout time.Duration

	ReconnectCountdown int
	ReconnectAttempts  int

	LogLevel string
	LogDev   bool
}

func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		ServerURL:          "http://localhost:8080",
		MaxPlayers:         5,
		PlayersRequired:    2,
		Countdown:          5 * time.Second,
		Gameplay:           120 * time.Second,
		TickRate:           20,
		SnapshotEvery:      1,
		SlotCount:          5,
		RoomIdleTimeout:    time.Minute,
		ReconnectCountdown: 3,
		ReconnectAttempts:  3,
		LogLevel:           "info",
	}
}

// Load reads the given .env files (default ".env"), silently skipping
// missing ones, and then the DRIFT_* environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	p.str("DRIFT_LISTEN_ADDR", &c.ListenAddr)
	p.str("DRIFT_SERVER_URL", &c.ServerURL)
	p.int("DRIFT_MAX_PLAYERS", &c.MaxPlayers)
	p.int("DRIFT_PLAYERS_REQUIRED", &c.PlayersRequired)
	p.duration("DRIFT_COUNTDOWN", &c.Countdown)
	p.duration("DRIFT_GAMEPLAY", &c.Gameplay)
	p.int("DRIFT_TICK_RATE", &c.TickRate)
	p.int("DRIFT_SNAPSHOT_EVERY", &c.SnapshotEvery)
	p.int("DRIFT_SLOT_COUNT", &c.SlotCount)
	p.duration("DRIFT_ROOM_IDLE_TIMEOUT", &c.RoomIdleTimeout)
	p.int("DRIFT_RECONNECT_COUNTDOWN", &c.ReconnectCountdown)
	p.int("DRIFT_RECONNECT_ATTEMPTS", &c.ReconnectAttempts)
	p.str("DRIFT_LOG_LEVEL", &c.LogLevel)
	p.bool("DRIFT_LOG_DEV", &c.LogDev)

	if p.err != nil {
		return Config{}, p.err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if c.MaxPlayers < 1 {
		err = multierr.Append(err, fmt.Errorf("max players must be positive, got %d", c.MaxPlayers))
	}
	if c.PlayersRequired < 1 || c.PlayersRequired > c.MaxPlayers {
		err = multierr.Append(err, fmt.Errorf("players required must be in 1..%d, got %d", c.MaxPlayers, c.PlayersRequired))
	}
	if c.SlotCount < c.MaxPlayers {
		err = multierr.Append(err, fmt.Errorf("slot count %d is below max players %d", c.SlotCount, c.MaxPlayers))
	}
	if c.Countdown < 0 || c.Gameplay <= 0 {
		err = multierr.Append(err, errors.New("countdown must not be negative and gameplay must be positive"))
	}
	if c.RoomIdleTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("room idle timeout must be positive, got %v", c.RoomIdleTimeout))
	}
	if c.TickRate < 1 {
		err = multierr.Append(err, fmt.Errorf("tick rate must be positive, got %d", c.TickRate))
	}
	if c.SnapshotEvery < 1 {
		err = multierr.Append(err, fmt.Errorf("snapshot interval must be positive, got %d", c.SnapshotEvery))
	}
	if c.ReconnectCountdown < 1 || c.ReconnectAttempts < 1 {
		err = multierr.Append(err, errors.New("reconnect countdown and attempts must be positive"))
	}
	return err
}

func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (p *parser) int(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (p *parser) bool(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = multierr.Append(p.err, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}
