package reconnect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func countdowns(actions []Action) []int {
	var out []int
	for _, a := range actions {
		if a.Kind == ShowCountdown {
			out = append(out, a.Countdown)
		}
	}
	return out
}

func count(actions []Action, kind ActionKind) int {
	n := 0
	for _, a := range actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func TestSupervisor_CountsDownThenAttemptsOnce(t *testing.T) {
	s := NewSupervisor(Config{Countdown: 3}, zaptest.NewLogger(t))

	var all []Action
	all = append(all, s.OnDisconnected()...)
	require.Equal(t, Reconnecting, s.State())
	for i := 0; i < 5; i++ {
		all = append(all, s.Tick()...)
	}

	assert.Equal(t, []int{3, 2, 1}, countdowns(all))
	assert.Equal(t, 1, count(all, AttemptReconnect))
	assert.Equal(t, 1, count(all, ReturnToMenu))
	assert.Equal(t, GivingUp, s.State())
}

func TestSupervisor_EarlyRecoveryCancels(t *testing.T) {
	s := NewSupervisor(Config{Countdown: 3}, zaptest.NewLogger(t))
	s.OnDisconnected()
	s.Tick()

	actions := s.OnConnected()
	assert.Equal(t, []Action{{Kind: HideCountdown}}, actions)
	assert.Equal(t, Connected, s.State())

	assert.Empty(t, s.Tick())
	assert.Empty(t, s.OnConnected())
}

func TestSupervisor_DuplicateDisconnectIgnored(t *testing.T) {
	s := NewSupervisor(Config{Countdown: 3}, nil)
	require.NotEmpty(t, s.OnDisconnected())
	s.Tick()
	assert.Empty(t, s.OnDisconnected())
	assert.Equal(t, 2, s.Countdown())
}

func TestSupervisor_RetriesUpToMaxAttempts(t *testing.T) {
	s := NewSupervisor(Config{Countdown: 2, MaxAttempts: 2}, zaptest.NewLogger(t))
	s.OnDisconnected()

	var all []Action
	for i := 0; i < 2; i++ {
		all = append(all, s.Tick()...)
	}
	require.Equal(t, GivingUp, s.State())

	all = append(all, s.OnAttemptFailed()...)
	require.Equal(t, Reconnecting, s.State())
	for i := 0; i < 2; i++ {
		all = append(all, s.Tick()...)
	}

	assert.Empty(t, s.OnAttemptFailed(), "budget is spent")
	assert.Equal(t, GivingUp, s.State())
	assert.Equal(t, 2, count(all, AttemptReconnect))
	assert.Equal(t, 1, count(all, ReturnToMenu), "menu transition only once per outage")
}
