package engine

import (
	"errors"
	"time"
)

var ErrGameAlreadyOver = errors.New("session already over")

type SessionState uint8

const (
	StateWaitingForPlayers SessionState = iota
	StateCountdownToStart
	StatePlaying
	StateGameOver
)

type Rules struct {
	PlayersRequired   int
	CountdownDuration time.Duration
	GameplayDuration  time.Duration
}

// Session is the replicated part of a room: which phase it is in and the
// timer of that phase. Only the authoritative peer advances it with Step;
// every other peer mirrors it through ApplySnapshot.
type Session struct {
	State SessionState
	Timer time.Duration
	Rules Rules
}

type EventType string

/*
	Step / EndGame / ApplySnapshot emit EvtStateChanged for every transition,
	followed by at most one entry event for the new state:

	-> CountdownToStart   EvtCountdownStarted
	-> WaitingForPlayers  EvtCountdownAborted (only when leaving the countdown)
	-> Playing            EvtGameplayStarted  hide room, activate controllers
	-> GameOver           EvtGameEnded        deactivate, reward, await ack, leave
*/
const (
	EvtStateChanged     EventType = "StateChanged"
	EvtCountdownStarted EventType = "CountdownStarted"
	EvtCountdownAborted EventType = "CountdownAborted"
	EvtGameplayStarted  EventType = "GameplayStarted"
	EvtGameEnded        EventType = "GameEnded"
)

type Event struct {
	Type EventType
	From SessionState
	To   SessionState
}

// Input is what the authoritative peer observed since the previous tick.
type Input struct {
	RosterSize int
	Elapsed    time.Duration
}

// Step evaluates one authoritative tick. The timer is decremented before
// its expiry is checked, and an expired timer is one that went below zero.
func Step(s Session, in Input) ([]Event, Session) {
	switch s.State {
	case StateWaitingForPlayers:
		if in.RosterSize >= s.Rules.PlayersRequired {
			return transition(s, StateCountdownToStart)
		}

	case StateCountdownToStart:
		if in.RosterSize < s.Rules.PlayersRequired {
			return transition(s, StateWaitingForPlayers)
		}
		s.Timer -= in.Elapsed
		if s.Timer < 0 {
			return transition(s, StatePlaying)
		}

	case StatePlaying:
		s.Timer -= in.Elapsed
		if s.Timer < 0 {
			return transition(s, StateGameOver)
		}
	}
	return nil, s
}

// EndGame forces GameOver from any live state.
func EndGame(s Session) ([]Event, Session, error) {
	if s.State == StateGameOver {
		return nil, s, ErrGameAlreadyOver
	}
	events, next := transition(s, StateGameOver)
	return events, next, nil
}

// ApplySnapshot mirrors a received snapshot. The timer is always copied;
// entry events only fire when the state differs from the current one, so
// applying the same snapshot twice is a no-op the second time.
func ApplySnapshot(s Session, snap Snapshot) ([]Event, Session) {
	s.Timer = snap.Timer
	if snap.State == s.State {
		return nil, s
	}
	events := entryEvents(s.State, snap.State)
	s.State = snap.State
	return events, s
}

func transition(s Session, to SessionState) ([]Event, Session) {
	events := entryEvents(s.State, to)
	s.State = to
	switch to {
	case StateCountdownToStart:
		s.Timer = s.Rules.CountdownDuration
	case StatePlaying:
		s.Timer = s.Rules.GameplayDuration
	case StateWaitingForPlayers, StateGameOver:
		s.Timer = 0
	}
	return events, s
}

func entryEvents(from, to SessionState) []Event {
	events := []Event{{Type: EvtStateChanged, From: from, To: to}}
	switch to {
	case StateCountdownToStart:
		events = append(events, Event{Type: EvtCountdownStarted, From: from, To: to})
	case StateWaitingForPlayers:
		if from == StateCountdownToStart {
			events = append(events, Event{Type: EvtCountdownAborted, From: from, To: to})
		}
	case StatePlaying:
		events = append(events, Event{Type: EvtGameplayStarted, From: from, To: to})
	case StateGameOver:
		events = append(events, Event{Type: EvtGameEnded, From: from, To: to})
	}
	return events
}
