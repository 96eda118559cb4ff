package engine

func NewSession(rules Rules) Session {
	return Session{State: StateWaitingForPlayers, Rules: rules}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func (s SessionState) Valid() bool { return s <= StateGameOver }

func (s SessionState) String() string {
	switch s {
	case StateWaitingForPlayers:
		return "WaitingForPlayers"
	case StateCountdownToStart:
		return "CountdownToStart"
	case StatePlaying:
		return "Playing"
	case StateGameOver:
		return "GameOver"
	default:
		return "Unknown"
	}
}

// Live reports whether the session still accepts roster changes.
func (s SessionState) Live() bool { return s != StateGameOver }
