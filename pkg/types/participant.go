package types

// ActorID is the relay-issued identifier of a room member. It is stable for
// the lifetime of the room and strictly increasing in join order, so the
// lowest live ActorID is always the longest-standing member.
type ActorID int32

// EventCode tags relayed session events.
type EventCode uint8

const (
	EventSlotSync           EventCode = 1
	EventSlotTaken          EventCode = 2
	EventSlotReleased       EventCode = 3
	EventParticipantSpawned EventCode = 4
)

func (c EventCode) String() string {
	switch c {
	case EventSlotSync:
		return "SlotSync"
	case EventSlotTaken:
		return "SlotTaken"
	case EventSlotReleased:
		return "SlotReleased"
	case EventParticipantSpawned:
		return "ParticipantSpawned"
	default:
		return "Unknown"
	}
}

// Well-known property keys.
const (
	PropPlayerData = "PlayerData"
	PropScore      = "score"
)

type Participant struct {
	ID    ActorID           `json:"id"`
	Name  string            `json:"name"`
	Props map[string]string `json:"props,omitempty"`
}

// Clone returns a copy whose property bag can be mutated independently.
func (p Participant) Clone() Participant {
	out := p
	if p.Props != nil {
		out.Props = make(map[string]string, len(p.Props))
		for k, v := range p.Props {
			out.Props[k] = v
		}
	}
	return out
}

type RoomInfo struct {
	Name     string `json:"name"`
	Members  int    `json:"members"`
	Capacity int    `json:"capacity"`
	Visible  bool   `json:"visible"`
}
