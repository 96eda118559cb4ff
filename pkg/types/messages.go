package types

// Client -> Relay
// Join (first frame on a connection):
//   name: string
//   props: { [key]: string }
//
// Broadcast:
//   code: number
//   payload: bytes
//
// SendTo:
//   code: number
//   payload: bytes
//   target: number
//
// State (per-tick state sync, relayed to everyone else):
//   payload: bytes
//
// SetProperties:
//   props: { [key]: string }   // merged into the sender's bag
//
// SetVisible (master only):
//   visible: boolean
//
// Leave: {}

// Relay -> Client
// Joined:            self, master, members
// ParticipantJoined: participant
// ParticipantLeft:   actor
// MasterChanged:     actor
// Event:             code, payload, sender
// State:             payload, sender
// Properties:        participant
// Error:             error

type ClientType string

const (
	ClientJoin          ClientType = "Join"
	ClientBroadcast     ClientType = "Broadcast"
	ClientSendTo        ClientType = "SendTo"
	ClientState         ClientType = "State"
	ClientSetProperties ClientType = "SetProperties"
	ClientSetVisible    ClientType = "SetVisible"
	ClientLeave         ClientType = "Leave"
)

type ServerType string

const (
	ServerJoined            ServerType = "Joined"
	ServerParticipantJoined ServerType = "ParticipantJoined"
	ServerParticipantLeft   ServerType = "ParticipantLeft"
	ServerMasterChanged     ServerType = "MasterChanged"
	ServerEvent             ServerType = "Event"
	ServerState             ServerType = "State"
	ServerProperties        ServerType = "Properties"
	ServerError             ServerType = "Error"
)

type ClientMessage struct {
	Type    ClientType        `json:"type"`
	Name    string            `json:"name,omitempty"`
	Code    EventCode         `json:"code,omitempty"`
	Payload []byte            `json:"payload,omitempty"`
	Target  ActorID           `json:"target,omitempty"`
	Props   map[string]string `json:"props,omitempty"`
	Visible *bool             `json:"visible,omitempty"`
}

type ServerMessage struct {
	Type        ServerType    `json:"type"`
	Self        ActorID       `json:"self,omitempty"`
	Master      ActorID       `json:"master,omitempty"`
	Members     []Participant `json:"members,omitempty"`
	Participant *Participant  `json:"participant,omitempty"`
	Actor       ActorID       `json:"actor,omitempty"`
	Code        EventCode     `json:"code,omitempty"`
	Payload     []byte        `json:"payload,omitempty"`
	Sender      ActorID       `json:"sender,omitempty"`
	Error       string        `json:"error,omitempty"`
}
