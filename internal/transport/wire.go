package transport

import "github.com/DoyleJ11/driftsync/pkg/types"

// FromWire converts a relay frame into an inbound message. Frames that
// carry nothing for the peer report false.
func FromWire(room string, m types.ServerMessage) (Message, bool) {
	switch m.Type {
	case types.ServerJoined:
		return JoinedRoom{Room: room, Self: m.Self, Master: m.Master, Members: m.Members}, true
	case types.ServerParticipantJoined:
		if m.Participant == nil {
			return nil, false
		}
		return ParticipantJoined{Participant: *m.Participant}, true
	case types.ServerParticipantLeft:
		return ParticipantLeft{Actor: m.Actor}, true
	case types.ServerMasterChanged:
		return MasterChanged{Actor: m.Actor}, true
	case types.ServerEvent:
		return EventReceived{Code: m.Code, Payload: m.Payload, Sender: m.Sender}, true
	case types.ServerState:
		return StateReceived{Payload: m.Payload, Sender: m.Sender}, true
	case types.ServerProperties:
		if m.Participant == nil {
			return nil, false
		}
		return PropertiesChanged{Participant: *m.Participant}, true
	case types.ServerError:
		return RelayError{Reason: m.Error}, true
	default:
		return nil, false
	}
}

// Outgoing frames shared by every Transport implementation.

func BroadcastFrame(code types.EventCode, payload []byte) types.ClientMessage {
	return types.ClientMessage{Type: types.ClientBroadcast, Code: code, Payload: payload}
}

func SendToFrame(code types.EventCode, payload []byte, target types.ActorID) types.ClientMessage {
	return types.ClientMessage{Type: types.ClientSendTo, Code: code, Payload: payload, Target: target}
}

func StateFrame(payload []byte) types.ClientMessage {
	return types.ClientMessage{Type: types.ClientState, Payload: payload}
}

func PropertiesFrame(props map[string]string) types.ClientMessage {
	return types.ClientMessage{Type: types.ClientSetProperties, Props: props}
}

func VisibleFrame(visible bool) types.ClientMessage {
	return types.ClientMessage{Type: types.ClientSetVisible, Visible: &visible}
}
