// Package transport is the peer's view of the relay: room membership,
// relayed events and the connection lifecycle, all delivered on a single
// inbound channel.
package transport

import (
	"context"
	"errors"

	"github.com/DoyleJ11/driftsync/pkg/types"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNotInRoom    = errors.New("not in a room")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomFull     = errors.New("room full")
	ErrDropped      = errors.New("dropped by relay")
)

type Transport interface {
	Connect(ctx context.Context) error
	CreateRoom(ctx context.Context, name string, capacity int) error
	// JoinRoom reports immediate failures as an error and also pushes
	// JoinFailed. Success arrives as JoinedRoom on Inbound.
	JoinRoom(ctx context.Context, name string, props map[string]string) error
	LeaveRoom() error
	// ListRooms pushes RoomListUpdated.
	ListRooms(ctx context.Context) error

	Broadcast(code types.EventCode, payload []byte) error
	SendTo(code types.EventCode, payload []byte, target types.ActorID) error
	SendState(payload []byte) error
	SetProperties(props map[string]string) error
	SetRoomVisible(visible bool) error

	Inbound() <-chan Message
	Close() error
}

type Message interface{ isTransportMsg() }

type ConnectedToServer struct{}

type Disconnected struct{ Cause error }

type JoinedRoom struct {
	Room    string
	Self    types.ActorID
	Master  types.ActorID
	Members []types.Participant
}

type JoinFailed struct {
	Room   string
	Reason error
}

type LeftRoom struct{}

type ParticipantJoined struct{ Participant types.Participant }

type ParticipantLeft struct{ Actor types.ActorID }

type MasterChanged struct{ Actor types.ActorID }

type EventReceived struct {
	Code    types.EventCode
	Payload []byte
	Sender  types.ActorID
}

type StateReceived struct {
	Payload []byte
	Sender  types.ActorID
}

type PropertiesChanged struct{ Participant types.Participant }

type RoomListUpdated struct{ Rooms []types.RoomInfo }

type RelayError struct{ Reason string }

func (ConnectedToServer) isTransportMsg() {}
func (Disconnected) isTransportMsg()      {}
func (JoinedRoom) isTransportMsg()        {}
func (JoinFailed) isTransportMsg()        {}
func (LeftRoom) isTransportMsg()          {}
func (ParticipantJoined) isTransportMsg() {}
func (ParticipantLeft) isTransportMsg()   {}
func (MasterChanged) isTransportMsg()     {}
func (EventReceived) isTransportMsg()     {}
func (StateReceived) isTransportMsg()     {}
func (PropertiesChanged) isTransportMsg() {}
func (RoomListUpdated) isTransportMsg()   {}
func (RelayError) isTransportMsg()        {}
