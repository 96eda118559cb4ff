package peer

import (
	"github.com/DoyleJ11/driftsync/internal/engine"
	"github.com/DoyleJ11/driftsync/internal/roster"
	"github.com/DoyleJ11/driftsync/pkg/types"
)

// Spawner instantiates the local participant's controllable entity.
type Spawner interface {
	Spawn(slot int, profile []byte) (roster.EntityRef, error)
}

type Controllers interface {
	SetActive(entity roster.EntityRef, active bool)
}

// UI hooks are called from the tick goroutine. They must not block and
// must not call back into the Peer synchronously.
type UI interface {
	ShowReconnectCountdown(remaining int)
	HideReconnectCountdown()
	OnMenu() bool
	ShowMenu()
	// ShowGameOver offers the default reward; the player confirms through
	// Peer.AcknowledgeReward, possibly with a different amount.
	ShowGameOver(defaultReward int)
	SessionFull()
}

type Wallet interface {
	Credit(amount int)
}

type Notification interface{ isNotification() }

type StateChanged struct {
	From engine.SessionState
	To   engine.SessionState
}

type RosterChanged struct {
	Entries []roster.Entry
}

type RoomsListed struct {
	Rooms []types.RoomInfo
}

type JoinRejected struct {
	Room   string
	Reason error
}

func (StateChanged) isNotification()  {}
func (RosterChanged) isNotification() {}
func (RoomsListed) isNotification()   {}
func (JoinRejected) isNotification()  {}

type nopSpawner struct{ next roster.EntityRef }

func (s *nopSpawner) Spawn(int, []byte) (roster.EntityRef, error) {
	s.next++
	return s.next, nil
}

type nopControllers struct{}

func (nopControllers) SetActive(roster.EntityRef, bool) {}

type nopUI struct{}

func (nopUI) ShowReconnectCountdown(int) {}
func (nopUI) HideReconnectCountdown()    {}
func (nopUI) OnMenu() bool               { return true }
func (nopUI) ShowMenu()                  {}
func (nopUI) ShowGameOver(int)           {}
func (nopUI) SessionFull()               {}

type nopWallet struct{}

func (nopWallet) Credit(int) {}
