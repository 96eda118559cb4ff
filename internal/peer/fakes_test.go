package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/DoyleJ11/driftsync/internal/roster"
	"github.com/DoyleJ11/driftsync/internal/transport"
	"github.com/DoyleJ11/driftsync/pkg/types"
)

type uiRecord struct {
	countdowns []int
	hidden     int
	menuShown  int
	gameOver   []int
	full       int
}

type fakeUI struct {
	mu     sync.Mutex
	rec    uiRecord
	onMenu bool
}

func (u *fakeUI) ShowReconnectCountdown(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rec.countdowns = append(u.rec.countdowns, n)
}

func (u *fakeUI) HideReconnectCountdown() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rec.hidden++
}

func (u *fakeUI) OnMenu() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.onMenu
}

func (u *fakeUI) ShowMenu() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rec.menuShown++
	u.onMenu = true
}

func (u *fakeUI) ShowGameOver(reward int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rec.gameOver = append(u.rec.gameOver, reward)
}

func (u *fakeUI) SessionFull() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rec.full++
}

func (u *fakeUI) record() uiRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	r := u.rec
	r.countdowns = append([]int(nil), u.rec.countdowns...)
	r.gameOver = append([]int(nil), u.rec.gameOver...)
	return r
}

type fakeWallet struct {
	mu      sync.Mutex
	credits []int
}

func (w *fakeWallet) Credit(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.credits = append(w.credits, n)
}

type fakeControllers struct {
	mu     sync.Mutex
	active map[roster.EntityRef]bool
	calls  int
}

func (c *fakeControllers) SetActive(e roster.EntityRef, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		c.active = map[roster.EntityRef]bool{}
	}
	c.active[e] = on
	c.calls++
}

func (c *fakeControllers) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeSpawner struct {
	base  roster.EntityRef
	slots []int
	err   error
}

func (s *fakeSpawner) Spawn(slot int, profile []byte) (roster.EntityRef, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.slots = append(s.slots, slot)
	return s.base + roster.EntityRef(slot), nil
}

type sentFrame struct {
	code    types.EventCode
	payload []byte
	target  types.ActorID
}

// fakeTransport lets a test play the relay by hand.
type fakeTransport struct {
	in         chan transport.Message
	mu         sync.Mutex
	broadcasts []sentFrame
	sendTos    []sentFrame
	states     [][]byte
	props      []map[string]string
	visible    []bool
	leaves     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan transport.Message, 64)}
}

func (f *fakeTransport) Connect(context.Context) error { return nil }
func (f *fakeTransport) CreateRoom(context.Context, string, int) error {
	return errors.New("not supported")
}
func (f *fakeTransport) JoinRoom(context.Context, string, map[string]string) error { return nil }
func (f *fakeTransport) ListRooms(context.Context) error                          { return nil }
func (f *fakeTransport) Inbound() <-chan transport.Message                        { return f.in }
func (f *fakeTransport) Close() error                                             { return nil }

func (f *fakeTransport) LeaveRoom() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *fakeTransport) Broadcast(code types.EventCode, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, sentFrame{code: code, payload: payload})
	return nil
}

func (f *fakeTransport) SendTo(code types.EventCode, payload []byte, target types.ActorID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendTos = append(f.sendTos, sentFrame{code: code, payload: payload, target: target})
	return nil
}

func (f *fakeTransport) SendState(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, payload)
	return nil
}

func (f *fakeTransport) SetProperties(props map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props = append(f.props, props)
	return nil
}

func (f *fakeTransport) SetRoomVisible(v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = append(f.visible, v)
	return nil
}
