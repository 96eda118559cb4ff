package slots

import (
	"errors"
	"fmt"
	"sync"

	"github.com/DoyleJ11/driftsync/internal/future"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"go.uber.org/zap"
)

var ErrIndexOutOfRange = errors.New("slot index out of range")

// Sender is the part of the transport the allocator needs.
type Sender interface {
	Broadcast(code types.EventCode, payload []byte) error
	SendTo(code types.EventCode, payload []byte, target types.ActorID) error
}

type Slot struct {
	Index int
	Owner types.ActorID
	Taken bool
}

// Outcome tells the caller what a remote mutation did to the local
// participant's own slot.
type Outcome struct {
	Displaced bool
	Index     int
	Full      bool
}

// Allocator owns a fixed table of spawn slots. Each peer keeps its own copy
// and converges with the others through SlotTaken / SlotReleased broadcasts
// and a point-to-point SlotSync sent to every newcomer.
//
// Two peers may claim the same free index concurrently. The claim of the
// lower ActorID wins everywhere; a local loser re-acquires.
type Allocator struct {
	mu     sync.Mutex
	table  []Slot
	local  types.ActorID
	sender Sender
	synced *future.Future[struct{}]
	log    *zap.Logger
}

func New(capacity int, sender Sender, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Allocator{sender: sender, log: logger}
	a.table = make([]Slot, capacity)
	a.Reset(0)
	return a
}

// Reset clears the table for a new room and arms a fresh sync future.
// The previous future, if still pending, is cancelled.
func (a *Allocator) Reset(local types.ActorID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.table {
		a.table[i] = Slot{Index: i}
	}
	a.local = local
	if a.synced != nil {
		a.synced.Cancel()
	}
	a.synced = future.New[struct{}]()
}

// Synced resolves once a SlotSync was applied, or MarkSynced was called
// because there was nobody to sync from.
func (a *Allocator) Synced() *future.Future[struct{}] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.synced
}

func (a *Allocator) MarkSynced() { a.Synced().Resolve(struct{}{}) }

func (a *Allocator) Capacity() int { return len(a.table) }

func (a *Allocator) Slots() []Slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Slot(nil), a.table...)
}

func (a *Allocator) SlotOf(p types.ActorID) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.indexOf(p)
}

// Acquire hands p the first free slot in index order and broadcasts the
// claim. A participant that already holds a slot gets it back unchanged.
// ok is false when the table is full.
func (a *Allocator) Acquire(p types.ActorID) (int, bool) {
	a.mu.Lock()
	idx, ok := a.indexOf(p)
	if ok {
		a.mu.Unlock()
		return idx, true
	}
	idx, ok = a.firstFree()
	if !ok {
		a.mu.Unlock()
		return -1, false
	}
	a.table[idx] = Slot{Index: idx, Owner: p, Taken: true}
	a.mu.Unlock()

	a.broadcast(types.EventSlotTaken, Assignment{Index: idx, Owner: p})
	return idx, true
}

// Release frees p's slot and broadcasts it. Releasing a participant with
// no slot does nothing.
func (a *Allocator) Release(p types.ActorID) (int, bool) {
	idx, ok := a.clear(p)
	if ok {
		a.broadcast(types.EventSlotReleased, Assignment{Index: idx, Owner: p})
	}
	return idx, ok
}

// Drop frees p's slot locally without telling anyone. Every peer drops a
// participant when the relay reports it left.
func (a *Allocator) Drop(p types.ActorID) bool {
	_, ok := a.clear(p)
	return ok
}

// Prune drops every occupant for which present reports false.
func (a *Allocator) Prune(present func(types.ActorID) bool) []types.ActorID {
	a.mu.Lock()
	defer a.mu.Unlock()
	var dropped []types.ActorID
	for i, s := range a.table {
		if s.Taken && !present(s.Owner) {
			dropped = append(dropped, s.Owner)
			a.table[i] = Slot{Index: i}
		}
	}
	return dropped
}

// SendSync sends the current table to a newcomer. A peer whose own table
// is not synced yet stays silent: an empty or partial reply would resolve
// the newcomer's Synced before the real table arrived.
func (a *Allocator) SendSync(target types.ActorID) error {
	a.mu.Lock()
	if !a.synced.Resolved() {
		a.mu.Unlock()
		a.log.Debug("not synced, skipping slot sync", zap.Int32("to", int32(target)))
		return nil
	}
	var taken []Assignment
	for _, s := range a.table {
		if s.Taken {
			taken = append(taken, Assignment{Index: s.Index, Owner: s.Owner})
		}
	}
	a.mu.Unlock()
	return a.sender.SendTo(types.EventSlotSync, EncodeSync(taken), target)
}

// ApplySync merges a SlotSync reply into the table and resolves Synced.
// Replies from several peers are merged as a union.
func (a *Allocator) ApplySync(data []byte) (Outcome, error) {
	taken, err := DecodeSync(data)
	if err != nil {
		return Outcome{}, err
	}
	var out Outcome
	for _, t := range taken {
		o, err := a.applyTaken(t)
		if err != nil {
			a.log.Warn("ignoring sync entry", zap.Int("index", t.Index), zap.Error(err))
			continue
		}
		out = merge(out, o)
	}
	a.MarkSynced()
	return out, nil
}

func (a *Allocator) ApplyTaken(data []byte) (Outcome, error) {
	t, err := decodeAssignment(data)
	if err != nil {
		return Outcome{}, err
	}
	return a.applyTaken(t)
}

// ApplyReleased clears the slot only while the named owner still holds it.
func (a *Allocator) ApplyReleased(data []byte) error {
	r, err := decodeAssignment(data)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if r.Index < 0 || r.Index >= len(a.table) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, r.Index)
	}
	if s := a.table[r.Index]; s.Taken && s.Owner == r.Owner {
		a.table[r.Index] = Slot{Index: r.Index}
	}
	return nil
}

func (a *Allocator) applyTaken(t Assignment) (Outcome, error) {
	a.mu.Lock()
	if t.Index < 0 || t.Index >= len(a.table) {
		a.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, t.Index)
	}
	cur := a.table[t.Index]
	if cur.Taken && cur.Owner != t.Owner && cur.Owner < t.Owner {
		// Existing holder wins; the claimant will re-acquire on its side.
		a.mu.Unlock()
		return Outcome{}, nil
	}

	for i, s := range a.table {
		if s.Taken && s.Owner == t.Owner && i != t.Index {
			a.table[i] = Slot{Index: i}
		}
	}
	a.table[t.Index] = Slot{Index: t.Index, Owner: t.Owner, Taken: true}
	displaced := cur.Taken && cur.Owner != t.Owner && cur.Owner == a.local
	a.mu.Unlock()

	if !displaced {
		return Outcome{}, nil
	}
	a.log.Info("lost slot to lower actor, re-acquiring",
		zap.Int("index", t.Index), zap.Int32("winner", int32(t.Owner)))
	idx, ok := a.Acquire(a.local)
	return Outcome{Displaced: true, Index: idx, Full: !ok}, nil
}

func (a *Allocator) clear(p types.ActorID) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.indexOf(p)
	if ok {
		a.table[idx] = Slot{Index: idx}
	}
	return idx, ok
}

func (a *Allocator) indexOf(p types.ActorID) (int, bool) {
	for i, s := range a.table {
		if s.Taken && s.Owner == p {
			return i, true
		}
	}
	return -1, false
}

func (a *Allocator) firstFree() (int, bool) {
	for i, s := range a.table {
		if !s.Taken {
			return i, true
		}
	}
	return -1, false
}

func (a *Allocator) broadcast(code types.EventCode, as Assignment) {
	payload, err := encodeAssignment(as)
	if err != nil {
		a.log.Error("encode slot event", zap.Stringer("code", code), zap.Error(err))
		return
	}
	if err := a.sender.Broadcast(code, payload); err != nil {
		a.log.Warn("broadcast slot event", zap.Stringer("code", code), zap.Error(err))
	}
}

func merge(a, b Outcome) Outcome {
	if b.Displaced {
		return b
	}
	return a
}
