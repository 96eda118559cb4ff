package slots

import (
	"sync"
	"testing"

	"github.com/DoyleJ11/driftsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sent struct {
	Code    types.EventCode
	Payload []byte
	Target  types.ActorID // zero for broadcasts
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recordingSender) Broadcast(code types.EventCode, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{Code: code, Payload: payload})
	return nil
}

func (r *recordingSender) SendTo(code types.EventCode, payload []byte, target types.ActorID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{Code: code, Payload: payload, Target: target})
	return nil
}

func (r *recordingSender) last(t *testing.T) sent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.msgs)
	return r.msgs[len(r.msgs)-1]
}

func newAllocator(t *testing.T, capacity int, local types.ActorID) (*Allocator, *recordingSender) {
	t.Helper()
	s := &recordingSender{}
	a := New(capacity, s, zaptest.NewLogger(t))
	a.Reset(local)
	return a, s
}

func assertUnique(t *testing.T, a *Allocator) {
	t.Helper()
	seen := map[types.ActorID]int{}
	for _, s := range a.Slots() {
		if !s.Taken {
			continue
		}
		if prev, dup := seen[s.Owner]; dup {
			t.Fatalf("actor %d holds slots %d and %d", s.Owner, prev, s.Index)
		}
		seen[s.Owner] = s.Index
	}
}

func TestAcquire_FillsInIndexOrderThenReportsFull(t *testing.T) {
	a, sender := newAllocator(t, 5, 1)

	for i := 1; i <= 5; i++ {
		idx, ok := a.Acquire(types.ActorID(i))
		require.True(t, ok)
		assert.Equal(t, i-1, idx)
		assert.Equal(t, types.EventSlotTaken, sender.last(t).Code)
	}

	_, ok := a.Acquire(6)
	assert.False(t, ok, "sixth participant must not get a slot")
	assertUnique(t, a)
}

func TestAcquire_ReturnsHeldSlot(t *testing.T) {
	a, sender := newAllocator(t, 3, 1)
	idx, ok := a.Acquire(4)
	require.True(t, ok)
	n := len(sender.msgs)

	again, ok := a.Acquire(4)
	require.True(t, ok)
	assert.Equal(t, idx, again)
	assert.Len(t, sender.msgs, n, "re-acquire must not broadcast")
}

func TestRelease_NeverDoubleFrees(t *testing.T) {
	a, sender := newAllocator(t, 3, 1)
	a.Acquire(1)
	a.Acquire(2)

	idx, ok := a.Release(1)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	rel, err := decodeAssignment(sender.last(t).Payload)
	require.NoError(t, err)
	assert.Equal(t, Assignment{Index: 0, Owner: 1}, rel)

	n := len(sender.msgs)
	_, ok = a.Release(1)
	assert.False(t, ok)
	assert.Len(t, sender.msgs, n)

	// The freed slot is reused first.
	idx, _ = a.Acquire(3)
	assert.Equal(t, 0, idx)
	assertUnique(t, a)
}

func TestUniqueness_UnderMixedSequence(t *testing.T) {
	a, _ := newAllocator(t, 4, 1)
	ops := []struct {
		acquire bool
		actor   types.ActorID
	}{
		{true, 1}, {true, 2}, {true, 1}, {false, 2}, {true, 3}, {true, 2},
		{false, 1}, {true, 4}, {true, 5}, {true, 1}, {false, 9}, {true, 3},
	}
	for _, op := range ops {
		if op.acquire {
			a.Acquire(op.actor)
		} else {
			a.Release(op.actor)
		}
		assertUnique(t, a)
	}
}

func TestLateJoinerSync(t *testing.T) {
	existing, sender := newAllocator(t, 5, 10)
	require.True(t, existing.applyTakenOK(t, Assignment{Index: 0, Owner: 10}))
	require.True(t, existing.applyTakenOK(t, Assignment{Index: 2, Owner: 11}))
	existing.MarkSynced()

	require.NoError(t, existing.SendSync(12))
	msg := sender.last(t)
	assert.Equal(t, types.EventSlotSync, msg.Code)
	assert.Equal(t, types.ActorID(12), msg.Target)

	taken, err := DecodeSync(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, []Assignment{{Index: 0, Owner: 10}, {Index: 2, Owner: 11}}, taken)

	newcomer, _ := newAllocator(t, 5, 12)
	_, err = newcomer.ApplySync(msg.Payload)
	require.NoError(t, err)
	assert.True(t, newcomer.Synced().Resolved())

	// A second reply is a union and idempotent.
	_, err = newcomer.ApplySync(msg.Payload)
	require.NoError(t, err)

	idx, ok := newcomer.Acquire(12)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assertUnique(t, newcomer)
}

func TestSendSync_SilentUntilSynced(t *testing.T) {
	a, sender := newAllocator(t, 3, 2)
	require.NoError(t, a.SendSync(3))
	assert.Empty(t, sender.msgs, "an unsynced table must not answer")

	_, err := a.ApplySync(EncodeSync([]Assignment{{Index: 0, Owner: 1}}))
	require.NoError(t, err)
	require.NoError(t, a.SendSync(3))
	msg := sender.last(t)
	assert.Equal(t, types.EventSlotSync, msg.Code)
	taken, err := DecodeSync(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, []Assignment{{Index: 0, Owner: 1}}, taken)
}

func TestApplyTaken_LowerActorWinsConflict(t *testing.T) {
	a, sender := newAllocator(t, 3, 7)
	idx, _ := a.Acquire(7)
	require.Equal(t, 0, idx)

	// A higher actor claiming the same index loses.
	payload, _ := encodeAssignment(Assignment{Index: 0, Owner: 9})
	out, err := a.ApplyTaken(payload)
	require.NoError(t, err)
	assert.False(t, out.Displaced)
	got, _ := a.SlotOf(7)
	assert.Equal(t, 0, got)

	// A lower actor wins and the local participant moves on.
	payload, _ = encodeAssignment(Assignment{Index: 0, Owner: 3})
	out, err = a.ApplyTaken(payload)
	require.NoError(t, err)
	assert.True(t, out.Displaced)
	assert.Equal(t, 1, out.Index)
	assert.Equal(t, types.EventSlotTaken, sender.last(t).Code)
	assertUnique(t, a)
}

func TestApplyReleased_OnlyMatchingOwner(t *testing.T) {
	a, _ := newAllocator(t, 3, 1)
	a.Acquire(2)

	stale, _ := encodeAssignment(Assignment{Index: 0, Owner: 5})
	require.NoError(t, a.ApplyReleased(stale))
	_, ok := a.SlotOf(2)
	assert.True(t, ok)

	match, _ := encodeAssignment(Assignment{Index: 0, Owner: 2})
	require.NoError(t, a.ApplyReleased(match))
	_, ok = a.SlotOf(2)
	assert.False(t, ok)
}

func TestOutOfRangeIsRejected(t *testing.T) {
	a, _ := newAllocator(t, 2, 1)
	payload, _ := encodeAssignment(Assignment{Index: 9, Owner: 2})
	_, err := a.ApplyTaken(payload)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.ErrorIs(t, a.ApplyReleased(payload), ErrIndexOutOfRange)

	// Bad sync entries are skipped, the rest is applied.
	_, err = a.ApplySync(EncodeSync([]Assignment{{Index: 9, Owner: 2}, {Index: 1, Owner: 3}}))
	require.NoError(t, err)
	got, ok := a.SlotOf(3)
	require.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestDecodeSync_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"short":         {1},
		"bad version":   {2, 0, 0},
		"length lies":   {1, 0, 2, 0, 1},
		"trailing junk": append(EncodeSync(nil), 0xff),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSync(data)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestResetCancelsPendingSync(t *testing.T) {
	a, _ := newAllocator(t, 2, 1)
	pending := a.Synced()
	a.Reset(2)
	assert.True(t, pending.Resolved())
	assert.False(t, a.Synced().Resolved())
}

func TestPrune(t *testing.T) {
	a, _ := newAllocator(t, 3, 1)
	a.Acquire(1)
	a.Acquire(2)
	dropped := a.Prune(func(id types.ActorID) bool { return id == 1 })
	assert.Equal(t, []types.ActorID{2}, dropped)
	_, ok := a.SlotOf(2)
	assert.False(t, ok)
}

func (a *Allocator) applyTakenOK(t *testing.T, as Assignment) bool {
	t.Helper()
	_, err := a.applyTaken(as)
	return err == nil
}
