package hub

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/driftsync/internal/room"
	"github.com/DoyleJ11/driftsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, zap.NewNop())
}

func create(h *Hub, name string, capacity int) *room.Room {
	reply := make(chan Created, 1)
	h.Inbox() <- CreateRoom{Name: name, Capacity: capacity, Reply: reply}
	return (<-reply).Room
}

func list(h *Hub) []types.RoomInfo {
	reply := make(chan []types.RoomInfo, 1)
	h.Inbox() <- ListRooms{Reply: reply}
	return <-reply
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t)

	r1 := create(h, "ZED123", 5)
	r2 := h.Lookup(context.Background(), "ZED123")

	if r1 == nil || r2 == nil || r1 != r2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_CreateExistingNameFails(t *testing.T) {
	h := newTestHub(t)
	require.NotNil(t, create(h, "dupe", 5))
	assert.Nil(t, create(h, "dupe", 3))

	_, err := h.Create(context.Background(), "dupe", 3)
	assert.ErrorIs(t, err, ErrRoomExists)
}

func TestHub_CreateBoundsCapacity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(ctx, zap.NewNop(), WithMaxPlayers(4))

	for _, capacity := range []int{-1, 5, 50} {
		_, err := h.Create(ctx, "bounded", capacity)
		assert.ErrorIs(t, err, ErrInvalidCapacity, "capacity %d", capacity)
	}

	r, err := h.Create(ctx, "bounded", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Capacity(), "zero means the maximum")

	r, err = h.Create(ctx, "pair", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Capacity())
}

func TestHub_UnjoinedRoomExpires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(ctx, zap.NewNop(), WithIdleTimeout(20*time.Millisecond))

	r, err := h.Create(ctx, "lonely", 2)
	require.NoError(t, err)
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("unjoined room still running")
	}
	require.Eventually(t, func() bool {
		return h.Lookup(ctx, "lonely") == nil
	}, time.Second, 10*time.Millisecond)
}

func TestHub_ListTracksMembersAndHidesInvisibleRooms(t *testing.T) {
	h := newTestHub(t)
	a := create(h, "alpha", 5)
	create(h, "beta", 2)

	out := make(chan types.ServerMessage, 16)
	master, err := a.Join(context.Background(), "ana", nil, out)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rooms := list(h)
		return len(rooms) == 2 && rooms[0].Name == "alpha" && rooms[0].Members == 1
	}, time.Second, 10*time.Millisecond)

	hidden := false
	a.Inbox() <- room.FromClient{Actor: master, Msg: types.ClientMessage{Type: types.ClientSetVisible, Visible: &hidden}}

	require.Eventually(t, func() bool {
		rooms := list(h)
		return len(rooms) == 1 && rooms[0].Name == "beta"
	}, time.Second, 10*time.Millisecond)
}

func TestHub_EmptyRoomIsRemoved(t *testing.T) {
	h := newTestHub(t)
	r := create(h, "short", 5)

	out := make(chan types.ServerMessage, 16)
	id, err := r.Join(context.Background(), "ana", nil, out)
	require.NoError(t, err)
	r.Inbox() <- room.Leave{Actor: id}

	require.Eventually(t, func() bool {
		return h.Lookup(context.Background(), "short") == nil
	}, time.Second, 10*time.Millisecond)

	// The name is free again.
	assert.NotNil(t, create(h, "short", 5))
}

func TestHub_ShutdownStopsRooms(t *testing.T) {
	h := newTestHub(t)
	r := create(h, "bye", 5)
	h.Inbox() <- ShutdownHub{}

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("room still running after hub shutdown")
	}
	assert.Nil(t, h.Lookup(context.Background(), "bye"))
}

func TestValidateRoomName(t *testing.T) {
	cases := map[string]bool{
		"ab":                 false,
		"abc":                true,
		"sixteen-chars-ok":   true,
		"seventeen-chars-no": false,
		" pad":               false,
		"ünï":                true,
	}
	for name, ok := range cases {
		err := ValidateRoomName(name)
		if ok {
			assert.NoError(t, err, name)
		} else {
			assert.ErrorIs(t, err, ErrInvalidRoomName, name)
		}
	}
}
