package roster

import (
	"testing"

	"github.com/DoyleJ11/driftsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntries_SortedByScoreThenJoinOrder(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Entry{Participant: 1, DisplayName: "ana", Score: 10})
	r.Upsert(Entry{Participant: 2, DisplayName: "bo", Score: 30})
	r.Upsert(Entry{Participant: 3, DisplayName: "cy", Score: 10})

	var names []string
	for _, e := range r.Entries() {
		names = append(names, e.DisplayName)
	}
	assert.Equal(t, []string{"bo", "ana", "cy"}, names)

	require.True(t, r.SetScore(3, 50))
	assert.Equal(t, "cy", r.Entries()[0].DisplayName)
}

func TestUpsert_KeepsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Upsert(Entry{Participant: 1, DisplayName: "a"}))
	assert.True(t, r.Upsert(Entry{Participant: 2, DisplayName: "b"}))
	assert.False(t, r.Upsert(Entry{Participant: 1, DisplayName: "a2"}))

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a2", entries[0].DisplayName)
}

// Leave is processed, then a stale score update for the same participant
// arrives: the entry must stay gone.
func TestRemove_ExactlyOnceAgainstStaleScore(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Entry{Participant: 4, DisplayName: "dee", Score: 3})

	assert.True(t, r.Remove(4))
	assert.False(t, r.SetScore(4, 99))
	assert.False(t, r.Remove(4))

	_, ok := r.Get(4)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestEntries_ReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Entry{Participant: 1, Score: 1})
	got := r.Entries()
	got[0].Score = 100

	e, _ := r.Get(1)
	assert.Equal(t, 1, e.Score)
}

func TestEntryCodec(t *testing.T) {
	in := Entry{Participant: types.ActorID(7), DisplayName: "zed", Entity: 42, Score: 5, Slot: 2}
	data, err := EncodeEntry(in)
	require.NoError(t, err)

	out, err := DecodeEntry(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeEntry([]byte{0xc1})
	assert.Error(t, err)
}
