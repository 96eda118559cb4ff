// Package roster keeps the in-session identity of every spawned
// participant. Entries are written by the authoritative spawn broadcast and
// removed locally when the relay reports a participant left.
package roster

import (
	"fmt"
	"sort"
	"sync"

	"github.com/DoyleJ11/driftsync/pkg/types"
	"github.com/vmihailenco/msgpack/v5"
)

// EntityRef is an opaque handle to a participant's controllable entity,
// issued by the game layer's spawner.
type EntityRef int32

type Entry struct {
	Participant types.ActorID `msgpack:"p"`
	DisplayName string        `msgpack:"n"`
	Entity      EntityRef     `msgpack:"e"`
	Score       int           `msgpack:"s"`
	Slot        int           `msgpack:"i"`
}

type Registry struct {
	mu      sync.RWMutex
	entries map[types.ActorID]*record
	seq     uint64
}

type record struct {
	Entry
	order uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[types.ActorID]*record)}
}

// Upsert inserts e, or replaces the entry for the same participant while
// keeping its original insertion position. It reports whether e was new.
func (r *Registry) Upsert(e Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.entries[e.Participant]; ok {
		rec.Entry = e
		return false
	}
	r.seq++
	r.entries[e.Participant] = &record{Entry: e, order: r.seq}
	return true
}

// Remove reports true only for the call that actually removed the entry.
func (r *Registry) Remove(p types.ActorID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[p]; !ok {
		return false
	}
	delete(r.entries, p)
	return true
}

// SetScore never creates an entry, so a property update that races a
// participant's departure cannot resurrect it.
func (r *Registry) SetScore(p types.ActorID, score int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[p]
	if !ok {
		return false
	}
	rec.Score = score
	return true
}

func (r *Registry) Get(p types.ActorID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.entries[p]
	if !ok {
		return Entry{}, false
	}
	return rec.Entry, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a copy ordered by score, highest first, ties by join.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.entries))
	for _, rec := range r.entries {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].order < recs[j].order
	})
	out := make([]Entry, len(recs))
	for i, rec := range recs {
		out[i] = rec.Entry
	}
	return out
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}

func EncodeEntry(e Entry) ([]byte, error) {
	return msgpack.Marshal(e)
}

func DecodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decode roster entry: %w", err)
	}
	if e.Participant == 0 {
		return Entry{}, fmt.Errorf("decode roster entry: missing participant")
	}
	return e, nil
}
