package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrMalformedSnapshot = errors.New("malformed snapshot")

const snapshotVersion = 1

type Snapshot struct {
	State SessionState
	Timer time.Duration
}

// wireSnapshot carries the timer as float seconds.
type wireSnapshot struct {
	V     uint8   `msgpack:"v"`
	Timer float64 `msgpack:"t"`
	State uint8   `msgpack:"s"`
}

func SnapshotOf(s Session) Snapshot {
	return Snapshot{State: s.State, Timer: s.Timer}
}

func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return msgpack.Marshal(wireSnapshot{
		V:     snapshotVersion,
		Timer: s.Timer.Seconds(),
		State: uint8(s.State),
	})
}

func DecodeSnapshot(data []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if w.V != snapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: version %d", ErrMalformedSnapshot, w.V)
	}
	state := SessionState(w.State)
	if !state.Valid() {
		return Snapshot{}, fmt.Errorf("%w: state %d", ErrMalformedSnapshot, w.State)
	}
	if math.IsNaN(w.Timer) || math.IsInf(w.Timer, 0) {
		return Snapshot{}, fmt.Errorf("%w: timer %v", ErrMalformedSnapshot, w.Timer)
	}
	return Snapshot{State: state, Timer: time.Duration(w.Timer * float64(time.Second))}, nil
}
