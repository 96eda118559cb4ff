package slots

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/DoyleJ11/driftsync/pkg/types"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrMalformedPayload = errors.New("malformed slot payload")

const syncVersion = 1

// Assignment pairs a slot index with its occupant.
type Assignment struct {
	Index int           `msgpack:"i"`
	Owner types.ActorID `msgpack:"o"`
}

// EncodeSync lays the table out as
//
//	version u8 | count u16 | count x index u16 | count x owner i32
//
// big endian, as two parallel arrays {takenIndices, ownerIDs}.
func EncodeSync(taken []Assignment) []byte {
	buf := make([]byte, 3+len(taken)*6)
	buf[0] = syncVersion
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(taken)))
	off := 3
	for _, a := range taken {
		binary.BigEndian.PutUint16(buf[off:], uint16(a.Index))
		off += 2
	}
	for _, a := range taken {
		binary.BigEndian.PutUint32(buf[off:], uint32(a.Owner))
		off += 4
	}
	return buf
}

func DecodeSync(data []byte) ([]Assignment, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: short header", ErrMalformedPayload)
	}
	if data[0] != syncVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedPayload, data[0])
	}
	n := int(binary.BigEndian.Uint16(data[1:3]))
	if len(data) != 3+n*6 {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrMalformedPayload, n, len(data))
	}
	out := make([]Assignment, n)
	off := 3
	for i := range out {
		out[i].Index = int(binary.BigEndian.Uint16(data[off:]))
		off += 2
	}
	for i := range out {
		out[i].Owner = types.ActorID(int32(binary.BigEndian.Uint32(data[off:])))
		off += 4
	}
	return out, nil
}

func encodeAssignment(a Assignment) ([]byte, error) {
	return msgpack.Marshal(a)
}

func decodeAssignment(data []byte) (Assignment, error) {
	var a Assignment
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return Assignment{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return a, nil
}
