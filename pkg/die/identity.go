package die

import (
	"cmp"
	"debug/dwarf"
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Key identifies an entry across traversals: two views of the same entry
// always produce equal keys, whatever path they were reached through.
type Key struct {
	Unit   dwarf.Offset
	Offset dwarf.Offset
}

// KeyOf returns the identity key of e.
func KeyOf(e Entry) Key {
	return Key{Unit: e.Unit().Offset(), Offset: e.Offset()}
}

// Compare orders keys by unit offset, then by entry offset.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Unit, o.Unit); c != 0 {
		return c
	}
	return cmp.Compare(k.Offset, o.Offset)
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

// Hash mixes both offsets. Equal keys always hash equal.
func (k Key) Hash() uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(k.Offset))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(k.Unit))
	return xxh3.Hash(buf[:])
}

// Equal reports whether a and b denote the same entry. b may be an Entry or
// a Key; any other value is never equal.
func Equal(a Entry, b any) bool {
	if a == nil {
		return false
	}
	switch o := b.(type) {
	case Entry:
		if o == nil {
			return false
		}
		return KeyOf(a) == KeyOf(o)
	case Key:
		return KeyOf(a) == o
	default:
		return false
	}
}

// Compare orders two entries by their keys. It returns -1, 0 or +1.
func Compare(a, b Entry) int {
	return KeyOf(a).Compare(KeyOf(b))
}

// Hash returns the identity hash of e.
func Hash(e Entry) uint64 {
	return KeyOf(e).Hash()
}
