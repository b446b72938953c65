package placement

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/lootquest/arengine/pkg/core"
)

// Key hashes the hunt type and every descriptor field. Two requests with the same
// key place the same objects; the reference coordinate is deliberately excluded
// because it is captured once per session.
func Key(huntType core.HuntType, descriptors []core.LootDescriptor) uint64 {
	d := xxhash.New()
	var buf [8]byte

	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	writeF64 := func(v float64) {
		writeU64(math.Float64bits(v))
	}
	writeStr := func(s string) {
		writeU64(uint64(len(s)))
		_, _ = d.WriteString(s)
	}

	writeU64(uint64(huntType))
	writeU64(uint64(len(descriptors)))
	for _, ld := range descriptors {
		writeStr(ld.ID)
		writeU64(uint64(int64(ld.Order)))
		writeU64(uint64(ld.Kind))
		if ld.Position != nil {
			writeU64(1)
			writeF64(ld.Position.Latitude)
			writeF64(ld.Position.Longitude)
		} else {
			writeU64(0)
		}
		if ld.Bearing != nil {
			writeU64(1)
			writeF64(ld.Bearing.Distance)
			writeStr(ld.Bearing.Bearing)
		} else {
			writeU64(0)
		}
	}
	return d.Sum64()
}
