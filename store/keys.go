package store

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/xapiens/rvpf/datetime"
)

var (
	bucketArchive          = []byte("archive")
	bucketSnapshot         = []byte("snapshot")
	bucketArchiveByVersion = []byte("archive_by_version")
	bucketAttic            = []byte("attic")
	bucketMeta             = []byte("store_meta")
)

var metaKeyVersion = []byte("version")

// archiveKey is point_uuid(16) ++ stamp(8, sign-flipped so byte order
// matches numeric order).
func archiveKey(point uuid.UUID, stamp datetime.DateTime) []byte {
	key := make([]byte, 24)
	copy(key[:16], point[:])
	binary.BigEndian.PutUint64(key[16:], stampSortBits(stamp))
	return key
}

func stampSortBits(stamp datetime.DateTime) uint64 {
	return uint64(int64(stamp)) ^ (1 << 63)
}

func stampFromSortBits(bits uint64) datetime.DateTime {
	return datetime.DateTime(int64(bits ^ (1 << 63)))
}

func archiveKeyPoint(key []byte) uuid.UUID {
	var id uuid.UUID
	copy(id[:], key[:16])
	return id
}

func archiveKeyStamp(key []byte) datetime.DateTime {
	return stampFromSortBits(binary.BigEndian.Uint64(key[16:]))
}

func versionKey(version int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(version))
	return b[:]
}

func versionFromKey(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}
