package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dargueta/fatfs/internal/codec"
)

func TestU16RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	codec.StoreU16(buf, 1, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), codec.LoadU16(buf, 1))
}

func TestU32RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	codec.StoreU32(buf, 2, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), codec.LoadU32(buf, 2))
}

func TestFAT12Entry_EvenOddPacking(t *testing.T) {
	// Cluster 2 (even) low 12 bits in the low nibble pair; cluster 3 (odd)
	// high 12 bits spanning the top nibble of byte 1 and all of byte 2.
	pair2 := codec.SetFAT12Entry(2, [2]byte{0, 0}, 0x345)
	assert.Equal(t, uint16(0x345), codec.GetFAT12Entry(2, pair2))

	pair3 := codec.SetFAT12Entry(3, [2]byte{0, 0}, 0x678)
	assert.Equal(t, uint16(0x678), codec.GetFAT12Entry(3, pair3))
}

func TestFAT12EntryByteOffset(t *testing.T) {
	assert.Equal(t, uint32(0), codec.FAT12EntryByteOffset(0))
	assert.Equal(t, uint32(3), codec.FAT12EntryByteOffset(2))
	assert.Equal(t, uint32(4), codec.FAT12EntryByteOffset(3))
}
