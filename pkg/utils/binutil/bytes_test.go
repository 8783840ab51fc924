package binutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShrinkAndExpandBool(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, false, false, true}
	packed := ShrinkBool(bits)
	assert.Equal(t, []byte{0x0D, 0x01}, packed)
	assert.Equal(t, bits, ExpandBool(packed, len(bits)))
}

func TestExpandBoolTruncatesToAvailableBits(t *testing.T) {
	assert.Len(t, ExpandBool([]byte{0xFF}, 20), 8)
	assert.Equal(t, []bool{true, true, true}, ExpandBool([]byte{0xFF}, 3))
}

func TestParseUint16Slice(t *testing.T) {
	assert.Equal(t, []uint16{0x1234, 0x00FF}, ParseUint16Slice([]byte{0x12, 0x34, 0x00, 0xFF}))
	assert.Equal(t, uint16(0xABCD), ParseUint16BigEndian([]byte{0xAB, 0xCD}))
}
