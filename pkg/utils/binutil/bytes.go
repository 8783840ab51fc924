package binutil

// ParseUint16BigEndian 解析
func ParseUint16BigEndian(buf []byte) uint16 {
	return uint16(buf[0])<<8 + uint16(buf[1])
}

// ParseUint16Slice decodes big-endian words, as holding registers travel on the wire.
func ParseUint16Slice(buf []byte) []uint16 {
	r := make([]uint16, len(buf)/2)
	for i := range r {
		r[i] = ParseUint16BigEndian(buf[i*2:])
	}
	return r
}

// ShrinkBool 压缩布尔类型
func ShrinkBool(buf []bool) []byte {
	length := len(buf)
	// length = length % 8 == 0 ? length / 8 : length / 8 + 1;
	ln := length >> 3    // length/8
	if length&0x07 > 0 { // length%8
		ln++
	}

	b := make([]byte, ln)

	for i := 0; i < length; i++ {
		if buf[i] {
			// b[i/8] += 1 << (i % 8)
			b[i>>3] += 1 << (i & 0x07)
		}
	}

	return b
}

// ExpandBool 展开布尔类型, count is the number of bits wanted, LSB of the first byte first.
func ExpandBool(buf []byte, count int) []bool {
	if count > len(buf)<<3 {
		count = len(buf) << 3
	}
	b := make([]bool, count)
	for i := 0; i < count; i++ {
		if buf[i>>3]&(1<<(i&0x07)) > 0 {
			b[i] = true
		}
	}
	return b
}
