package packet

// Checksum computes the Internet checksum (RFC 1071) of b.
//
// Words are summed in network byte order, so the result can be stored into
// a header with binary.BigEndian.PutUint16. An odd trailing byte is padded
// with a zero low byte.
func Checksum(b []byte) uint16 {
	var sum uint32

	n := len(b)
	i := 0
	for ; n > 1; n -= 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
		i += 2
	}
	if n == 1 {
		sum += uint32(b[i]) << 8
	}

	sum = (sum >> 16) + (sum & 0xffff)
	sum += sum >> 16

	return ^uint16(sum)
}
