package icmpping

import "encoding/binary"

const (
	echoRequestType = 8
	echoRequestCode = 0
	echoReplyType   = 0
	echoReplyCode   = 0

	// echoMessageLen is the fixed on-wire length of an echo request/reply
	// this client builds and expects: type, code, checksum, identifier,
	// sequence — no payload.
	echoMessageLen = 8
)

// sum16 computes the 16-bit one's-complement sum (carry-folded, but not
// complemented) of buf, treating it as a sequence of big-endian 16-bit
// words. A trailing odd byte is padded with a zero low byte.
func sum16(buf []byte) uint16 {
	var sum uint32

	n := len(buf)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(buf[n-1]) << 8
	}

	for sum>>16 > 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}

	return uint16(sum)
}

// checksum computes the ICMP checksum of buf: the one's-complement of the
// carry-folded 16-bit sum.
func checksum(buf []byte) uint16 {
	return ^sum16(buf)
}

// writeChecksum zeroes buf's checksum field (bytes 2:4), computes the
// checksum over the whole buffer, and writes the result back into that
// field.
func writeChecksum(buf []byte) {
	buf[2], buf[3] = 0, 0
	c := checksum(buf)
	binary.BigEndian.PutUint16(buf[2:4], c)
}

// buildEchoRequest constructs an ICMPv4 echo request with the given
// identifier and sequence and no payload, checksum already computed.
func buildEchoRequest(id, seq uint16) []byte {
	buf := make([]byte, echoMessageLen)
	buf[0] = echoRequestType
	buf[1] = echoRequestCode
	binary.BigEndian.PutUint16(buf[4:6], id)
	binary.BigEndian.PutUint16(buf[6:8], seq)
	writeChecksum(buf)

	return buf
}

// parseEchoReply parses a raw IPv4 packet (including its IPv4 header) and,
// if it is exactly an ICMPv4 echo reply with no payload, returns its
// identifier and sequence. Any other shape is silently rejected.
func parseEchoReply(packet []byte) (id, seq uint16, ok bool) {
	if len(packet) < 1 {
		return 0, 0, false
	}

	ipHeaderLen := int(packet[0]&0x0f) * 4
	if len(packet) != ipHeaderLen+echoMessageLen {
		return 0, 0, false
	}

	body := packet[ipHeaderLen:]
	if body[0] != echoReplyType || body[1] != echoReplyCode {
		return 0, 0, false
	}

	id = binary.BigEndian.Uint16(body[4:6])
	seq = binary.BigEndian.Uint16(body[6:8])

	return id, seq, true
}
