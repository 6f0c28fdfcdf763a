package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncatedPacket is returned when a packet length prefix runs past the payload.
var ErrTruncatedPacket = errors.New("protocol: truncated opus packet")

// SplitPackets splits an AUDIO payload that carries length-prefixed packets.
// Each packet is preceded by its length as a 2-byte big-endian integer.
func SplitPackets(data []byte) ([][]byte, error) {
	var packets [][]byte
	for off := 0; off < len(data); {
		if len(data)-off < 2 {
			return nil, fmt.Errorf("%w: dangling length byte at offset %d", ErrTruncatedPacket, off)
		}
		n := int(binary.BigEndian.Uint16(data[off:]))
		off += 2
		if n > len(data)-off {
			return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedPacket, n, off, len(data)-off)
		}
		if n > 0 {
			packets = append(packets, data[off:off+n])
		}
		off += n
	}
	return packets, nil
}

// JoinPackets is the inverse of SplitPackets.
func JoinPackets(packets ...[]byte) []byte {
	size := 0
	for _, p := range packets {
		size += 2 + len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range packets {
		out = binary.BigEndian.AppendUint16(out, uint16(len(p)))
		out = append(out, p...)
	}
	return out
}
