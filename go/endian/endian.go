// Package endian detects host byte order and reverses fixed-width fields.
package endian

import (
	"encoding/binary"
)

var hostBig = binary.NativeEndian.Uint16([]byte{0x12, 0x34}) == 0x1234

// HostBigEndian reports whether the running machine is big-endian.
func HostBigEndian() bool { return hostBig }

// Host returns the byte order of the running machine.
func Host() binary.ByteOrder {
	if hostBig {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Opposite returns the byte order that is not o.
func Opposite(o binary.ByteOrder) binary.ByteOrder {
	if o == binary.ByteOrder(binary.BigEndian) {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Order returns BigEndian when big is set, LittleEndian otherwise.
func Order(big bool) binary.ByteOrder {
	if big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// NeedSwap reports whether fields stored in order o must be reversed to be host-native.
func NeedSwap(o binary.ByteOrder) bool {
	return (o == binary.ByteOrder(binary.BigEndian)) != hostBig
}

// Swap reverses buf in place.
func Swap(buf []byte) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}
