package dot1x

import "sync"

// MaxEthernetFrame is the largest Ethernet frame this codec will read into
// a pooled buffer (standard MTU plus headroom for jumbo-capable NICs).
const MaxEthernetFrame = 9000

// PacketPool provides zero-allocation reuse of receive buffers for both
// EapolLink and RadiusLink, sized to the larger of Ethernet MTU and the
// RADIUS truncation bound (§4.3).
var PacketPool = sync.Pool{
	New: func() any {
		buf := make([]byte, MaxEthernetFrame)
		return &buf
	},
}

// GetPacketBuf borrows a buffer from PacketPool.
func GetPacketBuf() *[]byte {
	buf, _ := PacketPool.Get().(*[]byte)
	return buf
}

// PutPacketBuf returns a buffer to PacketPool.
func PutPacketBuf(buf *[]byte) {
	PacketPool.Put(buf)
}
