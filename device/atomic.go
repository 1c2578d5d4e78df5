package device

import (
	"sync/atomic"
	"unsafe"
)

// OrUint32 atomically ORs mask into the 32-bit word with index word of buf.
// buf must start at a 4-byte aligned device address, which holds for every allocation base.
func OrUint32(buf []byte, word int, mask uint32) {
	if mask == 0 {
		return
	}
	_ = buf[word*4+3]
	atomic.OrUint32((*uint32)(unsafe.Pointer(&buf[word*4])), mask)
}

// LoadUint32 atomically loads the 32-bit word with index word of buf.
func LoadUint32(buf []byte, word int) uint32 {
	_ = buf[word*4+3]
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&buf[word*4])))
}
