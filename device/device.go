// Package device models the accelerator memory space the decoder works on: explicit
// allocations addressed by device pointers, host<->device copies and blocking kernel launches.
package device

import (
	"context"
	"fmt"
)

// Ptr is an address in device memory. The zero value is the nil pointer.
type Ptr uint64

// Nil is the device nil pointer.
const Nil Ptr = 0

// Buffer is one device allocation.
type Buffer struct {
	Ptr  Ptr
	Size int
}

// IsNil reports whether the buffer refers to no allocation.
func (b Buffer) IsNil() bool {
	return b.Ptr == Nil
}

// At returns the device address at byte offset off inside the buffer.
func (b Buffer) At(off int) Ptr {
	return b.Ptr + Ptr(off)
}

func (b Buffer) String() string {
	return fmt.Sprintf("0x%x+%d", uint64(b.Ptr), b.Size)
}

// Kernel is the body of one work item of a launch. i is the index of the work item.
type Kernel func(ctx context.Context, i int) error

// Device is the allocator, copy engine and kernel launcher used by the decode pipeline.
//
// Kernels only touch device memory through View; the host side moves bytes in and out with
// CopyHostToDevice and CopyDeviceToHost.
type Device interface {
	// Alloc reserves size bytes. A zero size returns a nil buffer and no error.
	Alloc(size int) (Buffer, error)
	// Free releases an allocation. Freeing a nil buffer is a no-op.
	Free(b Buffer) error
	// View returns the n bytes of device memory starting at p. The range must lie inside a
	// single live allocation.
	View(p Ptr, n int) ([]byte, error)
	// CopyHostToDevice copies src to device memory at dst.
	CopyHostToDevice(dst Ptr, src []byte) error
	// CopyDeviceToHost copies len(dst) bytes from device memory at src.
	CopyDeviceToHost(dst []byte, src Ptr) error
	// Memset sets n bytes starting at p to v.
	Memset(p Ptr, v byte, n int) error
	// Launch runs kernel for every index in [0, n) and blocks until all of them finished.
	// The first error cancels the remaining work items and is returned.
	Launch(ctx context.Context, n int, kernel Kernel) error
}
