package device

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrOutOfMemory is returned by Alloc when the device capacity would be exceeded.
	ErrOutOfMemory = errors.New("device: out of memory")
	// ErrInvalidPointer is returned when a pointer does not belong to a live allocation.
	ErrInvalidPointer = errors.New("device: invalid device pointer")
)

const (
	// first address handed out, so that small integers never look like valid pointers.
	hostBaseAddress = 0x10000
	// allocations are aligned and separated by a guard gap, a pointer past the end of one
	// allocation never resolves into the next one.
	hostAlignment = 256
	// largest total the host heap is asked to back, well below the runtime's slice limit.
	maxHostAllocation = 1 << 40
)

type allocation struct {
	base Ptr
	data []byte
}

// Host is a Device backed by host memory. It tracks every live allocation and enforces an
// optional capacity, which makes it suitable both as a CPU fallback and for leak checks in
// tests.
type Host struct {
	mu      sync.RWMutex
	allocs  map[Ptr]*allocation
	bases   []Ptr // sorted
	next    Ptr
	inUse   uint64
	peak    uint64
	maxSize uint64
	workers int
}

// HostOption configures a Host device.
type HostOption func(*Host)

// WithCapacity limits the total number of bytes that can be allocated at the same time.
// Zero means unlimited.
func WithCapacity(maxSize uint64) HostOption {
	return func(h *Host) {
		h.maxSize = maxSize
	}
}

// WithWorkers sets the number of work items a launch runs concurrently. It defaults to
// GOMAXPROCS.
func WithWorkers(n int) HostOption {
	return func(h *Host) {
		h.workers = n
	}
}

// NewHost creates a host memory backed device.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		allocs:  make(map[Ptr]*allocation),
		next:    hostBaseAddress,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.workers <= 0 {
		h.workers = 1
	}
	return h
}

// Alloc implements Device.
func (h *Host) Alloc(size int) (Buffer, error) {
	if size < 0 {
		return Buffer{}, errors.Errorf("device: negative allocation size %d", size)
	}
	if size == 0 {
		return Buffer{}, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if uint64(size) > maxHostAllocation || h.inUse+uint64(size) > maxHostAllocation {
		return Buffer{}, errors.Wrapf(ErrOutOfMemory, "allocation of %d bytes exceeds the host limit of %d bytes", size, uint64(maxHostAllocation))
	}
	if h.maxSize > 0 && h.inUse+uint64(size) > h.maxSize {
		return Buffer{}, errors.Wrapf(ErrOutOfMemory, "memory usage of %d bytes is greater than configured maximum of %d bytes",
			h.inUse+uint64(size), h.maxSize)
	}

	// backing words keep every allocation 8-byte aligned for the atomic validity updates.
	words := make([]uint64, (size+7)/8)
	data := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)

	a := &allocation{base: h.next, data: data}
	h.next += Ptr((size + 2*hostAlignment - 1) / hostAlignment * hostAlignment)
	h.allocs[a.base] = a
	h.bases = append(h.bases, a.base) // addresses only grow, the slice stays sorted
	h.inUse += uint64(size)
	if h.inUse > h.peak {
		h.peak = h.inUse
	}

	return Buffer{Ptr: a.base, Size: size}, nil
}

// Free implements Device.
func (h *Host) Free(b Buffer) error {
	if b.IsNil() {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.allocs[b.Ptr]
	if !ok {
		return errors.Wrapf(ErrInvalidPointer, "free of 0x%x", uint64(b.Ptr))
	}
	delete(h.allocs, b.Ptr)
	idx := sort.Search(len(h.bases), func(i int) bool { return h.bases[i] >= b.Ptr })
	h.bases = append(h.bases[:idx], h.bases[idx+1:]...)
	h.inUse -= uint64(len(a.data))
	return nil
}

func (h *Host) resolve(p Ptr, n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Errorf("device: negative length %d", n)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	idx := sort.Search(len(h.bases), func(i int) bool { return h.bases[i] > p }) - 1
	if idx < 0 {
		return nil, errors.Wrapf(ErrInvalidPointer, "address 0x%x", uint64(p))
	}
	a := h.allocs[h.bases[idx]]
	off := int(p - a.base)
	if off > len(a.data) || n > len(a.data)-off {
		return nil, errors.Wrapf(ErrInvalidPointer, "range 0x%x+%d outside allocation 0x%x+%d",
			uint64(p), n, uint64(a.base), len(a.data))
	}
	return a.data[off : off+n : off+n], nil
}

// View implements Device.
func (h *Host) View(p Ptr, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	return h.resolve(p, n)
}

// CopyHostToDevice implements Device.
func (h *Host) CopyHostToDevice(dst Ptr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	view, err := h.resolve(dst, len(src))
	if err != nil {
		return err
	}
	copy(view, src)
	return nil
}

// CopyDeviceToHost implements Device.
func (h *Host) CopyDeviceToHost(dst []byte, src Ptr) error {
	if len(dst) == 0 {
		return nil
	}
	view, err := h.resolve(src, len(dst))
	if err != nil {
		return err
	}
	copy(dst, view)
	return nil
}

// Memset implements Device.
func (h *Host) Memset(p Ptr, v byte, n int) error {
	if n == 0 {
		return nil
	}
	view, err := h.resolve(p, n)
	if err != nil {
		return err
	}
	for i := range view {
		view[i] = v
	}
	return nil
}

// Launch implements Device.
func (h *Host) Launch(ctx context.Context, n int, kernel Kernel) error {
	if n <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return kernel(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// InUse returns the number of bytes currently allocated.
func (h *Host) InUse() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.inUse
}

// Peak returns the highest number of bytes that were allocated at the same time.
func (h *Host) Peak() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.peak
}

// Live returns the number of live allocations.
func (h *Host) Live() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allocs)
}
