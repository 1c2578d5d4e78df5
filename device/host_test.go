package device

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostAllocFree(t *testing.T) {
	h := NewHost()

	a, err := h.Alloc(100)
	require.NoError(t, err)
	b, err := h.Alloc(3)
	require.NoError(t, err)
	require.NotEqual(t, a.Ptr, b.Ptr)
	assert.Equal(t, 2, h.Live())
	assert.Equal(t, uint64(103), h.InUse())

	// a pointer one past the end of a must not resolve into b
	_, err = h.View(a.At(100), 1)
	require.True(t, errors.Is(err, ErrInvalidPointer))

	require.NoError(t, h.Free(a))
	require.NoError(t, h.Free(b))
	assert.Equal(t, 0, h.Live())
	assert.Equal(t, uint64(0), h.InUse())
	assert.Equal(t, uint64(103), h.Peak())

	err = h.Free(a)
	require.True(t, errors.Is(err, ErrInvalidPointer))
}

func TestHostZeroAlloc(t *testing.T) {
	h := NewHost()
	b, err := h.Alloc(0)
	require.NoError(t, err)
	require.True(t, b.IsNil())
	require.NoError(t, h.Free(b))
	assert.Equal(t, 0, h.Live())
}

func TestHostCapacity(t *testing.T) {
	h := NewHost(WithCapacity(64))

	a, err := h.Alloc(60)
	require.NoError(t, err)

	_, err = h.Alloc(5)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.Contains(t, err.Error(), "greater than configured maximum of 64 bytes")

	require.NoError(t, h.Free(a))
	_, err = h.Alloc(64)
	require.NoError(t, err)
}

func TestHostAllocBeyondHeap(t *testing.T) {
	h := NewHost()

	for _, size := range []int{maxHostAllocation + 1, 1 << 50, int(^uint(0) >> 1)} {
		_, err := h.Alloc(size)
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrOutOfMemory), "size %d", size)
	}
	assert.Equal(t, 0, h.Live())

	b, err := h.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(b))
}

func TestHostCopies(t *testing.T) {
	h := NewHost()
	b, err := h.Alloc(8)
	require.NoError(t, err)

	require.NoError(t, h.CopyHostToDevice(b.At(2), []byte{1, 2, 3}))
	out := make([]byte, 8)
	require.NoError(t, h.CopyDeviceToHost(out, b.Ptr))
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 0, 0, 0}, out)

	require.NoError(t, h.Memset(b.Ptr, 0xff, 2))
	view, err := h.View(b.Ptr, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 1, 2, 3, 0, 0, 0}, view)

	require.Error(t, h.CopyHostToDevice(b.At(6), []byte{1, 2, 3}))
}

func TestHostLaunch(t *testing.T) {
	h := NewHost(WithWorkers(4))

	var sum int64
	err := h.Launch(context.Background(), 1000, func(_ context.Context, i int) error {
		atomic.AddInt64(&sum, int64(i))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(999*1000/2), sum)

	boom := errors.New("boom")
	err = h.Launch(context.Background(), 100, func(_ context.Context, i int) error {
		if i == 42 {
			return boom
		}
		return nil
	})
	require.True(t, errors.Is(err, boom))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = h.Launch(ctx, 10, func(context.Context, int) error { return nil })
	require.True(t, errors.Is(err, context.Canceled))
}

func TestOrUint32(t *testing.T) {
	h := NewHost()
	b, err := h.Alloc(8)
	require.NoError(t, err)
	view, err := h.View(b.Ptr, 8)
	require.NoError(t, err)

	err = h.Launch(context.Background(), 64, func(_ context.Context, i int) error {
		OrUint32(view, i/32, 1<<(uint(i)%32))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0xffffffff), LoadUint32(view, 0))
	assert.Equal(t, uint32(0xffffffff), LoadUint32(view, 1))
}
