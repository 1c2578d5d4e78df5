package codec

import (
	"context"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/pkg/errors"

	"github.com/fraugster/gdfparquet/device"
)

// StatusCode is the per buffer result of a batch decompression.
type StatusCode int32

const (
	// StatusOK means the buffer was decompressed.
	StatusOK StatusCode = 0
	// StatusFailed means the compressed stream was invalid.
	StatusFailed StatusCode = 1
	// StatusOverflow means the decompressed data did not fit into the destination.
	StatusOverflow StatusCode = 2
	// StatusPending is the value a status holds until its work item ran.
	StatusPending StatusCode = -1000
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusOverflow:
		return "overflow"
	case StatusPending:
		return "pending"
	}
	return "unknown"
}

// Input describes one buffer of a batch: the compressed source and the destination the
// decompressed bytes are written to, both in device memory.
type Input struct {
	Src     device.Ptr
	SrcSize int
	Dst     device.Ptr
	DstSize int
}

// Status is the outcome of one buffer of a batch.
type Status struct {
	Code         StatusCode
	BytesWritten int
	Err          error
}

// Decompressor decompresses every buffer of a batch with the given codec.
//
// The returned error is reserved for failures of the batch as a whole, such as an
// unsupported codec; problems with single buffers are reported through their Status.
type Decompressor interface {
	Decompress(ctx context.Context, dev device.Device, c parquet.CompressionCodec, in []Input) ([]Status, error)
}

// Parallel decompresses the buffers of a batch as independent work items of one device launch.
type Parallel struct{}

// Decompress implements Decompressor.
func (Parallel) Decompress(ctx context.Context, dev device.Device, c parquet.CompressionCodec, in []Input) ([]Status, error) {
	strategy := Resolve(c)
	if _, ok := strategy.(Unsupported); ok {
		return nil, errors.Wrapf(ErrUnsupported, "codec %s", Name(c))
	}

	out := make([]Status, len(in))
	for i := range out {
		out[i].Code = StatusPending
	}

	err := dev.Launch(ctx, len(in), func(_ context.Context, i int) error {
		src, err := dev.View(in[i].Src, in[i].SrcSize)
		if err != nil {
			return err
		}
		dst, err := dev.View(in[i].Dst, in[i].DstSize)
		if err != nil {
			return err
		}

		n, err := strategy.DecodeBlock(dst, src)
		out[i].BytesWritten = n
		switch {
		case err == nil:
			out[i].Code = StatusOK
		case errors.Is(err, ErrShortBuffer):
			out[i].Code = StatusOverflow
			out[i].Err = err
		default:
			out[i].Code = StatusFailed
			out[i].Err = err
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s batch of %d buffers", strategy, len(in))
	}
	return out, nil
}
