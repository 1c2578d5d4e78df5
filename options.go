package gdfparquet

import (
	"github.com/go-kit/log"

	"github.com/fraugster/gdfparquet/codec"
	"github.com/fraugster/gdfparquet/device"
)

// ReaderOption configures a read.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	// columns is nil when every column should be read.
	columns         []string
	dev             device.Device
	decompressor    codec.Decompressor
	logger          log.Logger
	metrics         *Metrics
	lenient         bool
	skipUnsupported bool
	// maxChunks overrides the size of the chunk table, zero means row groups times columns.
	maxChunks int
}

func newReaderOptions(opts []ReaderOption) *readerOptions {
	o := &readerOptions{}
	for _, fn := range opts {
		fn(o)
	}
	if o.dev == nil {
		o.dev = device.NewHost()
	}
	if o.decompressor == nil {
		o.decompressor = codec.Parallel{}
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}
	return o
}

// WithColumns restricts the read to the columns with the given dotted names. The index
// column named in the pandas metadata is always included. Passing no names selects nothing
// but the index column.
func WithColumns(names ...string) ReaderOption {
	return func(o *readerOptions) {
		o.columns = append([]string{}, names...)
	}
}

// WithDevice sets the device the columns are decoded on. The default is a new device.Host.
func WithDevice(dev device.Device) ReaderOption {
	return func(o *readerOptions) {
		o.dev = dev
	}
}

// WithDecompressor sets the decompression backend.
func WithDecompressor(d codec.Decompressor) ReaderOption {
	return func(o *readerOptions) {
		o.decompressor = d
	}
}

// WithLogger sets the logger. Reads log nothing by default.
func WithLogger(logger log.Logger) ReaderOption {
	return func(o *readerOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics the reader updates.
func WithMetrics(m *Metrics) ReaderOption {
	return func(o *readerOptions) {
		o.metrics = m
	}
}

// WithLenientDecompression keeps reading when the decompression backend reports a failed
// page. The rows of such pages are left null.
func WithLenientDecompression() ReaderOption {
	return func(o *readerOptions) {
		o.lenient = true
	}
}

// WithSkipUnsupportedCodecs keeps reading when a column chunk uses a codec without a
// decompression strategy. The rows of such chunks are left null.
func WithSkipUnsupportedCodecs() ReaderOption {
	return func(o *readerOptions) {
		o.skipUnsupported = true
	}
}

func withMaxChunks(n int) ReaderOption {
	return func(o *readerOptions) {
		o.maxChunks = n
	}
}
