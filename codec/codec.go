// Package codec is the decompression backend of the decoder: it decompresses batches of
// device buffers that share a compression codec, one work item per buffer, and reports a
// status for every buffer instead of failing the whole batch.
//
// https://github.com/apache/parquet-format/blob/master/Compression.md
package codec

import (
	"github.com/fraugster/parquet-go/parquet"
	"github.com/pkg/errors"
)

// LZ4Raw is the LZ4_RAW compression codec id (block format without framing).
const LZ4Raw = parquet.CompressionCodec(7)

// ErrUnsupported is returned for codecs that have no decompression strategy.
var ErrUnsupported = errors.New("unsupported compression codec")

// Strategy decompresses one block.
type Strategy interface {
	// String returns the codec name.
	String() string
	// DecodeBlock decompresses src into dst and returns the number of bytes written. It fails
	// with ErrShortBuffer if the decompressed data does not fit into dst.
	DecodeBlock(dst, src []byte) (int, error)
}

// ErrShortBuffer is returned by DecodeBlock when dst is too small.
var ErrShortBuffer = errors.New("destination buffer too small")

// Passthrough is the strategy of uncompressed data. The reader never schedules it, pages of
// uncompressed chunks keep pointing at the staged bytes. Callers of Parallel.Decompress may
// still pass UNCOMPRESSED to copy buffers with the same status reporting as real codecs.
type Passthrough struct{}

func (Passthrough) String() string { return "UNCOMPRESSED" }

// DecodeBlock implements Strategy.
func (Passthrough) DecodeBlock(dst, src []byte) (int, error) {
	if len(src) > len(dst) {
		return copy(dst, src), ErrShortBuffer
	}
	return copy(dst, src), nil
}

// Unsupported is the strategy of codecs this backend cannot decompress.
type Unsupported struct {
	Codec parquet.CompressionCodec
}

func (u Unsupported) String() string { return u.Codec.String() }

// DecodeBlock implements Strategy.
func (u Unsupported) DecodeBlock([]byte, []byte) (int, error) {
	return 0, errors.Wrapf(ErrUnsupported, "codec %s", u.Codec)
}

var strategies = map[parquet.CompressionCodec]Strategy{
	parquet.CompressionCodec_UNCOMPRESSED: Passthrough{},
	parquet.CompressionCodec_GZIP:         gzipStrategy{},
	parquet.CompressionCodec_SNAPPY:       snappyStrategy{},
	parquet.CompressionCodec_ZSTD:         zstdStrategy{},
	parquet.CompressionCodec_BROTLI:       brotliStrategy{},
	LZ4Raw:                                lz4RawStrategy{},
}

// Priority is the order in which codec batches are dispatched. UNCOMPRESSED is not part of
// it since those pages are never decompressed.
var Priority = []parquet.CompressionCodec{
	parquet.CompressionCodec_GZIP,
	parquet.CompressionCodec_SNAPPY,
	parquet.CompressionCodec_ZSTD,
	parquet.CompressionCodec_BROTLI,
	LZ4Raw,
}

// Resolve maps a codec id to its strategy. Unknown codecs resolve to Unsupported.
func Resolve(c parquet.CompressionCodec) Strategy {
	if s, ok := strategies[c]; ok {
		return s
	}
	return Unsupported{Codec: c}
}

// Name returns a printable codec name, including the ids the thrift enum does not know.
func Name(c parquet.CompressionCodec) string {
	if c == LZ4Raw {
		return "LZ4_RAW"
	}
	return c.String()
}
