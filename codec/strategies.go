package codec

import (
	"bytes"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// readFull fills dst from r and fails if r holds more data than dst can take.
func readFull(r io.Reader, dst []byte) (int, error) {
	n, err := io.ReadFull(r, dst)
	switch err {
	case nil:
	case io.ErrUnexpectedEOF, io.EOF:
		return n, nil
	default:
		return n, err
	}

	var extra [1]byte
	m, err := r.Read(extra[:])
	if m > 0 {
		return n, ErrShortBuffer
	}
	if err != nil && err != io.EOF {
		return n, err
	}
	return n, nil
}

type snappyStrategy struct{}

func (snappyStrategy) String() string { return "SNAPPY" }

func (snappyStrategy) DecodeBlock(dst, src []byte) (int, error) {
	// parquet uses the snappy block format, not the framed stream format
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return 0, err
	}
	if n > len(dst) {
		return 0, ErrShortBuffer
	}
	out, err := snappy.Decode(dst[:n], src)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

var gzipReaders sync.Pool

type gzipStrategy struct{}

func (gzipStrategy) String() string { return "GZIP" }

func (gzipStrategy) DecodeBlock(dst, src []byte) (int, error) {
	var (
		r   *gzip.Reader
		err error
	)
	if v := gzipReaders.Get(); v != nil {
		r = v.(*gzip.Reader)
		err = r.Reset(bytes.NewReader(src))
	} else {
		r, err = gzip.NewReader(bytes.NewReader(src))
	}
	if err != nil {
		return 0, errors.Wrap(err, "gzip: invalid header")
	}
	defer gzipReaders.Put(r)

	return readFull(r, dst)
}

var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

type zstdStrategy struct{}

func (zstdStrategy) String() string { return "ZSTD" }

func (zstdStrategy) DecodeBlock(dst, src []byte) (int, error) {
	zstdOnce.Do(func() {
		// DecodeAll is safe for concurrent use, one decoder serves all work items
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	if zstdErr != nil {
		return 0, zstdErr
	}

	out, err := zstdDecoder.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, err
	}
	if len(out) > len(dst) {
		return copy(dst, out), ErrShortBuffer
	}
	return copy(dst, out), nil
}

type brotliStrategy struct{}

func (brotliStrategy) String() string { return "BROTLI" }

func (brotliStrategy) DecodeBlock(dst, src []byte) (int, error) {
	return readFull(brotli.NewReader(bytes.NewReader(src)), dst)
}

type lz4RawStrategy struct{}

func (lz4RawStrategy) String() string { return "LZ4_RAW" }

func (lz4RawStrategy) DecodeBlock(dst, src []byte) (int, error) {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			return n, ErrShortBuffer
		}
		return n, err
	}
	return n, nil
}
