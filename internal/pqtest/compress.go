package pqtest

import (
	"bytes"

	"github.com/andybalholm/brotli"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// LZ4Raw is the LZ4_RAW codec id.
const LZ4Raw = parquet.CompressionCodec(7)

// CompressBlock compresses in with the given codec. Codecs without an encoder here (LZO and
// the legacy LZ4 framing) are stored verbatim, which is enough to exercise the unsupported
// codec paths of a reader.
func CompressBlock(in []byte, method parquet.CompressionCodec) ([]byte, error) {
	switch method {
	case parquet.CompressionCodec_UNCOMPRESSED, parquet.CompressionCodec_LZO, parquet.CompressionCodec_LZ4:
		ret := make([]byte, len(in))
		copy(ret, in)
		return ret, nil
	case parquet.CompressionCodec_SNAPPY:
		return snappy.Encode(nil, in), nil
	case parquet.CompressionCodec_GZIP:
		buf := &bytes.Buffer{}
		w := gzip.NewWriter(buf)
		if _, err := w.Write(in); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case parquet.CompressionCodec_ZSTD:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(in, nil), nil
	case parquet.CompressionCodec_BROTLI:
		buf := &bytes.Buffer{}
		w := brotli.NewWriter(buf)
		if _, err := w.Write(in); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case LZ4Raw:
		dst := make([]byte, lz4.CompressBlockBound(len(in)))
		n, err := lz4.CompressBlock(in, dst, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// incompressible input, fall back to a single literal run
			return lz4Literals(in), nil
		}
		return dst[:n], nil
	}
	return nil, errors.Errorf("pqtest: no encoder for codec %s", method)
}

func lz4Literals(in []byte) []byte {
	out := make([]byte, 0, len(in)+len(in)/255+2)
	l := len(in)
	if l < 15 {
		out = append(out, byte(l<<4))
	} else {
		out = append(out, 0xf0)
		rest := l - 15
		for rest >= 255 {
			out = append(out, 255)
			rest -= 255
		}
		out = append(out, byte(rest))
	}
	return append(out, in...)
}
