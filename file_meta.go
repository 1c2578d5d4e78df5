package gdfparquet

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/pkg/errors"
)

var magic = []byte{'P', 'A', 'R', '1'}

const (
	headerSize    = 4
	endMarkerSize = 8
)

// loadFile reads the whole file at path into memory.
func loadFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(FileError, "load", errors.Wrapf(err, "read %s", path))
	}
	return raw, nil
}

// footerSpan validates the magic numbers and the footer length of a file and returns the
// bytes of the serialized metadata.
func footerSpan(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errorf(FileError, "footer", "file is empty")
	}
	if len(raw) < headerSize+endMarkerSize {
		return nil, errorf(FileError, "footer", "file of %d bytes is too small for a parquet file", len(raw))
	}
	if !bytes.Equal(raw[:headerSize], magic) {
		return nil, errorf(FileError, "footer", "invalid parquet file header")
	}
	if !bytes.Equal(raw[len(raw)-4:], magic) {
		return nil, errorf(FileError, "footer", "invalid parquet file footer")
	}

	fl := int32(binary.LittleEndian.Uint32(raw[len(raw)-endMarkerSize:]))
	if fl <= 0 {
		return nil, errorf(FileError, "footer", "invalid footer len %d", fl)
	}
	if int64(fl) > int64(len(raw)-headerSize-endMarkerSize) {
		return nil, errorf(FileError, "footer", "footer len %d exceeds file size %d", fl, len(raw))
	}
	end := len(raw) - endMarkerSize
	return raw[end-int(fl) : end], nil
}

// readFileMetaData parses the footer.
func readFileMetaData(ctx context.Context, footer []byte) (*parquet.FileMetaData, error) {
	meta := &parquet.FileMetaData{}
	if err := readThrift(ctx, meta, bytes.NewReader(footer)); err != nil {
		return nil, newError(SchemaError, "metadata", errors.Wrap(err, "read file meta failed"))
	}
	return meta, nil
}
