package gdfparquet

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"
)

// readThrift reads one compact-protocol struct from r.
func readThrift(ctx context.Context, tr thrift.TStruct, r io.Reader) error {
	transport := &thrift.StreamTransport{Reader: r}
	proto := thrift.NewTCompactProtocolConf(transport, &thrift.TConfiguration{})
	return tr.Read(ctx, proto)
}

// byteCursor walks a page body. All reads are bounds checked.
type byteCursor struct {
	buf []byte
	pos int
}

func (c *byteCursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *byteCursor) next(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *byteCursor) readByte() (byte, error) {
	b, err := c.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *byteCursor) readUint32() (uint32, error) {
	b, err := c.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *byteCursor) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(c.buf[c.pos:])
	if n <= 0 {
		return 0, errors.New("invalid uvarint")
	}
	c.pos += n
	return v, nil
}

func (c *byteCursor) readVarint() (int64, error) {
	u, err := c.readUvarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// lengthPrefixed returns the block behind a 4-byte little-endian length.
func (c *byteCursor) lengthPrefixed() ([]byte, error) {
	n, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(c.remaining()) {
		return nil, errors.Errorf("length prefix %d exceeds remaining %d bytes", n, c.remaining())
	}
	return c.next(int(n))
}
