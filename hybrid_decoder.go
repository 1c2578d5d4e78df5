package gdfparquet

import (
	"io"
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

// hybridDecoder reads the RLE/bit-packed hybrid encoding used for levels, dictionary
// indices and RLE booleans.
type hybridDecoder struct {
	bitWidth     int
	rleValueSize int

	c byteCursor

	rleCount uint32
	rleValue uint32

	bpCount  uint32
	bpRunPos uint8
	bpRun    [8]uint32
}

func newHybridDecoder(bitWidth int, data []byte) *hybridDecoder {
	return &hybridDecoder{
		bitWidth:     bitWidth,
		rleValueSize: (bitWidth + 7) / 8,
		c:            byteCursor{buf: data},
	}
}

// next returns the next value. A decoder of width zero returns zeros forever.
func (hd *hybridDecoder) next() (next uint32, err error) {
	if hd.bitWidth == 0 {
		return 0, nil
	}
	if hd.rleCount == 0 && hd.bpCount == 0 && hd.bpRunPos == 0 {
		if err = hd.readRunHeader(); err != nil {
			return 0, err
		}
	}

	switch {
	case hd.rleCount > 0:
		next = hd.rleValue
		hd.rleCount--
	case hd.bpCount > 0 || hd.bpRunPos > 0:
		if hd.bpRunPos == 0 {
			if err = hd.readBitPackedRun(); err != nil {
				return 0, err
			}
			hd.bpCount--
		}
		next = hd.bpRun[hd.bpRunPos]
		hd.bpRunPos = (hd.bpRunPos + 1) % 8
	default:
		return 0, io.EOF
	}
	return next, nil
}

func (hd *hybridDecoder) readRLERunValue() error {
	v, err := hd.c.next(hd.rleValueSize)
	if err != nil {
		return err
	}
	var value uint32
	for i, b := range v {
		value |= uint32(b) << (8 * uint(i))
	}
	if bits.Len32(value) > hd.bitWidth {
		return errors.New("rle: RLE run value is too large")
	}
	hd.rleValue = value
	return nil
}

func (hd *hybridDecoder) readBitPackedRun() error {
	data, err := hd.c.next(hd.bitWidth)
	if err != nil {
		return err
	}
	hd.bpRun = unpack8(data, hd.bitWidth)
	return nil
}

func (hd *hybridDecoder) readRunHeader() error {
	if hd.c.remaining() == 0 {
		return io.EOF
	}
	h, err := hd.c.readUvarint()
	if err != nil || h > math.MaxUint32 {
		return errors.New("rle: invalid run header")
	}

	// The lower bit indicate if this is bitpack or rle
	if h&1 == 1 {
		hd.bpCount = uint32(h >> 1)
		if hd.bpCount == 0 {
			return errors.New("rle: empty bit-packed run")
		}
		hd.bpRunPos = 0
		return nil
	}
	hd.rleCount = uint32(h >> 1)
	if hd.rleCount == 0 {
		return errors.New("rle: empty RLE run")
	}
	return hd.readRLERunValue()
}
