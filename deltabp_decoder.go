package gdfparquet

import (
	"io"

	"github.com/pkg/errors"
)

// deltaBitPackDecoder reads DELTA_BINARY_PACKED values. Arithmetic wraps in T, which is
// how 32-bit columns are encoded.
type deltaBitPackDecoder[T int32 | int64] struct {
	c        *byteCursor
	maxWidth int

	blockSize           int
	miniBlockCount      int
	valuesCount         int
	miniBlockValueCount int

	previousValue T
	minDelta      T

	miniBlockBitWidth []uint8
	currentMiniBlock  int
	miniBlock         []T
	miniBlockPosition int
	// position counts the values returned so far.
	position int
}

func newDeltaBitPackDecoder[T int32 | int64](c *byteCursor, maxWidth int) (*deltaBitPackDecoder[T], error) {
	d := &deltaBitPackDecoder[T]{c: c, maxWidth: maxWidth}
	if err := d.readBlockHeader(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *deltaBitPackDecoder[T]) readBlockHeader() error {
	blockSize, err := d.c.readUvarint()
	if err != nil {
		return errors.Wrap(err, "failed to read block size")
	}
	miniBlocks, err := d.c.readUvarint()
	if err != nil {
		return errors.Wrap(err, "failed to read number of mini blocks")
	}
	count, err := d.c.readUvarint()
	if err != nil {
		return errors.Wrap(err, "failed to read total value count")
	}
	first, err := d.c.readVarint()
	if err != nil {
		return errors.Wrap(err, "failed to read first value")
	}

	if blockSize == 0 || blockSize%128 != 0 || blockSize > 1<<20 {
		return errors.Errorf("invalid block size %d", blockSize)
	}
	if miniBlocks == 0 || blockSize%miniBlocks != 0 || (blockSize/miniBlocks)%8 != 0 {
		return errors.Errorf("invalid number of mini blocks %d", miniBlocks)
	}
	if count > 1<<31 {
		return errors.Errorf("invalid total value count %d", count)
	}

	d.blockSize = int(blockSize)
	d.miniBlockCount = int(miniBlocks)
	d.miniBlockValueCount = d.blockSize / d.miniBlockCount
	d.valuesCount = int(count)
	d.previousValue = T(first)
	d.currentMiniBlock = d.miniBlockCount
	return nil
}

func (d *deltaBitPackDecoder[T]) readMiniBlockHeader() error {
	minDelta, err := d.c.readVarint()
	if err != nil {
		return errors.Wrap(err, "failed to read min delta")
	}
	d.minDelta = T(minDelta)

	// the mini block bitwidth is always there, even if the value is zero
	widths, err := d.c.next(d.miniBlockCount)
	if err != nil {
		return errors.Wrap(err, "not enough data to read all miniblock bit widths")
	}
	d.miniBlockBitWidth = widths
	d.currentMiniBlock = 0
	return nil
}

// loadMiniBlock unpacks the next mini block, reading a new block header when the current
// block is exhausted.
func (d *deltaBitPackDecoder[T]) loadMiniBlock() error {
	if d.currentMiniBlock >= d.miniBlockCount {
		if err := d.readMiniBlockHeader(); err != nil {
			return err
		}
	}
	w := int(d.miniBlockBitWidth[d.currentMiniBlock])
	if w > d.maxWidth {
		return errors.Errorf("invalid miniblock bit width: %d", w)
	}
	d.currentMiniBlock++

	body, err := d.c.next(d.miniBlockValueCount * w / 8)
	if err != nil {
		return errors.Wrap(err, "truncated mini block")
	}
	if cap(d.miniBlock) < d.miniBlockValueCount {
		d.miniBlock = make([]T, d.miniBlockValueCount)
	}
	d.miniBlock = d.miniBlock[:d.miniBlockValueCount]
	for i := range d.miniBlock {
		if w == 0 {
			d.miniBlock[i] = 0
			continue
		}
		d.miniBlock[i] = T(unpackBits(body, i, w))
	}
	d.miniBlockPosition = 0
	return nil
}

func (d *deltaBitPackDecoder[T]) next() (T, error) {
	if d.position >= d.valuesCount {
		return 0, io.EOF
	}
	ret := d.previousValue
	d.position++
	if d.position < d.valuesCount {
		if d.miniBlockPosition >= len(d.miniBlock) {
			if err := d.loadMiniBlock(); err != nil {
				return 0, err
			}
		}
		d.previousValue += d.miniBlock[d.miniBlockPosition] + d.minDelta
		d.miniBlockPosition++
	}
	return ret, nil
}
