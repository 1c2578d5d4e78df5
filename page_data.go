package gdfparquet

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/fraugster/gdfparquet/device"
)

// byteStreamSplit is the BYTE_STREAM_SPLIT encoding id, which the thrift enum predates.
const byteStreamSplit = parquet.Encoding(9)

// valueDecoder returns the next non-null value of a page in its physical little-endian
// layout, or a string descriptor for byte arrays. The returned slice is only valid until the
// next call.
type valueDecoder interface {
	next() ([]byte, error)
}

type plainFixedDecoder struct {
	c     byteCursor
	width int
}

func (d *plainFixedDecoder) next() ([]byte, error) {
	return d.c.next(d.width)
}

type plainBooleanDecoder struct {
	data []byte
	pos  int
	buf  [1]byte
}

func (d *plainBooleanDecoder) next() ([]byte, error) {
	if d.pos/8 >= len(d.data) {
		return nil, errors.New("boolean values exhausted")
	}
	d.buf[0] = (d.data[d.pos/8] >> uint(d.pos%8)) & 1
	d.pos++
	return d.buf[:], nil
}

type rleBooleanDecoder struct {
	hd  *hybridDecoder
	buf [1]byte
}

func (d *rleBooleanDecoder) next() ([]byte, error) {
	v, err := d.hd.next()
	if err != nil {
		return nil, err
	}
	d.buf[0] = byte(v)
	return d.buf[:], nil
}

// dictDecoder resolves dictionary indices against the dictionary page (fixed width values)
// or the string dictionary index (descriptors).
type dictDecoder struct {
	hd    *hybridDecoder
	dict  []byte
	width int
	count int
}

func (d *dictDecoder) next() ([]byte, error) {
	idx, err := d.hd.next()
	if err != nil {
		return nil, err
	}
	if int(idx) >= d.count {
		return nil, errors.Errorf("dictionary index %d out of range of %d entries", idx, d.count)
	}
	off := int(idx) * d.width
	return d.dict[off : off+d.width], nil
}

type plainByteArrayDecoder struct {
	c     byteCursor
	base  device.Ptr
	fixed int
	buf   [strDescSize]byte
}

func (d *plainByteArrayDecoder) next() ([]byte, error) {
	n := d.fixed
	if n == 0 {
		l, err := d.c.readUint32()
		if err != nil {
			return nil, err
		}
		n = int(l)
	}
	start := d.c.pos
	if _, err := d.c.next(n); err != nil {
		return nil, err
	}
	putStrDesc(d.buf[:], StrDesc{Ptr: d.base + device.Ptr(start), Len: n})
	return d.buf[:], nil
}

type deltaIntDecoder[T int32 | int64] struct {
	d     *deltaBitPackDecoder[T]
	width int
	buf   [8]byte
}

func (d *deltaIntDecoder[T]) next() ([]byte, error) {
	v, err := d.d.next()
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(d.buf[:], uint64(int64(v)))
	return d.buf[:d.width], nil
}

type deltaLengthByteArrayDecoder struct {
	lengths *deltaBitPackDecoder[int32]
	c       byteCursor
	base    device.Ptr
	buf     [strDescSize]byte
}

// nextBytes returns the offset of the next value within the page data and its bytes.
func (d *deltaLengthByteArrayDecoder) nextBytes() (int, []byte, error) {
	n, err := d.lengths.next()
	if err != nil {
		return 0, nil, err
	}
	if n < 0 {
		return 0, nil, errors.Errorf("negative byte array length %d", n)
	}
	start := d.c.pos
	b, err := d.c.next(int(n))
	if err != nil {
		return 0, nil, err
	}
	return start, b, nil
}

func (d *deltaLengthByteArrayDecoder) next() ([]byte, error) {
	start, b, err := d.nextBytes()
	if err != nil {
		return nil, err
	}
	putStrDesc(d.buf[:], StrDesc{Ptr: d.base + device.Ptr(start), Len: len(b)})
	return d.buf[:], nil
}

// deltaStreamEnd returns the offset behind the DELTA_BINARY_PACKED stream data starts with.
func deltaStreamEnd(data []byte) (int, error) {
	c := &byteCursor{buf: data}
	d, err := newDeltaBitPackDecoder[int32](c, 32)
	if err != nil {
		return 0, err
	}
	for d.position < d.valuesCount {
		if _, err := d.next(); err != nil {
			return 0, err
		}
	}
	return c.pos, nil
}

// newDeltaLengthByteArrayDecoder skips the length stream once since the bytes follow all
// lengths.
func newDeltaLengthByteArrayDecoder(data []byte, base device.Ptr) (*deltaLengthByteArrayDecoder, error) {
	end, err := deltaStreamEnd(data)
	if err != nil {
		return nil, err
	}
	lengths, err := newDeltaBitPackDecoder[int32](&byteCursor{buf: data}, 32)
	if err != nil {
		return nil, err
	}
	return &deltaLengthByteArrayDecoder{lengths: lengths, c: byteCursor{buf: data, pos: end}, base: base}, nil
}

// deltaByteArrayDecoder rebuilds every value from a prefix of the previous value and a
// suffix. The values are written back to back into out, which lives at base.
type deltaByteArrayDecoder struct {
	prefixes *deltaBitPackDecoder[int32]
	suffixes *deltaLengthByteArrayDecoder
	out      []byte
	base     device.Ptr
	pos      int
	prev     []byte
	fixed    int
	buf      [strDescSize]byte
}

func newDeltaByteArrayDecoder(data, out []byte, base device.Ptr, fixed int) (*deltaByteArrayDecoder, error) {
	end, err := deltaStreamEnd(data)
	if err != nil {
		return nil, errors.Wrap(err, "prefix lengths")
	}
	prefixes, err := newDeltaBitPackDecoder[int32](&byteCursor{buf: data}, 32)
	if err != nil {
		return nil, err
	}
	suffixes, err := newDeltaLengthByteArrayDecoder(data[end:], 0)
	if err != nil {
		return nil, errors.Wrap(err, "suffixes")
	}
	return &deltaByteArrayDecoder{prefixes: prefixes, suffixes: suffixes, out: out, base: base, fixed: fixed}, nil
}

func (d *deltaByteArrayDecoder) next() ([]byte, error) {
	prefix, err := d.prefixes.next()
	if err != nil {
		return nil, err
	}
	_, suffix, err := d.suffixes.nextBytes()
	if err != nil {
		return nil, err
	}
	if prefix < 0 || int(prefix) > len(d.prev) {
		return nil, errors.Errorf("prefix length %d exceeds the previous value of %d bytes", prefix, len(d.prev))
	}
	n := int(prefix) + len(suffix)
	if d.fixed > 0 && n != d.fixed {
		return nil, errors.Errorf("value of %d bytes in a column of fixed length %d", n, d.fixed)
	}
	if n > len(d.out)-d.pos {
		return nil, errors.Errorf("value of %d bytes overflows the %d rebuilt bytes", n, len(d.out))
	}
	v := d.out[d.pos : d.pos+n]
	copy(v, d.prev[:prefix])
	copy(v[prefix:], suffix)
	putStrDesc(d.buf[:], StrDesc{Ptr: d.base + device.Ptr(d.pos), Len: n})
	d.prev = v
	d.pos += n
	return d.buf[:], nil
}

// deltaByteArraySize returns how many bytes the first count values of a DELTA_BYTE_ARRAY
// stream occupy once rebuilt.
func deltaByteArraySize(data []byte, count int) (int, error) {
	end, err := deltaStreamEnd(data)
	if err != nil {
		return 0, errors.Wrap(err, "prefix lengths")
	}
	suffixEnd, err := deltaStreamEnd(data[end:])
	if err != nil {
		return 0, errors.Wrap(err, "suffix lengths")
	}
	prefixes, err := newDeltaBitPackDecoder[int32](&byteCursor{buf: data}, 32)
	if err != nil {
		return 0, err
	}
	suffixes, err := newDeltaBitPackDecoder[int32](&byteCursor{buf: data[end:]}, 32)
	if err != nil {
		return 0, err
	}

	avail := len(data) - end - suffixEnd
	total, prev, suffixBytes := 0, 0, 0
	for i := 0; i < count && prefixes.position < prefixes.valuesCount; i++ {
		p, err := prefixes.next()
		if err != nil {
			return 0, err
		}
		sl, err := suffixes.next()
		if err != nil {
			return 0, err
		}
		if p < 0 || sl < 0 || int(p) > prev {
			return 0, errors.Errorf("value %d has prefix %d and suffix %d after a value of %d bytes", i, p, sl, prev)
		}
		suffixBytes += int(sl)
		if suffixBytes > avail {
			return 0, errors.Errorf("suffixes need %d bytes, the page holds %d", suffixBytes, avail)
		}
		prev = int(p) + int(sl)
		if prev > math.MaxInt-total {
			return 0, errors.New("rebuilt values overflow")
		}
		total += prev
	}
	return total, nil
}

type byteStreamSplitDecoder struct {
	data  []byte
	n     int
	width int
	i     int
	buf   [8]byte
}

func (d *byteStreamSplitDecoder) next() ([]byte, error) {
	if d.i >= d.n {
		return nil, errors.New("byte stream split values exhausted")
	}
	for k := 0; k < d.width; k++ {
		d.buf[k] = d.data[k*d.n+d.i]
	}
	d.i++
	return d.buf[:d.width], nil
}

func physicalWidth(t parquet.Type) int {
	switch t {
	case parquet.Type_BOOLEAN:
		return 1
	case parquet.Type_INT32, parquet.Type_FLOAT:
		return 4
	case parquet.Type_INT64, parquet.Type_DOUBLE:
		return 8
	}
	return 0
}

// pageValues holds what the value decoders of one page need.
type pageValues struct {
	chunk *ColumnChunkDesc
	page  *PageInfo
	dict  *PageInfo
	data  []byte
	// base is the device address of data.
	base device.Ptr
	// expanded receives the rebuilt values of DELTA_BYTE_ARRAY pages.
	expanded []byte
}

func (s *session) newValueDecoder(v pageValues) (valueDecoder, error) {
	c, p := v.chunk, v.page
	physical := c.Physical()
	width := physicalWidth(physical)
	fixed := 0
	if physical == parquet.Type_FIXED_LEN_BYTE_ARRAY {
		fixed = c.typeWidth() >> 3
	}

	switch p.Encoding {
	case parquet.Encoding_PLAIN:
		switch physical {
		case parquet.Type_BOOLEAN:
			return &plainBooleanDecoder{data: v.data}, nil
		case parquet.Type_BYTE_ARRAY, parquet.Type_FIXED_LEN_BYTE_ARRAY:
			return &plainByteArrayDecoder{c: byteCursor{buf: v.data}, base: v.base, fixed: fixed}, nil
		}
		return &plainFixedDecoder{c: byteCursor{buf: v.data}, width: width}, nil

	case parquet.Encoding_PLAIN_DICTIONARY, parquet.Encoding_RLE_DICTIONARY:
		if v.dict == nil {
			return nil, newError(DecodeConsistencyError, "decode pages", errors.New("dictionary encoded page without dictionary page"))
		}
		if len(v.data) == 0 {
			return nil, newError(DecodeConsistencyError, "decode pages", errors.New("dictionary encoded page without bit width"))
		}
		bitWidth := int(v.data[0])
		if bitWidth > 32 {
			return nil, errorf(DecodeConsistencyError, "decode pages", "invalid dictionary index bit width %d", bitWidth)
		}
		hd := newHybridDecoder(bitWidth, v.data[1:])
		if physical == parquet.Type_BYTE_ARRAY || physical == parquet.Type_FIXED_LEN_BYTE_ARRAY {
			index, err := s.dev.View(c.StrDictIndex, c.NumDictEntries*strDescSize)
			if err != nil {
				return nil, newError(DecodeConsistencyError, "decode pages", err)
			}
			return &dictDecoder{hd: hd, dict: index, width: strDescSize, count: c.NumDictEntries}, nil
		}
		if width == 0 || physical == parquet.Type_BOOLEAN {
			return nil, errorf(UnsupportedError, "decode pages", "dictionary encoding for %s", physical)
		}
		dict, err := s.dev.View(v.dict.PageData, v.dict.DataLen)
		if err != nil {
			return nil, newError(DecodeConsistencyError, "decode pages", err)
		}
		count := v.dict.NumValues
		if count*width > len(dict) {
			return nil, errorf(DecodeConsistencyError, "decode pages", "dictionary of %d values does not fit %d bytes", count, len(dict))
		}
		return &dictDecoder{hd: hd, dict: dict, width: width, count: count}, nil

	case parquet.Encoding_RLE:
		if physical != parquet.Type_BOOLEAN {
			break
		}
		c := byteCursor{buf: v.data}
		runs, err := c.lengthPrefixed()
		if err != nil {
			return nil, newError(DecodeConsistencyError, "decode pages", err)
		}
		return &rleBooleanDecoder{hd: newHybridDecoder(1, runs)}, nil

	case parquet.Encoding_DELTA_BINARY_PACKED:
		switch physical {
		case parquet.Type_INT32:
			d, err := newDeltaBitPackDecoder[int32](&byteCursor{buf: v.data}, 32)
			if err != nil {
				return nil, newError(DecodeConsistencyError, "decode pages", err)
			}
			return &deltaIntDecoder[int32]{d: d, width: 4}, nil
		case parquet.Type_INT64:
			d, err := newDeltaBitPackDecoder[int64](&byteCursor{buf: v.data}, 64)
			if err != nil {
				return nil, newError(DecodeConsistencyError, "decode pages", err)
			}
			return &deltaIntDecoder[int64]{d: d, width: 8}, nil
		}

	case parquet.Encoding_DELTA_LENGTH_BYTE_ARRAY:
		if physical != parquet.Type_BYTE_ARRAY {
			break
		}
		d, err := newDeltaLengthByteArrayDecoder(v.data, v.base)
		if err != nil {
			return nil, newError(DecodeConsistencyError, "decode pages", err)
		}
		return d, nil

	case parquet.Encoding_DELTA_BYTE_ARRAY:
		if physical != parquet.Type_BYTE_ARRAY && physical != parquet.Type_FIXED_LEN_BYTE_ARRAY {
			break
		}
		d, err := newDeltaByteArrayDecoder(v.data, v.expanded, p.Expanded, fixed)
		if err != nil {
			return nil, newError(DecodeConsistencyError, "decode pages", err)
		}
		return d, nil

	case byteStreamSplit:
		if width == 0 || physical == parquet.Type_BOOLEAN {
			break
		}
		if len(v.data)%width != 0 {
			return nil, errorf(DecodeConsistencyError, "decode pages", "byte stream split data of %d bytes is not a multiple of %d", len(v.data), width)
		}
		return &byteStreamSplitDecoder{data: v.data, n: len(v.data) / width, width: width}, nil
	}
	return nil, errorf(UnsupportedError, "decode pages", "encoding %s for %s", p.Encoding, physical)
}

// decodePages is the data decode pass: every data page writes its rows into the value and
// validity buffers of its column.
func (s *session) decodePages() error {
	if err := s.allocDeltaByteArrays(); err != nil {
		return err
	}
	err := s.dev.Launch(s.ctx, len(s.pages), func(_ context.Context, i int) error {
		p := &s.pages[i]
		if p.has(PageDictionary) {
			return nil
		}
		p.ValidCount = 0
		if p.has(PageCorrupt | PageSkipped) {
			return nil
		}
		if p.ChunkIdx < 0 || p.ChunkIdx >= len(s.chunks) {
			return errorf(DecodeConsistencyError, "decode pages", "page %d references chunk %d of %d", i, p.ChunkIdx, len(s.chunks))
		}
		if err := s.decodePage(p); err != nil {
			if KindOf(err) == KindUnknown {
				err = newError(DecodeConsistencyError, "decode pages", err)
			}
			return errors.Wrapf(err, "page %d of column %s", i, s.columns[s.chunks[p.ChunkIdx].Column].Name)
		}
		return nil
	})
	if err != nil {
		return err
	}
	decoded := 0
	for i := range s.pages {
		if !s.pages[i].has(PageDictionary | PageCorrupt | PageSkipped) {
			decoded++
		}
	}
	s.metrics.pagesDecoded(decoded)
	return nil
}

// splitLevels returns the definition levels of a data page and the offset of its values.
func splitLevels(c *ColumnChunkDesc, p *PageInfo, data []byte) ([]byte, int, error) {
	if p.has(PageV2) {
		if p.RepLevelsLen+p.DefLevelsLen > len(data) {
			return nil, 0, errorf(DecodeConsistencyError, "decode pages", "level lengths %d+%d exceed the %d page bytes",
				p.RepLevelsLen, p.DefLevelsLen, len(data))
		}
		off := p.RepLevelsLen
		return data[off : off+p.DefLevelsLen], off + p.DefLevelsLen, nil
	}

	var defLevels []byte
	cur := byteCursor{buf: data}
	if c.RepLevelBits > 0 {
		if p.RepetitionLevelEncoding != parquet.Encoding_RLE {
			return nil, 0, errorf(UnsupportedError, "decode pages", "repetition level encoding %s", p.RepetitionLevelEncoding)
		}
		if _, err := cur.lengthPrefixed(); err != nil {
			return nil, 0, errors.Wrap(err, "repetition levels")
		}
	}
	if c.DefLevelBits > 0 {
		if p.DefinitionLevelEncoding != parquet.Encoding_RLE {
			return nil, 0, errorf(UnsupportedError, "decode pages", "definition level encoding %s", p.DefinitionLevelEncoding)
		}
		var err error
		if defLevels, err = cur.lengthPrefixed(); err != nil {
			return nil, 0, errors.Wrap(err, "definition levels")
		}
	}
	return defLevels, cur.pos, nil
}

// allocDeltaByteArrays sizes the values of every DELTA_BYTE_ARRAY page and places them in
// one buffer that the result keeps, since string descriptors point into it.
func (s *session) allocDeltaByteArrays() error {
	var pages []*PageInfo
	total := 0
	for i := range s.pages {
		p := &s.pages[i]
		if p.Encoding != parquet.Encoding_DELTA_BYTE_ARRAY || p.has(PageDictionary|PageCorrupt|PageSkipped) {
			continue
		}
		if p.ChunkIdx < 0 || p.ChunkIdx >= len(s.chunks) {
			continue
		}
		c := s.chunks[p.ChunkIdx]
		if physical := c.Physical(); physical != parquet.Type_BYTE_ARRAY && physical != parquet.Type_FIXED_LEN_BYTE_ARRAY {
			continue
		}
		data, err := s.dev.View(p.PageData, p.DataLen)
		if err != nil {
			return newError(DecodeConsistencyError, "decode pages", errors.Wrapf(err, "page %d", i))
		}
		_, off, err := splitLevels(c, p, data)
		if err != nil {
			if KindOf(err) == KindUnknown {
				err = newError(DecodeConsistencyError, "decode pages", err)
			}
			return errors.Wrapf(err, "page %d", i)
		}
		n, err := deltaByteArraySize(data[off:], p.NumValues)
		if err != nil {
			return newError(DecodeConsistencyError, "decode pages", errors.Wrapf(err, "page %d of column %s", i, s.columns[c.Column].Name))
		}
		if n > math.MaxInt-total {
			return errorf(DecodeConsistencyError, "decode pages", "rebuilt values of page %d overflow", i)
		}
		p.ExpandedLen = n
		total += n
		pages = append(pages, p)
	}
	if total == 0 {
		return nil
	}

	buf, err := s.alloc(total, "delta byte array values", true)
	if err != nil {
		return err
	}
	off := 0
	for _, p := range pages {
		p.Expanded = buf.Ptr + device.Ptr(off)
		off += p.ExpandedLen
	}
	level.Debug(s.logger).Log("msg", "rebuilt delta byte arrays", "pages", len(pages), "size", humanize.IBytes(uint64(total)))
	return nil
}

func (s *session) decodePage(p *PageInfo) error {
	c := s.chunks[p.ChunkIdx]
	col := s.columns[c.Column]
	esz := col.DType.Size()

	firstRow := c.StartRow + int64(p.ChunkRow)
	if int64(p.ChunkRow)+int64(p.NumValues) > c.NumRows {
		return errorf(DecodeConsistencyError, "decode pages", "page rows [%d, %d) exceed the %d rows of the chunk",
			p.ChunkRow, p.ChunkRow+p.NumValues, c.NumRows)
	}

	data, err := s.dev.View(p.PageData, p.DataLen)
	if err != nil {
		return err
	}
	values, err := s.dev.View(c.ColumnData, col.Size*esz)
	if err != nil {
		return err
	}
	valid, err := s.dev.View(c.ValidMap, validMapSize(col.Size))
	if err != nil {
		return err
	}

	defLevels, off, err := splitLevels(c, p, data)
	if err != nil {
		return err
	}
	var expanded []byte
	if p.ExpandedLen > 0 {
		if expanded, err = s.dev.View(p.Expanded, p.ExpandedLen); err != nil {
			return err
		}
	}

	var dict *PageInfo
	if c.NumDictPages > 0 {
		dict = &s.pages[c.PageOffset]
		if !dict.has(PageDictionary) {
			dict = nil
		} else if dict.has(PageCorrupt | PageSkipped) {
			return nil
		}
	}
	dec, err := s.newValueDecoder(pageValues{
		chunk:    c,
		page:     p,
		dict:     dict,
		data:     data[off:],
		base:     p.PageData + device.Ptr(off),
		expanded: expanded,
	})
	if err != nil {
		return err
	}

	var def *hybridDecoder
	if c.DefLevelBits > 0 {
		def = newHybridDecoder(c.DefLevelBits, defLevels)
	}
	for i := 0; i < p.NumValues; i++ {
		if def != nil {
			lvl, err := def.next()
			if err != nil {
				return errors.Wrapf(err, "definition level %d", i)
			}
			if int(lvl) != c.MaxDefLevel {
				continue
			}
		}
		raw, err := dec.next()
		if err != nil {
			return errors.Wrapf(err, "value %d", i)
		}
		row := int(firstRow) + i
		copy(values[row*esz:(row+1)*esz], raw)
		device.OrUint32(valid, row/32, 1<<uint(row%32))
		p.ValidCount++
	}
	return nil
}
