package gdfparquet

import (
	"context"
	"encoding/binary"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/fraugster/gdfparquet/device"
)

// buildDictIndex resolves the dictionary pages of string chunks to string descriptors. The
// index is read by the data decoder for dictionary encoded pages.
func (s *session) buildDictIndex() error {
	total := 0
	var chunks []int
	for i, c := range s.chunks {
		if s.columns[c.Column].DType != String || c.NumDictPages == 0 {
			continue
		}
		first := &s.pages[c.PageOffset]
		if !first.has(PageDictionary) {
			return errorf(DecodeConsistencyError, "dictionary index", "chunk %d has %d dictionary pages but its first page is a data page", i, c.NumDictPages)
		}
		if first.NumValues < 0 {
			return errorf(DecodeConsistencyError, "dictionary index", "chunk %d dictionary has %d values", i, first.NumValues)
		}
		c.NumDictEntries = first.NumValues
		total += c.NumDictEntries
		chunks = append(chunks, i)
	}
	if total == 0 {
		return nil
	}

	index, err := s.alloc(total*strDescSize, "dictionary index", false)
	if err != nil {
		return err
	}
	off := 0
	for _, i := range chunks {
		c := s.chunks[i]
		c.StrDictIndex = index.At(off * strDescSize)
		off += c.NumDictEntries
	}
	level.Debug(s.logger).Log("msg", "dictionary index", "chunks", len(chunks), "entries", total)

	return s.dev.Launch(s.ctx, len(chunks), func(_ context.Context, k int) error {
		i := chunks[k]
		c := s.chunks[i]
		dict := &s.pages[c.PageOffset]
		if dict.has(PageCorrupt | PageSkipped) {
			for p := c.PageOffset + 1; p < c.PageOffset+c.MaxNumPages; p++ {
				s.pages[p].Flags |= dict.Flags & (PageCorrupt | PageSkipped)
			}
			return nil
		}
		if err := s.indexDictionary(c, dict); err != nil {
			return newError(DecodeConsistencyError, "dictionary index", errors.Wrapf(err, "chunk %d", i))
		}
		return nil
	})
}

// indexDictionary writes one string descriptor per entry of a PLAIN encoded dictionary.
func (s *session) indexDictionary(c *ColumnChunkDesc, dict *PageInfo) error {
	data, err := s.dev.View(dict.PageData, dict.DataLen)
	if err != nil {
		return err
	}
	index, err := s.dev.View(c.StrDictIndex, c.NumDictEntries*strDescSize)
	if err != nil {
		return err
	}

	fixed := 0
	if c.Physical() == parquet.Type_FIXED_LEN_BYTE_ARRAY {
		fixed = c.typeWidth() >> 3
	}
	pos := 0
	for e := 0; e < c.NumDictEntries; e++ {
		n := fixed
		if fixed == 0 {
			if len(data)-pos < 4 {
				return errors.Errorf("dictionary entry %d: truncated length", e)
			}
			n = int(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
		}
		if n < 0 || n > len(data)-pos {
			return errors.Errorf("dictionary entry %d of %d bytes exceeds the page", e, n)
		}
		putStrDesc(index[e*strDescSize:], StrDesc{Ptr: dict.PageData + device.Ptr(pos), Len: n})
		pos += n
	}
	return nil
}
