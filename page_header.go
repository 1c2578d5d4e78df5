package gdfparquet

import (
	"bytes"
	"context"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/pkg/errors"

	"github.com/fraugster/gdfparquet/device"
)

// PageFlags describe a page of the page table.
type PageFlags uint8

const (
	// PageDictionary marks dictionary pages.
	PageDictionary PageFlags = 1 << iota
	// PageV2 marks DATA_PAGE_V2 pages.
	PageV2
	// PageCorrupt marks pages the decompression backend failed on.
	PageCorrupt
	// PageSkipped marks pages of chunks with an unsupported codec.
	PageSkipped
)

// PageInfo is one entry of the page table.
type PageInfo struct {
	ChunkIdx int
	// ChunkRow is the first row of the page relative to the start of its chunk.
	ChunkRow  int
	Flags     PageFlags
	NumValues int
	NumRows   int
	Encoding  parquet.Encoding

	DefinitionLevelEncoding parquet.Encoding
	RepetitionLevelEncoding parquet.Encoding
	// DefLevelsLen and RepLevelsLen are the level byte lengths of V2 pages.
	DefLevelsLen int
	RepLevelsLen int
	IsCompressed bool

	CompressedPageSize   int
	UncompressedPageSize int
	// PageData points at the page body, first inside the staged chunk and after
	// decompression inside the decompressed buffer. DataLen is the byte length there.
	PageData device.Ptr
	DataLen  int
	// Expanded holds the rebuilt values of a DELTA_BYTE_ARRAY page, ExpandedLen bytes.
	Expanded    device.Ptr
	ExpandedLen int

	// ValidCount is the number of non-null values the data decoder wrote.
	ValidCount int
}

func (p *PageInfo) has(f PageFlags) bool {
	return p.Flags&f != 0
}

// pageHeaderScan walks the page headers of one chunk. emit is called for every dictionary
// and data page with the header and the offset of the page body inside the chunk.
func pageHeaderScan(ctx context.Context, data []byte, emit func(ph *parquet.PageHeader, body int) error) error {
	for pos := 0; pos < len(data); {
		r := bytes.NewReader(data[pos:])
		ph := &parquet.PageHeader{}
		if err := readThrift(ctx, ph, r); err != nil {
			return errors.Wrapf(err, "page header at offset %d", pos)
		}
		body := pos + (len(data) - pos - r.Len())
		if ph.CompressedPageSize < 0 || ph.UncompressedPageSize < 0 {
			return errors.Errorf("page at offset %d has negative size", pos)
		}
		end := body + int(ph.CompressedPageSize)
		if end > len(data) {
			return errors.Errorf("page at offset %d ends at %d beyond the chunk of %d bytes", pos, end, len(data))
		}

		switch ph.Type {
		case parquet.PageType_DICTIONARY_PAGE, parquet.PageType_DATA_PAGE, parquet.PageType_DATA_PAGE_V2:
			if err := emit(ph, body); err != nil {
				return err
			}
		}
		pos = end
	}
	return nil
}

func chunkBytes(dev device.Device, c *ColumnChunkDesc) ([]byte, error) {
	if c.CompressedSize == 0 {
		return nil, nil
	}
	return dev.View(c.CompressedData.Ptr, c.CompressedSize)
}

// countPages is the first header pass: it counts the data and dictionary pages of every
// chunk without recording them.
func countPages(ctx context.Context, dev device.Device, chunks []*ColumnChunkDesc) error {
	return dev.Launch(ctx, len(chunks), func(ctx context.Context, i int) error {
		c := chunks[i]
		data, err := chunkBytes(dev, c)
		if err != nil {
			return newError(DecodeConsistencyError, "count pages", err)
		}
		c.NumDataPages, c.NumDictPages = 0, 0
		err = pageHeaderScan(ctx, data, func(ph *parquet.PageHeader, _ int) error {
			if ph.Type == parquet.PageType_DICTIONARY_PAGE {
				c.NumDictPages++
			} else {
				c.NumDataPages++
			}
			return nil
		})
		if err != nil {
			return newError(DecodeConsistencyError, "count pages", errors.Wrapf(err, "chunk %d", i))
		}
		return nil
	})
}

// allocPageTable sizes the page table to the pages counted by the first pass and gives
// every chunk its slice, in chunk order.
func allocPageTable(chunks []*ColumnChunkDesc) []PageInfo {
	total := 0
	for _, c := range chunks {
		c.MaxNumPages = c.NumDataPages + c.NumDictPages
		c.PageOffset = total
		total += c.MaxNumPages
	}
	return make([]PageInfo, total)
}

// populatePages is the second header pass: it fills the slice of the page table of every
// chunk. Finding a different number of pages than the first pass is an error.
func populatePages(ctx context.Context, dev device.Device, chunks []*ColumnChunkDesc, pages []PageInfo) error {
	return dev.Launch(ctx, len(chunks), func(ctx context.Context, i int) error {
		c := chunks[i]
		if c.PageOffset < 0 || c.PageOffset+c.MaxNumPages > len(pages) {
			return errorf(DecodeConsistencyError, "populate pages", "chunk %d page slice [%d, %d) outside of the page table of %d entries",
				i, c.PageOffset, c.PageOffset+c.MaxNumPages, len(pages))
		}
		slice := pages[c.PageOffset : c.PageOffset+c.MaxNumPages]
		data, err := chunkBytes(dev, c)
		if err != nil {
			return newError(DecodeConsistencyError, "populate pages", err)
		}

		n, row := 0, 0
		err = pageHeaderScan(ctx, data, func(ph *parquet.PageHeader, body int) error {
			if n >= len(slice) {
				n++
				return nil
			}
			p := &slice[n]
			*p = PageInfo{
				ChunkIdx:             i,
				ChunkRow:             row,
				CompressedPageSize:   int(ph.CompressedPageSize),
				UncompressedPageSize: int(ph.UncompressedPageSize),
				PageData:             c.CompressedData.At(body),
				DataLen:              int(ph.CompressedPageSize),
				IsCompressed:         true,
			}
			switch ph.Type {
			case parquet.PageType_DICTIONARY_PAGE:
				h := ph.DictionaryPageHeader
				if h == nil {
					return errors.New("dictionary page without dictionary page header")
				}
				p.Flags |= PageDictionary
				p.NumValues = int(h.NumValues)
				p.Encoding = h.Encoding
			case parquet.PageType_DATA_PAGE:
				h := ph.DataPageHeader
				if h == nil {
					return errors.New("data page without data page header")
				}
				p.NumValues = int(h.NumValues)
				p.NumRows = int(h.NumValues)
				p.Encoding = h.Encoding
				p.DefinitionLevelEncoding = h.DefinitionLevelEncoding
				p.RepetitionLevelEncoding = h.RepetitionLevelEncoding
			case parquet.PageType_DATA_PAGE_V2:
				h := ph.DataPageHeaderV2
				if h == nil {
					return errors.New("data page v2 without data page header")
				}
				if h.DefinitionLevelsByteLength < 0 || h.RepetitionLevelsByteLength < 0 ||
					int(h.DefinitionLevelsByteLength+h.RepetitionLevelsByteLength) > p.CompressedPageSize {
					return errors.Errorf("data page v2 level lengths %d+%d exceed page size %d",
						h.RepetitionLevelsByteLength, h.DefinitionLevelsByteLength, p.CompressedPageSize)
				}
				p.Flags |= PageV2
				p.NumValues = int(h.NumValues)
				p.NumRows = int(h.NumRows)
				p.Encoding = h.Encoding
				p.DefinitionLevelEncoding = parquet.Encoding_RLE
				p.RepetitionLevelEncoding = parquet.Encoding_RLE
				p.DefLevelsLen = int(h.DefinitionLevelsByteLength)
				p.RepLevelsLen = int(h.RepetitionLevelsByteLength)
				p.IsCompressed = h.IsCompressed
			}
			if p.NumValues < 0 || p.NumRows < 0 {
				return errors.Errorf("page %d has negative value count", n)
			}
			row += p.NumRows
			n++
			return nil
		})
		if err != nil {
			return newError(DecodeConsistencyError, "populate pages", errors.Wrapf(err, "chunk %d", i))
		}
		if n != c.MaxNumPages {
			return errorf(DecodeConsistencyError, "populate pages", "chunk %d has %d pages, first pass counted %d", i, n, c.MaxNumPages)
		}
		return nil
	})
}
