package gdfparquet

import (
	"math/bits"

	"github.com/dustin/go-humanize"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/go-kit/log/level"

	"github.com/fraugster/gdfparquet/codec"
	"github.com/fraugster/gdfparquet/device"
)

// ColumnChunkDesc is the decode-time state of one column chunk of a selected column.
type ColumnChunkDesc struct {
	// Column is the index of the output column.
	Column   int
	RowGroup int
	StartRow int64
	NumRows  int64
	// NumValues is the value count declared by the chunk metadata.
	NumValues int64

	MaxDefLevel  int
	MaxRepLevel  int
	DefLevelBits int
	RepLevelBits int
	// DataType is the physical type in the low 3 bits and a width override above them.
	DataType uint32
	Codec    parquet.CompressionCodec

	// CompressedData holds the chunk bytes as stored in the file.
	CompressedData device.Buffer
	CompressedSize int

	NumDataPages int
	NumDictPages int
	MaxNumPages  int
	// PageOffset is the index of the first page of the chunk in the page table.
	PageOffset int

	StrDictIndex   device.Ptr
	NumDictEntries int

	ColumnData device.Ptr
	ValidMap   device.Ptr
}

// Physical returns the physical type of the chunk.
func (c *ColumnChunkDesc) Physical() parquet.Type {
	return parquet.Type(c.DataType & 7)
}

// typeWidth returns the width override packed into DataType.
func (c *ColumnChunkDesc) typeWidth() int {
	return int(c.DataType >> 3)
}

// requiredBits is the number of bits needed to store levels up to maxLevel.
func requiredBits(maxLevel int) int {
	return bits.Len(uint(maxLevel))
}

func packDataType(physical parquet.Type, typeLength int32, dtype DType) uint32 {
	var width uint32
	if physical == parquet.Type_FIXED_LEN_BYTE_ARRAY {
		width = uint32(typeLength) << 3
	}
	switch dtype {
	case Int8:
		width = 1
	case Int16:
		width = 2
	}
	return uint32(physical) | width<<3
}

// buildChunks creates a descriptor for every chunk of a selected column and stages its bytes
// on the device. Chunks beyond the table size are skipped with a warning.
func (s *session) buildChunks() error {
	maxChunks := len(s.meta.RowGroups) * len(s.columns)
	if s.opts.maxChunks > 0 {
		maxChunks = s.opts.maxChunks
	}
	s.chunks = make([]*ColumnChunkDesc, 0, maxChunks)

	var rows int64
	for g, rg := range s.meta.RowGroups {
		for _, cc := range rg.Columns {
			if cc == nil || cc.MetaData == nil {
				return errorf(SchemaError, "chunks", "column chunk in row group %d has no metadata", g)
			}
			name := dottedPath(cc.MetaData.PathInSchema)
			k := s.columnIndex(name)
			if k < 0 {
				continue
			}
			if len(s.chunks) >= maxChunks {
				level.Warn(s.logger).Log("msg", "too many chunks, skipping column chunk", "column", name, "row_group", g, "max_chunks", maxChunks)
				s.metrics.chunkSkipped()
				continue
			}
			chunk, err := s.newChunk(g, cc, k, rows, rg.NumRows)
			if err != nil {
				return err
			}
			s.chunks = append(s.chunks, chunk)
		}
		rows += rg.NumRows
	}

	for i, c := range s.chunks {
		level.Debug(s.logger).Log("msg", "column chunk", "chunk", i, "column", s.columns[c.Column].Name,
			"row_group", c.RowGroup, "start_row", c.StartRow, "rows", c.NumRows, "codec", codec.Name(c.Codec),
			"size", humanize.IBytes(uint64(c.CompressedSize)), "data_type", c.DataType)
	}
	return nil
}

func (s *session) columnIndex(name string) int {
	for k, c := range s.columns {
		if c.Name == name {
			return k
		}
	}
	return -1
}

func (s *session) newChunk(g int, cc *parquet.ColumnChunk, k int, startRow, numRows int64) (*ColumnChunkDesc, error) {
	md := cc.MetaData
	leaf := s.leaves[k]
	col := s.columns[k]
	if cc.FilePath != nil && *cc.FilePath != "" {
		return nil, errorf(SchemaError, "chunks", "column %s in row group %d is stored in external file %s", col.Name, g, *cc.FilePath)
	}
	if md.Type != *leaf.Type {
		return nil, errorf(SchemaError, "chunks", "column %s in row group %d has type %s, schema says %s", col.Name, g, md.Type, leaf.Type)
	}

	var typeLength int32
	if leaf.TypeLength != nil {
		typeLength = *leaf.TypeLength
	}
	if md.Type == parquet.Type_FIXED_LEN_BYTE_ARRAY && typeLength <= 0 {
		return nil, errorf(SchemaError, "chunks", "column %s has fixed length byte array type without length", col.Name)
	}

	chunk := &ColumnChunkDesc{
		Column:       k,
		RowGroup:     g,
		StartRow:     startRow,
		NumRows:      numRows,
		NumValues:    md.NumValues,
		MaxDefLevel:  leaf.maxDef,
		MaxRepLevel:  leaf.maxRep,
		DefLevelBits: requiredBits(leaf.maxDef),
		RepLevelBits: requiredBits(leaf.maxRep),
		DataType:     packDataType(md.Type, typeLength, col.DType),
		Codec:        md.Codec,
		ColumnData:   col.Data.Ptr,
		ValidMap:     col.Valid.Ptr,
	}

	firstPage := md.DataPageOffset
	if md.DictionaryPageOffset != nil && *md.DictionaryPageOffset != 0 && *md.DictionaryPageOffset < firstPage {
		firstPage = *md.DictionaryPageOffset
	}
	size := md.TotalCompressedSize
	if size < 0 || firstPage < 0 || size > int64(len(s.raw)) || firstPage > int64(len(s.raw))-size {
		return nil, errorf(FileError, "chunks", "column %s in row group %d spans bytes [%d, %d) outside of the file of %d bytes",
			col.Name, g, firstPage, firstPage+size, len(s.raw))
	}

	if size > 0 {
		buf, err := s.alloc(int(size), "chunk data", col.DType == String)
		if err != nil {
			return nil, err
		}
		if err := s.dev.CopyHostToDevice(buf.Ptr, s.raw[firstPage:firstPage+size]); err != nil {
			return nil, newError(FileError, "chunks", err)
		}
		chunk.CompressedData = buf
		chunk.CompressedSize = int(size)
	}
	return chunk, nil
}
