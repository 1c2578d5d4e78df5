// Package pqtest builds small Parquet files in memory for tests. It covers the encodings,
// page versions and codecs the decoder understands and gives tests control over the footer.
package pqtest

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"math/bits"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/pkg/errors"
)

// Encoding selects how the values of a column are written.
type Encoding int

const (
	// Plain writes PLAIN values.
	Plain Encoding = iota
	// Dictionary writes a PLAIN dictionary page and RLE_DICTIONARY data pages.
	Dictionary
	// LegacyDictionary is Dictionary with the deprecated PLAIN_DICTIONARY encoding ids.
	LegacyDictionary
	// RLE writes booleans with the RLE encoding.
	RLE
	// Delta writes DELTA_BINARY_PACKED integers and DELTA_LENGTH_BYTE_ARRAY byte arrays.
	Delta
	// ByteStreamSplit writes BYTE_STREAM_SPLIT values.
	ByteStreamSplit
	// DeltaByteArray writes byte arrays as prefixes shared with the previous value plus
	// DELTA_LENGTH_BYTE_ARRAY suffixes.
	DeltaByteArray
)

// EncodingByteStreamSplit is the BYTE_STREAM_SPLIT encoding id.
const EncodingByteStreamSplit = parquet.Encoding(9)

// Column describes one leaf column of a fixture file.
type Column struct {
	// Path is the dotted path of the column split into its parts. Parent groups are created
	// on first use and are optional when GroupOptional is set.
	Path          []string
	Type          parquet.Type
	TypeLength    int32
	Optional      bool
	Repeated      bool
	GroupOptional bool
	Converted     *parquet.ConvertedType
	Logical       *parquet.LogicalType

	Codec    parquet.CompressionCodec
	Encoding Encoding
	// PageValues is the number of values per data page, zero puts a chunk in a single page.
	PageValues int
	DataPageV2 bool
	// Corrupt replaces the compressed payload of every data page with garbage.
	Corrupt bool
}

// Col returns a required column with the given dotted path parts.
func Col(typ parquet.Type, path ...string) Column {
	return Column{Path: path, Type: typ}
}

func (c Column) maxDef() int {
	d := 0
	if c.GroupOptional {
		d += len(c.Path) - 1
	}
	if c.Optional || c.Repeated {
		d++
	}
	return d
}

func (c Column) maxRep() int {
	if c.Repeated {
		return 1
	}
	return 0
}

// Builder assembles a Parquet file.
type Builder struct {
	columns   []Column
	rowGroups [][][]interface{}
	kv        []*parquet.KeyValue
	mutate    []func(*parquet.FileMetaData)
}

// New returns a builder for a file with the given columns.
func New(columns ...Column) *Builder {
	return &Builder{columns: columns}
}

// AddRowGroup adds a row group with one value slice per column. A nil value is a null.
func (b *Builder) AddRowGroup(values ...[]interface{}) *Builder {
	b.rowGroups = append(b.rowGroups, values)
	return b
}

// KeyValue adds a footer key/value entry.
func (b *Builder) KeyValue(key, value string) *Builder {
	v := value
	b.kv = append(b.kv, &parquet.KeyValue{Key: key, Value: &v})
	return b
}

// Mutate registers a function that edits the footer right before it is serialized.
func (b *Builder) Mutate(fn func(*parquet.FileMetaData)) *Builder {
	b.mutate = append(b.mutate, fn)
	return b
}

func writeThrift(ctx context.Context, ts thrift.TStruct, w io.Writer) error {
	transport := &thrift.StreamTransport{Writer: w}
	proto := thrift.NewTCompactProtocolConf(transport, &thrift.TConfiguration{})
	if err := ts.Write(ctx, proto); err != nil {
		return err
	}
	return proto.Flush(ctx)
}

func (b *Builder) schema() []*parquet.SchemaElement {
	root := &parquet.SchemaElement{Name: "schema"}
	elems := []*parquet.SchemaElement{root}
	groups := map[string]*parquet.SchemaElement{}
	rootChildren := int32(0)

	for _, c := range b.columns {
		parent := root
		prefix := ""
		for i, name := range c.Path[:len(c.Path)-1] {
			if i > 0 {
				prefix += "."
			}
			prefix += name
			g, ok := groups[prefix]
			if !ok {
				rep := parquet.FieldRepetitionType_REQUIRED
				if c.GroupOptional {
					rep = parquet.FieldRepetitionType_OPTIONAL
				}
				n := int32(0)
				g = &parquet.SchemaElement{Name: name, RepetitionType: &rep, NumChildren: &n}
				groups[prefix] = g
				elems = append(elems, g)
				if parent == root {
					rootChildren++
				} else {
					*parent.NumChildren++
				}
			}
			parent = g
		}

		rep := parquet.FieldRepetitionType_REQUIRED
		if c.Optional {
			rep = parquet.FieldRepetitionType_OPTIONAL
		}
		if c.Repeated {
			rep = parquet.FieldRepetitionType_REPEATED
		}
		typ := c.Type
		leaf := &parquet.SchemaElement{
			Name:           c.Path[len(c.Path)-1],
			Type:           &typ,
			RepetitionType: &rep,
			ConvertedType:  c.Converted,
			LogicalType:    c.Logical,
		}
		if c.TypeLength > 0 {
			tl := c.TypeLength
			leaf.TypeLength = &tl
		}
		elems = append(elems, leaf)
		if parent == root {
			rootChildren++
		} else {
			*parent.NumChildren++
		}
	}
	root.NumChildren = &rootChildren
	return elems
}

// Build serializes the file.
func (b *Builder) Build() ([]byte, error) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	buf.WriteString("PAR1")

	meta := &parquet.FileMetaData{
		Version:          1,
		Schema:           b.schema(),
		KeyValueMetadata: b.kv,
	}
	createdBy := "gdfparquet pqtest"
	meta.CreatedBy = &createdBy

	for _, group := range b.rowGroups {
		if len(group) != len(b.columns) {
			return nil, errors.Errorf("pqtest: row group has %d columns, schema %d", len(group), len(b.columns))
		}
		rg := &parquet.RowGroup{}
		for i, c := range b.columns {
			if i == 0 {
				rg.NumRows = int64(len(group[i]))
			} else if int64(len(group[i])) != rg.NumRows {
				return nil, errors.Errorf("pqtest: column %d has %d rows, expected %d", i, len(group[i]), rg.NumRows)
			}
			chunk, err := writeChunk(ctx, buf, c, group[i])
			if err != nil {
				return nil, err
			}
			rg.Columns = append(rg.Columns, chunk)
			rg.TotalByteSize += chunk.MetaData.TotalUncompressedSize
		}
		meta.RowGroups = append(meta.RowGroups, rg)
		meta.NumRows += rg.NumRows
	}

	for _, fn := range b.mutate {
		fn(meta)
	}

	footer := &bytes.Buffer{}
	if err := writeThrift(ctx, meta, footer); err != nil {
		return nil, errors.Wrap(err, "pqtest: write footer")
	}
	buf.Write(footer.Bytes())
	if err := binary.Write(buf, binary.LittleEndian, uint32(footer.Len())); err != nil {
		return nil, err
	}
	buf.WriteString("PAR1")
	return buf.Bytes(), nil
}

type dictionary struct {
	index  map[interface{}]uint32
	values []interface{}
}

func dictKey(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case float32:
		return math.Float32bits(t)
	case float64:
		return math.Float64bits(t)
	}
	return v
}

func buildDictionary(values []interface{}) *dictionary {
	d := &dictionary{index: map[interface{}]uint32{}}
	for _, v := range values {
		if v == nil {
			continue
		}
		k := dictKey(v)
		if _, ok := d.index[k]; !ok {
			d.index[k] = uint32(len(d.values))
			d.values = append(d.values, v)
		}
	}
	return d
}

func writeChunk(ctx context.Context, buf *bytes.Buffer, c Column, values []interface{}) (*parquet.ColumnChunk, error) {
	start := int64(buf.Len())
	md := &parquet.ColumnMetaData{
		Type:         c.Type,
		PathInSchema: c.Path,
		Codec:        c.Codec,
		NumValues:    int64(len(values)),
	}
	encodings := map[parquet.Encoding]bool{parquet.Encoding_RLE: true}

	var dict *dictionary
	if c.Encoding == Dictionary || c.Encoding == LegacyDictionary {
		dict = buildDictionary(values)
		data, err := encodePlain(c.Type, dict.values)
		if err != nil {
			return nil, err
		}
		enc := parquet.Encoding_PLAIN
		if c.Encoding == LegacyDictionary {
			enc = parquet.Encoding_PLAIN_DICTIONARY
		}
		comp, err := CompressBlock(data, c.Codec)
		if err != nil {
			return nil, err
		}
		ph := &parquet.PageHeader{
			Type:                 parquet.PageType_DICTIONARY_PAGE,
			UncompressedPageSize: int32(len(data)),
			CompressedPageSize:   int32(len(comp)),
			DictionaryPageHeader: &parquet.DictionaryPageHeader{
				NumValues: int32(len(dict.values)),
				Encoding:  enc,
			},
		}
		offset := int64(buf.Len())
		md.DictionaryPageOffset = &offset
		if err := writeThrift(ctx, ph, buf); err != nil {
			return nil, err
		}
		buf.Write(comp)
		encodings[enc] = true
		md.TotalUncompressedSize += int64(len(data))
	}

	md.DataPageOffset = int64(buf.Len())
	per := c.PageValues
	if per <= 0 {
		per = len(values)
	}
	for lo := 0; lo < len(values) || lo == 0; lo += per {
		hi := lo + per
		if hi > len(values) {
			hi = len(values)
		}
		enc, n, err := writeDataPage(ctx, buf, c, values[lo:hi], dict)
		if err != nil {
			return nil, err
		}
		encodings[enc] = true
		md.TotalUncompressedSize += int64(n)
		if len(values) == 0 {
			break
		}
	}

	md.TotalCompressedSize = int64(buf.Len()) - start
	for _, e := range []parquet.Encoding{
		parquet.Encoding_PLAIN, parquet.Encoding_PLAIN_DICTIONARY, parquet.Encoding_RLE,
		parquet.Encoding_RLE_DICTIONARY, parquet.Encoding_DELTA_BINARY_PACKED,
		parquet.Encoding_DELTA_LENGTH_BYTE_ARRAY, parquet.Encoding_DELTA_BYTE_ARRAY, EncodingByteStreamSplit,
	} {
		if encodings[e] {
			md.Encodings = append(md.Encodings, e)
		}
	}
	return &parquet.ColumnChunk{FileOffset: start, MetaData: md}, nil
}

func writeDataPage(ctx context.Context, buf *bytes.Buffer, c Column, values []interface{}, dict *dictionary) (parquet.Encoding, int, error) {
	maxDef := c.maxDef()
	defLevels := make([]uint32, len(values))
	var nonNull []interface{}
	for i, v := range values {
		if v != nil {
			defLevels[i] = uint32(maxDef)
			nonNull = append(nonNull, v)
		}
	}
	if maxDef == 0 && len(nonNull) != len(values) {
		return 0, 0, errors.Errorf("pqtest: null value in required column %v", c.Path)
	}

	var (
		enc  parquet.Encoding
		data []byte
		err  error
	)
	switch c.Encoding {
	case Plain:
		enc = parquet.Encoding_PLAIN
		data, err = encodePlain(c.Type, nonNull)
	case Dictionary, LegacyDictionary:
		enc = parquet.Encoding_RLE_DICTIONARY
		if c.Encoding == LegacyDictionary {
			enc = parquet.Encoding_PLAIN_DICTIONARY
		}
		idx := make([]uint32, len(nonNull))
		for i, v := range nonNull {
			idx[i] = dict.index[dictKey(v)]
		}
		width := 0
		if len(dict.values) > 1 {
			width = bits.Len(uint(len(dict.values) - 1))
		}
		data = append([]byte{byte(width)}, EncodeHybrid(idx, width)...)
	case RLE:
		enc = parquet.Encoding_RLE
		data = encodeBooleanRLE(nonNull)
	case Delta:
		enc = parquet.Encoding_DELTA_BINARY_PACKED
		if c.Type == parquet.Type_BYTE_ARRAY {
			enc = parquet.Encoding_DELTA_LENGTH_BYTE_ARRAY
		}
		data, err = encodeDelta(c.Type, nonNull)
	case ByteStreamSplit:
		enc = EncodingByteStreamSplit
		data, err = encodeByteStreamSplit(c.Type, nonNull)
	case DeltaByteArray:
		enc = parquet.Encoding_DELTA_BYTE_ARRAY
		data = EncodeDeltaByteArray(nonNull)
	}
	if err != nil {
		return 0, 0, err
	}

	var rep []byte
	if c.maxRep() > 0 {
		rep = EncodeHybrid(make([]uint32, len(values)), bits.Len(uint(c.maxRep())))
	}
	var def []byte
	if maxDef > 0 {
		def = EncodeHybrid(defLevels, bits.Len(uint(maxDef)))
	}

	if c.DataPageV2 {
		comp, err := CompressBlock(data, c.Codec)
		if err != nil {
			return 0, 0, err
		}
		if c.Corrupt {
			comp = garbage(len(comp))
		}
		levels := len(rep) + len(def)
		ph := &parquet.PageHeader{
			Type:                 parquet.PageType_DATA_PAGE_V2,
			UncompressedPageSize: int32(levels + len(data)),
			CompressedPageSize:   int32(levels + len(comp)),
			DataPageHeaderV2: &parquet.DataPageHeaderV2{
				NumValues:                  int32(len(values)),
				NumNulls:                   int32(len(values) - len(nonNull)),
				NumRows:                    int32(len(values)),
				Encoding:                   enc,
				DefinitionLevelsByteLength: int32(len(def)),
				RepetitionLevelsByteLength: int32(len(rep)),
				IsCompressed:               c.Codec != parquet.CompressionCodec_UNCOMPRESSED,
			},
		}
		if err := writeThrift(ctx, ph, buf); err != nil {
			return 0, 0, err
		}
		buf.Write(rep)
		buf.Write(def)
		buf.Write(comp)
		return enc, levels + len(data), nil
	}

	var body []byte
	if c.maxRep() > 0 {
		body = append(body, withLengthPrefix(rep)...)
	}
	if maxDef > 0 {
		body = append(body, withLengthPrefix(def)...)
	}
	body = append(body, data...)
	comp, err := CompressBlock(body, c.Codec)
	if err != nil {
		return 0, 0, err
	}
	if c.Corrupt {
		comp = garbage(len(comp))
	}
	ph := &parquet.PageHeader{
		Type:                 parquet.PageType_DATA_PAGE,
		UncompressedPageSize: int32(len(body)),
		CompressedPageSize:   int32(len(comp)),
		DataPageHeader: &parquet.DataPageHeader{
			NumValues:               int32(len(values)),
			Encoding:                enc,
			DefinitionLevelEncoding: parquet.Encoding_RLE,
			RepetitionLevelEncoding: parquet.Encoding_RLE,
		},
	}
	if err := writeThrift(ctx, ph, buf); err != nil {
		return 0, 0, err
	}
	buf.Write(comp)
	return enc, len(body), nil
}

func garbage(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xff
	}
	return out
}
