package gdfparquet

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraugster/gdfparquet/device"
	"github.com/fraugster/gdfparquet/internal/pqtest"
)

func writePageHeader(t *testing.T, buf *bytes.Buffer, ph *parquet.PageHeader) {
	proto := thrift.NewTCompactProtocolConf(&thrift.StreamTransport{Writer: buf}, &thrift.TConfiguration{})
	require.NoError(t, ph.Write(context.Background(), proto))
	require.NoError(t, proto.Flush(context.Background()))
}

func TestPageHeaderScan(t *testing.T) {
	var buf bytes.Buffer
	writePageHeader(t, &buf, &parquet.PageHeader{
		Type:               parquet.PageType_INDEX_PAGE,
		CompressedPageSize: 3,
		IndexPageHeader:    &parquet.IndexPageHeader{},
	})
	buf.Write([]byte{1, 2, 3})
	writePageHeader(t, &buf, &parquet.PageHeader{
		Type:                 parquet.PageType_DATA_PAGE,
		CompressedPageSize:   4,
		UncompressedPageSize: 4,
		DataPageHeader:       &parquet.DataPageHeader{NumValues: 1},
	})
	dataBody := buf.Len()
	buf.Write([]byte{4, 5, 6, 7})

	var bodies []int
	err := pageHeaderScan(context.Background(), buf.Bytes(), func(ph *parquet.PageHeader, body int) error {
		assert.Equal(t, parquet.PageType_DATA_PAGE, ph.Type)
		bodies = append(bodies, body)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{dataBody}, bodies)

	err = pageHeaderScan(context.Background(), buf.Bytes()[:buf.Len()-1], func(*parquet.PageHeader, int) error { return nil })
	assert.Error(t, err)

	var negative bytes.Buffer
	writePageHeader(t, &negative, &parquet.PageHeader{
		Type:               parquet.PageType_DATA_PAGE,
		CompressedPageSize: -1,
		DataPageHeader:     &parquet.DataPageHeader{},
	})
	err = pageHeaderScan(context.Background(), negative.Bytes(), func(*parquet.PageHeader, int) error { return nil })
	assert.Error(t, err)

	err = pageHeaderScan(context.Background(), nil, func(*parquet.PageHeader, int) error {
		t.Fatal("no page expected")
		return nil
	})
	assert.NoError(t, err)
}

func TestInspectBytes(t *testing.T) {
	raw, _, _ := dictionaryFile(t, pqtest.Dictionary, parquet.CompressionCodec_UNCOMPRESSED)
	dev := device.NewHost()
	layout, err := InspectBytes(context.Background(), raw, WithDevice(dev))
	require.NoError(t, err)
	assert.Zero(t, dev.Live())

	assert.Equal(t, int64(23), layout.NumRows)
	require.Len(t, layout.Columns, 2)
	assert.Equal(t, String, layout.Columns[0].DType)
	assert.Equal(t, Int32, layout.Columns[1].DType)

	// chunks are ordered by row group, then column
	require.Len(t, layout.Chunks, 4)
	want := []struct{ column, rowGroup, data, dict int }{
		{0, 0, 4, 1},
		{1, 0, 3, 1},
		{0, 1, 1, 1},
		{1, 1, 1, 1},
	}
	offset := 0
	for i, w := range want {
		c := layout.Chunks[i]
		assert.Equal(t, w.column, c.Column, "chunk %d", i)
		assert.Equal(t, w.rowGroup, c.RowGroup, "chunk %d", i)
		assert.Equal(t, w.data, c.NumDataPages, "chunk %d", i)
		assert.Equal(t, w.dict, c.NumDictPages, "chunk %d", i)
		assert.Equal(t, w.data+w.dict, c.MaxNumPages, "chunk %d", i)
		assert.Equal(t, offset, c.PageOffset, "chunk %d", i)
		offset += c.MaxNumPages
	}
	assert.Equal(t, int64(19), layout.Chunks[2].StartRow)
	assert.Equal(t, parquet.Type_BYTE_ARRAY, layout.Chunks[0].Physical())
	require.Len(t, layout.Pages, offset)

	first := layout.Pages[0]
	assert.True(t, first.has(PageDictionary))
	assert.Equal(t, 3, first.NumValues)

	rows := []int{0, 5, 10, 15}
	for k, row := range rows {
		p := layout.Pages[1+k]
		assert.Equal(t, 0, p.ChunkIdx)
		assert.Equal(t, row, p.ChunkRow)
		assert.Equal(t, parquet.Encoding_RLE_DICTIONARY, p.Encoding)
	}
	assert.Equal(t, 4, layout.Pages[4].NumRows)
}

func TestInspectDataPageV2(t *testing.T) {
	c := optional(pqtest.Col(parquet.Type_INT64, "v"))
	c.DataPageV2 = true
	c.PageValues = 2
	raw, err := pqtest.New(c).AddRowGroup([]interface{}{int64(1), nil, int64(3)}).Build()
	require.NoError(t, err)

	layout, err := InspectBytes(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, layout.Pages, 2)
	for _, p := range layout.Pages {
		assert.True(t, p.has(PageV2))
		assert.False(t, p.IsCompressed)
		assert.NotZero(t, p.DefLevelsLen)
		assert.Zero(t, p.RepLevelsLen)
	}
	assert.Equal(t, 2, layout.Pages[1].ChunkRow)
	assert.Equal(t, 1, layout.Pages[1].NumRows)
}

// preparedSession runs a read up to the counted pages.
func preparedSession(t *testing.T, raw []byte) *session {
	s := newSession(context.Background(), raw, newReaderOptions(nil))
	t.Cleanup(func() {
		assert.NoError(t, s.release())
	})
	footer, err := footerSpan(raw)
	require.NoError(t, err)
	s.meta, err = readFileMetaData(s.ctx, footer)
	require.NoError(t, err)
	s.schema, err = resolveSchema(s.meta)
	require.NoError(t, err)
	require.NoError(t, s.buildPlan())
	require.NoError(t, s.buildChunks())
	require.NoError(t, countPages(s.ctx, s.dev, s.chunks))
	return s
}

func TestPopulatePagesCountMismatch(t *testing.T) {
	raw, _, _ := dictionaryFile(t, pqtest.Dictionary, parquet.CompressionCodec_UNCOMPRESSED)

	s := preparedSession(t, raw)
	s.chunks[1].NumDataPages++
	s.pages = allocPageTable(s.chunks)
	err := populatePages(s.ctx, s.dev, s.chunks, s.pages)
	require.Error(t, err)
	assert.Equal(t, DecodeConsistencyError, KindOf(err))

	s = preparedSession(t, raw)
	s.chunks[0].NumDataPages--
	s.pages = allocPageTable(s.chunks)
	err = populatePages(s.ctx, s.dev, s.chunks, s.pages)
	require.Error(t, err)
	assert.Equal(t, DecodeConsistencyError, KindOf(err))

	s = preparedSession(t, raw)
	s.pages = allocPageTable(s.chunks)
	s.chunks[3].PageOffset = len(s.pages)
	err = populatePages(s.ctx, s.dev, s.chunks, s.pages)
	require.Error(t, err)
	assert.Equal(t, DecodeConsistencyError, KindOf(err))
}

func TestDictionaryPageMustComeFirst(t *testing.T) {
	raw, _, _ := dictionaryFile(t, pqtest.Dictionary, parquet.CompressionCodec_UNCOMPRESSED)
	s := preparedSession(t, raw)
	s.pages = allocPageTable(s.chunks)
	require.NoError(t, populatePages(s.ctx, s.dev, s.chunks, s.pages))

	s.pages[0], s.pages[1] = s.pages[1], s.pages[0]
	require.NoError(t, s.decompressPages())
	err := s.buildDictIndex()
	require.Error(t, err)
	assert.Equal(t, DecodeConsistencyError, KindOf(err))
}

func TestDictionaryIndex(t *testing.T) {
	raw, _, _ := dictionaryFile(t, pqtest.Dictionary, parquet.CompressionCodec_UNCOMPRESSED)
	s := preparedSession(t, raw)
	s.pages = allocPageTable(s.chunks)
	require.NoError(t, populatePages(s.ctx, s.dev, s.chunks, s.pages))
	require.NoError(t, s.decompressPages())
	require.NoError(t, s.buildDictIndex())

	c := s.chunks[0]
	require.Equal(t, 3, c.NumDictEntries)
	index, err := s.dev.View(c.StrDictIndex, c.NumDictEntries*strDescSize)
	require.NoError(t, err)
	var got []string
	for i := 0; i < c.NumDictEntries; i++ {
		d := getStrDesc(index[i*strDescSize:])
		b := make([]byte, d.Len)
		require.NoError(t, s.dev.CopyDeviceToHost(b, d.Ptr))
		got = append(got, string(b))
	}
	assert.Equal(t, []string{"red", "green", "blue"}, got)

	// integer chunks are not indexed
	assert.Zero(t, s.chunks[1].NumDictEntries)
	assert.Zero(t, s.chunks[1].StrDictIndex)
}
