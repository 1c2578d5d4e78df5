package gdfparquet

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/go-kit/log/level"
)

// ReadFile decodes the selected columns of the Parquet file at path onto the device. On
// success the caller owns the returned columns and releases them with Result.Free. On
// failure every device allocation made by the read has been released.
func ReadFile(ctx context.Context, path string, opts ...ReaderOption) (*Result, error) {
	o := newReaderOptions(opts)
	raw, err := loadFile(path)
	if err != nil {
		o.metrics.readFailed(err)
		return nil, err
	}
	return read(ctx, raw, o)
}

// ReadBytes is ReadFile for a file already in memory.
func ReadBytes(ctx context.Context, raw []byte, opts ...ReaderOption) (*Result, error) {
	return read(ctx, raw, newReaderOptions(opts))
}

func read(ctx context.Context, raw []byte, o *readerOptions) (res *Result, err error) {
	start := time.Now()
	s := newSession(ctx, raw, o)
	defer func() {
		if err != nil {
			_ = s.release()
			o.metrics.readFailed(err)
			level.Debug(s.logger).Log("msg", "read failed", "err", err)
		}
	}()

	if err = s.checkCanceled(); err != nil {
		return nil, err
	}
	if err = s.prepare(); err != nil {
		return nil, err
	}
	stages := []func() error{
		s.decompressPages,
		s.buildDictIndex,
		s.decodePages,
	}
	for _, stage := range stages {
		if err = s.checkCanceled(); err != nil {
			return nil, err
		}
		if err = stage(); err != nil {
			return nil, err
		}
	}
	s.assemble()

	if res, err = s.finish(); err != nil {
		return nil, err
	}
	o.metrics.readSucceeded(time.Since(start).Seconds())
	level.Debug(s.logger).Log("msg", "read file", "columns", len(res.Columns), "rows", res.NumRows, "duration", time.Since(start))
	return res, nil
}

// prepare runs the stages up to the populated page table.
func (s *session) prepare() error {
	footer, err := footerSpan(s.raw)
	if err != nil {
		return err
	}
	level.Debug(s.logger).Log("msg", "located footer", "file_size", humanize.IBytes(uint64(len(s.raw))), "footer_size", humanize.IBytes(uint64(len(footer))))

	if s.meta, err = readFileMetaData(s.ctx, footer); err != nil {
		return err
	}
	level.Debug(s.logger).Log("msg", "file metadata", "version", s.meta.Version, "rows", s.meta.NumRows,
		"row_groups", len(s.meta.RowGroups), "schema_elements", len(s.meta.Schema))

	if s.schema, err = resolveSchema(s.meta); err != nil {
		return err
	}
	if err = s.buildPlan(); err != nil {
		return err
	}
	if err = s.buildChunks(); err != nil {
		return err
	}

	if err = s.checkCanceled(); err != nil {
		return err
	}
	if err = countPages(s.ctx, s.dev, s.chunks); err != nil {
		return err
	}
	s.pages = allocPageTable(s.chunks)
	if err = populatePages(s.ctx, s.dev, s.chunks, s.pages); err != nil {
		return err
	}
	level.Debug(s.logger).Log("msg", "page table", "chunks", len(s.chunks), "pages", len(s.pages))
	return nil
}

// assemble sums the valid counts of all pages of a column into its null count.
func (s *session) assemble() {
	valid := make([]int, len(s.columns))
	for i := range s.pages {
		p := &s.pages[i]
		if p.has(PageDictionary) {
			continue
		}
		valid[s.chunks[p.ChunkIdx].Column] += p.ValidCount
	}
	for k, c := range s.columns {
		c.NullCount = c.Size - valid[k]
	}
}

// ColumnLayout describes a selected column.
type ColumnLayout struct {
	Name  string
	DType DType
	Info  DTypeInfo
}

// Layout is the chunk and page structure of a file as seen by the decoder. Its device
// pointers refer to memory that was released before Inspect returned.
type Layout struct {
	Meta        *parquet.FileMetaData
	NumRows     int64
	IndexColumn int
	Columns     []ColumnLayout
	Chunks      []ColumnChunkDesc
	Pages       []PageInfo
}

// InspectFile runs the read of path up to the page table and returns it.
func InspectFile(ctx context.Context, path string, opts ...ReaderOption) (*Layout, error) {
	raw, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return InspectBytes(ctx, raw, opts...)
}

// InspectBytes is InspectFile for a file already in memory.
func InspectBytes(ctx context.Context, raw []byte, opts ...ReaderOption) (*Layout, error) {
	s := newSession(ctx, raw, newReaderOptions(opts))
	err := s.prepare()
	if rerr := s.release(); err == nil && rerr != nil {
		err = rerr
	}
	if err != nil {
		return nil, err
	}

	l := &Layout{
		Meta:        s.meta,
		NumRows:     s.numRows,
		IndexColumn: s.indexColumn,
		Pages:       s.pages,
	}
	for _, c := range s.columns {
		l.Columns = append(l.Columns, ColumnLayout{Name: c.Name, DType: c.DType, Info: c.Info})
	}
	for _, c := range s.chunks {
		l.Chunks = append(l.Chunks, *c)
	}
	return l, nil
}

// SchemaColumn is a leaf column of a file schema with its output type.
type SchemaColumn struct {
	Name          string
	Physical      parquet.Type
	DType         DType
	Info          DTypeInfo
	MaxDefinition int
	MaxRepetition int
}

// ReadMetaData validates the footer of an in-memory file and parses it.
func ReadMetaData(ctx context.Context, raw []byte) (*parquet.FileMetaData, error) {
	footer, err := footerSpan(raw)
	if err != nil {
		return nil, err
	}
	return readFileMetaData(ctx, footer)
}

// SchemaColumns lists the leaf columns of the schema in file order. Columns without an
// output type are reported with DType Invalid.
func SchemaColumns(meta *parquet.FileMetaData) ([]SchemaColumn, error) {
	schema, err := resolveSchema(meta)
	if err != nil {
		return nil, err
	}
	out := make([]SchemaColumn, 0, len(schema.columns))
	for _, c := range schema.columns {
		sc := SchemaColumn{Name: c.flatName, MaxDefinition: c.maxDef, MaxRepetition: c.maxRep}
		if c.Type != nil {
			sc.Physical = *c.Type
			sc.DType, sc.Info = mapType(*c.Type, c.ConvertedType, c.LogicalType)
		}
		out = append(out, sc)
	}
	return out, nil
}
