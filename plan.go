package gdfparquet

import (
	"math"
	"strings"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/go-kit/log/level"
	"github.com/samber/lo"
)

const (
	pandasMetadataKey = "pandas"
	indexColumnsKey   = "index_columns"
)

// indexColumnName extracts the name of the index column from the pandas metadata stored in
// the footer. The value is scanned as text: the first bracket pair after the index_columns
// key holds a quoted column name. If the markers are missing or too close together no
// index column is assumed.
func indexColumnName(kv []*parquet.KeyValue) string {
	for _, e := range kv {
		if e == nil || e.Key != pandasMetadataKey || e.Value == nil {
			continue
		}
		value := *e.Value
		pos := strings.Index(value, indexColumnsKey)
		if pos < 0 {
			continue
		}
		begin := strings.IndexByte(value[pos:], '[')
		if begin < 0 {
			continue
		}
		begin += pos
		end := strings.IndexByte(value[begin:], ']')
		if end < 0 {
			continue
		}
		end += begin
		if end-begin > 4 {
			return value[begin+2 : end-1]
		}
	}
	return ""
}

// dottedPath joins the path of a column chunk the way schema names are flattened.
func dottedPath(path []string) string {
	return strings.Join(path, ".")
}

// buildPlan selects the output columns and creates their descriptors. The value and
// validity buffers of every column are allocated zero-filled on the device.
func (s *session) buildPlan() error {
	meta := s.meta
	if len(meta.RowGroups) == 0 {
		return errorf(EmptyDatasetError, "plan", "file has no row groups")
	}
	if len(meta.RowGroups[0].Columns) == 0 {
		return errorf(EmptyDatasetError, "plan", "first row group has no columns")
	}

	var rows int64
	for i, rg := range meta.RowGroups {
		if rg.NumRows < 0 {
			return errorf(SchemaError, "plan", "row group %d has negative row count %d", i, rg.NumRows)
		}
		if rg.NumRows > math.MaxInt64-rows {
			return errorf(SchemaError, "plan", "row count overflows after row group %d", i)
		}
		rows += rg.NumRows
	}
	if rows != meta.NumRows {
		return errorf(SchemaError, "plan", "file declares %d rows but row groups hold %d", meta.NumRows, rows)
	}
	s.numRows = rows

	s.indexName = indexColumnName(meta.KeyValueMetadata)
	available := make([]string, 0, len(meta.RowGroups[0].Columns))
	for i, cc := range meta.RowGroups[0].Columns {
		if cc == nil || cc.MetaData == nil {
			return errorf(SchemaError, "plan", "column chunk %d of row group 0 has no metadata", i)
		}
		available = append(available, dottedPath(cc.MetaData.PathInSchema))
	}

	selected := available
	if s.opts.columns != nil {
		requested := append(append([]string{}, s.opts.columns...), s.indexName)
		selected = lo.Filter(available, func(name string, _ int) bool {
			return name != "" && lo.Contains(requested, name)
		})
	}
	selected = lo.Uniq(selected)

	level.Debug(s.logger).Log("msg", "selected columns", "available", len(available), "selected", strings.Join(selected, ","), "index", s.indexName)

	s.indexColumn = -1
	for i, name := range selected {
		leaf := s.schema.column(name)
		if leaf == nil {
			return errorf(SchemaError, "plan", "column %q is not part of the schema", name)
		}
		if leaf.maxRep > 0 {
			return errorf(SchemaError, "plan", "column %q is repeated, nested columns are not supported", name)
		}
		if leaf.Type == nil {
			return errorf(SchemaError, "plan", "column %q has no physical type", name)
		}
		dtype, info := mapType(*leaf.Type, leaf.ConvertedType, leaf.LogicalType)
		if dtype == Invalid {
			return errorf(SchemaError, "plan", "column %q of type %s has no output type", name, leaf.Type)
		}

		if rows > int64((math.MaxInt-31)/dtype.Size()) {
			return errorf(SchemaError, "plan", "column %q cannot hold %d rows of %d bytes", name, rows, dtype.Size())
		}

		col := &Column{Name: name, DType: dtype, Info: info, Size: int(rows)}
		var err error
		if col.Data, err = s.allocZeroed(int(rows)*dtype.Size(), "column data", true); err != nil {
			return err
		}
		if col.Valid, err = s.allocZeroed(validMapSize(int(rows)), "column validity", true); err != nil {
			return err
		}
		s.columns = append(s.columns, col)
		s.leaves = append(s.leaves, leaf)
		if name == s.indexName {
			s.indexColumn = i
		}
	}
	return nil
}
