package cmds

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/olekukonko/tablewriter"

	"github.com/fraugster/gdfparquet"
)

func parseMemory(in string) (uint64, error) {
	b, err := humanize.ParseBytes(strings.TrimSpace(in))
	if err != nil {
		return 0, fmt.Errorf("invalid device memory %q: %w", in, err)
	}
	if b == 0 {
		return 0, fmt.Errorf("device memory must not be zero")
	}
	return b, nil
}

func formatValue(hc *gdfparquet.HostColumn, row int) string {
	if !hc.IsValid(row) {
		return "null"
	}
	v := reflect.ValueOf(hc.Values).Index(row)
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.String:
		return v.String()
	}
	return fmt.Sprint(v.Interface())
}

// catFile decodes the file and prints the first n rows, all rows when n is negative.
func catFile(ctx context.Context, w io.Writer, s *session, address string, columns []string, n int) error {
	opts := append([]gdfparquet.ReaderOption{}, s.opts...)
	if len(columns) > 0 {
		opts = append(opts, gdfparquet.WithColumns(columns...))
	}
	res, err := gdfparquet.ReadFile(ctx, address, opts...)
	if err != nil {
		return fmt.Errorf("failed to read the parquet file: %w", err)
	}
	defer func() {
		if err := res.Free(s.dev); err != nil {
			log.Printf("Releasing device memory failed: %q", err)
		}
	}()

	cols := make([]*gdfparquet.HostColumn, 0, len(res.Columns))
	header := make([]string, 0, len(res.Columns))
	for i, c := range res.Columns {
		hc, err := c.ToHost(s.dev)
		if err != nil {
			return err
		}
		cols = append(cols, hc)
		name := c.Name
		if i == res.IndexColumn {
			name += " (index)"
		}
		header = append(header, name)
	}

	rows := res.NumRows
	if n >= 0 && n < rows {
		rows = n
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	for r := 0; r < rows; r++ {
		line := make([]string, len(cols))
		for i, hc := range cols {
			line[i] = formatValue(hc, r)
		}
		table.Append(line)
	}
	table.Render()
	return nil
}

func metaFile(ctx context.Context, w io.Writer, address string) error {
	meta, err := readMeta(ctx, address)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "Version:", meta.Version)
	if meta.CreatedBy != nil {
		_, _ = fmt.Fprintln(w, "Created By:", *meta.CreatedBy)
	}
	_, _ = fmt.Fprintln(w, "Num Rows:", meta.NumRows)
	for _, kv := range meta.KeyValueMetadata {
		value := ""
		if kv.Value != nil {
			value = *kv.Value
		}
		_, _ = fmt.Fprintf(w, "Key %s = %s\n", kv.Key, value)
	}

	for i, rg := range meta.RowGroups {
		_, _ = fmt.Fprintln(w, "\t Row group:", i)
		_, _ = fmt.Fprintln(w, "\t\t Row Count:", rg.NumRows)
		_, _ = fmt.Fprintln(w, "\t\t Row size:", humanize.IBytes(uint64(rg.TotalByteSize)))
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Col", "Type", "NumVal", "Codec", "TotalCompressedSize", "TotalUncompressedSize"})
		for _, cc := range rg.Columns {
			if cc.MetaData == nil {
				continue
			}
			md := cc.MetaData
			table.Append([]string{
				strings.Join(md.PathInSchema, "."),
				md.Type.String(),
				strconv.FormatInt(md.NumValues, 10),
				md.Codec.String(),
				humanize.IBytes(uint64(md.TotalCompressedSize)),
				humanize.IBytes(uint64(md.TotalUncompressedSize)),
			})
		}
		table.Render()
	}
	return nil
}

func schemaFile(ctx context.Context, w io.Writer, address string) error {
	meta, err := readMeta(ctx, address)
	if err != nil {
		return err
	}
	cols, err := gdfparquet.SchemaColumns(meta)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Column", "Physical", "Output", "Unit", "R", "D"})
	table.SetAutoFormatHeaders(false)
	for _, c := range cols {
		unit := ""
		if c.Info.TimeUnit != gdfparquet.TimeUnitNone {
			unit = c.Info.TimeUnit.String()
		}
		table.Append([]string{
			c.Name,
			c.Physical.String(),
			c.DType.String(),
			unit,
			strconv.Itoa(c.MaxRepetition),
			strconv.Itoa(c.MaxDefinition),
		})
	}
	table.Render()
	return nil
}

func pagesFile(ctx context.Context, w io.Writer, s *session, address string) error {
	layout, err := gdfparquet.InspectFile(ctx, address, s.opts...)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Chunk", "Column", "RowGroup", "StartRow", "Rows", "Codec", "Size", "Dict", "Data"})
	table.SetAutoFormatHeaders(false)
	for i, c := range layout.Chunks {
		table.Append([]string{
			strconv.Itoa(i),
			layout.Columns[c.Column].Name,
			strconv.Itoa(c.RowGroup),
			strconv.FormatInt(c.StartRow, 10),
			strconv.FormatInt(c.NumRows, 10),
			c.Codec.String(),
			humanize.IBytes(uint64(c.CompressedSize)),
			strconv.Itoa(c.NumDictPages),
			strconv.Itoa(c.NumDataPages),
		})
	}
	table.Render()
	_, _ = fmt.Fprintf(w, "%d chunks, %d pages, %d rows\n", len(layout.Chunks), len(layout.Pages), layout.NumRows)
	return nil
}

func readMeta(ctx context.Context, address string) (*parquet.FileMetaData, error) {
	raw, err := os.ReadFile(address)
	if err != nil {
		return nil, fmt.Errorf("can not open the file: %q", err)
	}
	meta, err := gdfparquet.ReadMetaData(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read the parquet footer: %w", err)
	}
	return meta, nil
}
