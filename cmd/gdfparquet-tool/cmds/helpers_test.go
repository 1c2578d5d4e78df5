package cmds

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraugster/gdfparquet"
	"github.com/fraugster/gdfparquet/internal/pqtest"
)

func TestParseMemory(t *testing.T) {
	data := []struct {
		In  string
		Out uint64
		Err bool
	}{
		{In: "1000", Out: 1000},
		{In: "100KB", Out: 100 * 1000},
		{In: "100KiB", Out: 100 * 1024},
		{In: " 2 MiB ", Out: 2 * 1024 * 1024},
		{In: "1GiB", Out: 1024 * 1024 * 1024},
		{In: "0", Err: true},
		{In: "lots", Err: true},
		{In: "", Err: true},
	}

	for _, d := range data {
		out, err := parseMemory(d.In)
		if d.Err {
			require.Error(t, err, d.In)
			continue
		}
		require.NoError(t, err, d.In)
		require.Equal(t, d.Out, out, d.In)
	}
}

func TestLevelFilter(t *testing.T) {
	for _, l := range []string{"debug", "info", "warn", "error"} {
		opt, err := levelFilter(l)
		require.NoError(t, err)
		require.NotNil(t, opt)
	}
	_, err := levelFilter("verbose")
	require.Error(t, err)
}

func writeFixture(t *testing.T) string {
	name := pqtest.Col(parquet.Type_BYTE_ARRAY, "name")
	name.Optional = true
	name.Encoding = pqtest.Dictionary
	score := pqtest.Col(parquet.Type_DOUBLE, "score")
	score.Codec = parquet.CompressionCodec_SNAPPY

	raw, err := pqtest.New(pqtest.Col(parquet.Type_INT32, "id"), name, score).
		AddRowGroup(
			[]interface{}{int32(1), int32(2), int32(3)},
			[]interface{}{"ann", nil, "bob"},
			[]interface{}{0.5, 1.25, -3.0},
		).
		KeyValue("pandas", `{"index_columns": ["id"]}`).
		Build()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "fixture.parquet")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestCatFile(t *testing.T) {
	path := writeFixture(t)
	s, err := newSession(io.Discard)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, catFile(context.Background(), &buf, s, path, nil, -1))
	out := buf.String()
	assert.Contains(t, out, "id (index)")
	assert.Contains(t, out, "ann")
	assert.Contains(t, out, "null")
	assert.Contains(t, out, "-3")
	assert.Contains(t, out, "1.25")
	assert.Zero(t, s.dev.Live())

	buf.Reset()
	require.NoError(t, catFile(context.Background(), &buf, s, path, []string{"score"}, 1))
	out = buf.String()
	assert.Contains(t, out, "score")
	assert.NotContains(t, out, "name")
	assert.Contains(t, out, "0.5")
	assert.NotContains(t, out, "1.25")

	var metrics bytes.Buffer
	require.NoError(t, s.writeMetrics(&metrics))
	assert.Contains(t, metrics.String(), "gdfparquet_files_read_total 2")

	err = catFile(context.Background(), &buf, s, filepath.Join(t.TempDir(), "missing.parquet"), nil, -1)
	require.Error(t, err)
	assert.True(t, gdfparquet.IsKind(err, gdfparquet.FileError))
}

func TestCatFileKeepsSessionOptions(t *testing.T) {
	path := writeFixture(t)
	s, err := newSession(io.Discard)
	require.NoError(t, err)
	n := len(s.opts)
	s.opts = append(make([]gdfparquet.ReaderOption, 0, n+4), s.opts...)

	var buf bytes.Buffer
	require.NoError(t, catFile(context.Background(), &buf, s, path, []string{"score"}, -1))
	require.Len(t, s.opts, n)
	assert.Nil(t, s.opts[:n+1][n])

	buf.Reset()
	require.NoError(t, catFile(context.Background(), &buf, s, path, nil, -1))
	assert.Contains(t, buf.String(), "ann")
	assert.Zero(t, s.dev.Live())
}

func TestFormatValue(t *testing.T) {
	hc := &gdfparquet.HostColumn{
		Values: []float32{1.5, 0},
		Valid:  []bool{true, false},
	}
	assert.Equal(t, "1.5", formatValue(hc, 0))
	assert.Equal(t, "null", formatValue(hc, 1))

	hc = &gdfparquet.HostColumn{Values: []int8{-4}, Valid: []bool{true}}
	assert.Equal(t, "-4", formatValue(hc, 0))

	hc = &gdfparquet.HostColumn{Values: []string{"x"}, Valid: []bool{true}}
	assert.Equal(t, "x", formatValue(hc, 0))
}

func TestInspectCommands(t *testing.T) {
	path := writeFixture(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, schemaFile(ctx, &buf, path))
	assert.Contains(t, buf.String(), "BYTE_ARRAY")
	assert.Contains(t, buf.String(), "string")

	buf.Reset()
	require.NoError(t, metaFile(ctx, &buf, path))
	assert.Contains(t, buf.String(), "Num Rows: 3")
	assert.Contains(t, buf.String(), "SNAPPY")
	assert.Contains(t, buf.String(), "Key pandas")

	s, err := newSession(io.Discard)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, pagesFile(ctx, &buf, s, path))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "3 chunks, 4 pages, 3 rows", lines[len(lines)-1])
	assert.Zero(t, s.dev.Live())
}
