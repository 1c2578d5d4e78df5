package gdfparquet

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraugster/gdfparquet/internal/pqtest"
)

func smallFile(t *testing.T) []byte {
	raw, err := pqtest.New(pqtest.Col(parquet.Type_INT32, "a")).
		AddRowGroup([]interface{}{int32(1), int32(2)}).
		Build()
	require.NoError(t, err)
	return raw
}

func TestFooterSpan(t *testing.T) {
	raw := smallFile(t)
	footer, err := footerSpan(raw)
	require.NoError(t, err)

	fl := binary.LittleEndian.Uint32(raw[len(raw)-8:])
	assert.Len(t, footer, int(fl))
	assert.Equal(t, raw[len(raw)-8-int(fl):len(raw)-8], footer)

	meta, err := readFileMetaData(context.Background(), footer)
	require.NoError(t, err)
	assert.Equal(t, int64(2), meta.NumRows)
}

func TestFooterSpanErrors(t *testing.T) {
	valid := smallFile(t)
	clone := func(mod func([]byte)) []byte {
		b := append([]byte{}, valid...)
		mod(b)
		return b
	}

	tests := map[string][]byte{
		"empty":           {},
		"too small":       []byte("PAR1PAR1"),
		"bad header":      clone(func(b []byte) { b[0] = 'X' }),
		"bad footer":      clone(func(b []byte) { b[len(b)-1] = 'X' }),
		"zero footer len": clone(func(b []byte) { binary.LittleEndian.PutUint32(b[len(b)-8:], 0) }),
		"negative len":    clone(func(b []byte) { binary.LittleEndian.PutUint32(b[len(b)-8:], 0xffffffff) }),
		"len too large":   clone(func(b []byte) { binary.LittleEndian.PutUint32(b[len(b)-8:], uint32(len(b)-11)) }),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := footerSpan(raw)
			require.Error(t, err)
			assert.Equal(t, FileError, KindOf(err))
		})
	}

	// the largest accepted footer starts right after the header magic
	raw := clone(func(b []byte) { binary.LittleEndian.PutUint32(b[len(b)-8:], uint32(len(b)-12)) })
	footer, err := footerSpan(raw)
	require.NoError(t, err)
	assert.Len(t, footer, len(raw)-12)
}

func TestReadFileMetaDataGarbage(t *testing.T) {
	_, err := readFileMetaData(context.Background(), []byte{0xff, 0xff, 0xff})
	require.Error(t, err)
	assert.Equal(t, SchemaError, KindOf(err))
}

func TestLoadFile(t *testing.T) {
	_, err := loadFile(filepath.Join(t.TempDir(), "missing.parquet"))
	require.Error(t, err)
	assert.True(t, IsKind(err, FileError))

	path := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err = ReadFile(context.Background(), path)
	require.Error(t, err)
	assert.True(t, IsKind(err, FileError))
}
