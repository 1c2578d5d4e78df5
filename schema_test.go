package gdfparquet

import (
	"context"
	"testing"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraugster/gdfparquet/internal/pqtest"
)

func TestResolveSchemaLevels(t *testing.T) {
	a := optional(pqtest.Col(parquet.Type_INT32, "outer", "inner", "a"))
	a.GroupOptional = true
	b := pqtest.Col(parquet.Type_BYTE_ARRAY, "outer", "b")
	b.GroupOptional = true
	list := pqtest.Col(parquet.Type_INT64, "list")
	list.Repeated = true

	raw, err := pqtest.New(pqtest.Col(parquet.Type_DOUBLE, "top"), a, b, list).Build()
	require.NoError(t, err)
	meta, err := ReadMetaData(context.Background(), raw)
	require.NoError(t, err)

	cols, err := SchemaColumns(meta)
	require.NoError(t, err)
	require.Len(t, cols, 4)

	want := []SchemaColumn{
		{Name: "top", Physical: parquet.Type_DOUBLE, DType: Float64},
		{Name: "outer.inner.a", Physical: parquet.Type_INT32, DType: Int32, MaxDefinition: 3},
		{Name: "outer.b", Physical: parquet.Type_BYTE_ARRAY, DType: String, MaxDefinition: 1},
		{Name: "list", Physical: parquet.Type_INT64, DType: Int64, MaxDefinition: 1, MaxRepetition: 1},
	}
	assert.Equal(t, want, cols)

	schema, err := resolveSchema(meta)
	require.NoError(t, err)
	require.NotNil(t, schema.column("outer.inner.a"))
	assert.Equal(t, 1, schema.column("outer.inner.a").index)
	assert.Nil(t, schema.column("outer.inner"))
	assert.Nil(t, schema.column("a"))
}

func TestResolveSchemaErrors(t *testing.T) {
	i32 := parquet.Type_INT32
	required := parquet.FieldRepetitionType_REQUIRED
	n := func(v int32) *int32 { return &v }

	tests := map[string][]*parquet.SchemaElement{
		"empty":               nil,
		"root with type":      {{Name: "schema", Type: &i32}},
		"root no children":    {{Name: "schema"}},
		"root zero children":  {{Name: "schema", NumChildren: n(0)}},
		"missing children":    {{Name: "schema", NumChildren: n(2)}, {Name: "a", Type: &i32, RepetitionType: &required}},
		"leaf no repetition":  {{Name: "schema", NumChildren: n(1)}, {Name: "a", Type: &i32}},
		"extra elements":      {{Name: "schema", NumChildren: n(1)}, {Name: "a", Type: &i32, RepetitionType: &required}, {Name: "b", Type: &i32, RepetitionType: &required}},
		"group with no child": {{Name: "schema", NumChildren: n(1)}, {Name: "g", NumChildren: n(0)}},
	}
	for name, elems := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := resolveSchema(&parquet.FileMetaData{Schema: elems})
			require.Error(t, err)
			assert.Equal(t, SchemaError, KindOf(err))
		})
	}
}
