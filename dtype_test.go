package gdfparquet

import (
	"testing"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/stretchr/testify/assert"
)

func convertedType(c parquet.ConvertedType) *parquet.ConvertedType {
	return &c
}

func TestMapType(t *testing.T) {
	tests := []struct {
		name      string
		physical  parquet.Type
		converted *parquet.ConvertedType
		logical   *parquet.LogicalType
		dtype     DType
		unit      TimeUnit
	}{
		{name: "boolean", physical: parquet.Type_BOOLEAN, dtype: Int8},
		{name: "int32", physical: parquet.Type_INT32, dtype: Int32},
		{name: "int64", physical: parquet.Type_INT64, dtype: Int64},
		{name: "float", physical: parquet.Type_FLOAT, dtype: Float32},
		{name: "double", physical: parquet.Type_DOUBLE, dtype: Float64},
		{name: "byte array", physical: parquet.Type_BYTE_ARRAY, dtype: String},
		{name: "fixed len byte array", physical: parquet.Type_FIXED_LEN_BYTE_ARRAY, dtype: String},
		{name: "int96", physical: parquet.Type_INT96, dtype: Invalid},
		{name: "unknown physical", physical: parquet.Type(42), dtype: Invalid},

		{name: "uint8", physical: parquet.Type_INT32, converted: convertedType(parquet.ConvertedType_UINT_8), dtype: Int8},
		{name: "int8", physical: parquet.Type_INT32, converted: convertedType(parquet.ConvertedType_INT_8), dtype: Int8},
		{name: "uint16", physical: parquet.Type_INT32, converted: convertedType(parquet.ConvertedType_UINT_16), dtype: Int16},
		{name: "int16", physical: parquet.Type_INT32, converted: convertedType(parquet.ConvertedType_INT_16), dtype: Int16},
		{name: "date", physical: parquet.Type_INT32, converted: convertedType(parquet.ConvertedType_DATE), dtype: Date32},
		{name: "timestamp millis", physical: parquet.Type_INT64, converted: convertedType(parquet.ConvertedType_TIMESTAMP_MILLIS), dtype: Date64, unit: TimeUnitMillis},
		{name: "timestamp micros", physical: parquet.Type_INT64, converted: convertedType(parquet.ConvertedType_TIMESTAMP_MICROS), dtype: Date64, unit: TimeUnitMicros},
		{name: "utf8 falls back", physical: parquet.Type_BYTE_ARRAY, converted: convertedType(parquet.ConvertedType_UTF8), dtype: String},
		{name: "int96 stays invalid", physical: parquet.Type_INT96, converted: convertedType(parquet.ConvertedType_UTF8), dtype: Invalid},

		{name: "logical int8", physical: parquet.Type_INT32, logical: &parquet.LogicalType{INTEGER: &parquet.IntType{BitWidth: 8, IsSigned: true}}, dtype: Int8},
		{name: "logical uint16", physical: parquet.Type_INT32, logical: &parquet.LogicalType{INTEGER: &parquet.IntType{BitWidth: 16}}, dtype: Int16},
		{name: "logical int32", physical: parquet.Type_INT32, logical: &parquet.LogicalType{INTEGER: &parquet.IntType{BitWidth: 32, IsSigned: true}}, dtype: Int32},
		{name: "logical date", physical: parquet.Type_INT32, logical: &parquet.LogicalType{DATE: &parquet.DateType{}}, dtype: Date32},
		{
			name:     "logical timestamp millis",
			physical: parquet.Type_INT64,
			logical:  &parquet.LogicalType{TIMESTAMP: &parquet.TimestampType{Unit: &parquet.TimeUnit{MILLIS: &parquet.MilliSeconds{}}}},
			dtype:    Date64, unit: TimeUnitMillis,
		},
		{
			name:     "logical timestamp micros",
			physical: parquet.Type_INT64,
			logical:  &parquet.LogicalType{TIMESTAMP: &parquet.TimestampType{Unit: &parquet.TimeUnit{MICROS: &parquet.MicroSeconds{}}}},
			dtype:    Date64, unit: TimeUnitMicros,
		},
		{
			name:     "logical timestamp nanos",
			physical: parquet.Type_INT64,
			logical:  &parquet.LogicalType{TIMESTAMP: &parquet.TimestampType{Unit: &parquet.TimeUnit{NANOS: &parquet.NanoSeconds{}}}},
			dtype:    Date64, unit: TimeUnitNanos,
		},
		{
			name:      "logical wins over converted",
			physical:  parquet.Type_INT32,
			converted: convertedType(parquet.ConvertedType_INT_16),
			logical:   &parquet.LogicalType{INTEGER: &parquet.IntType{BitWidth: 8, IsSigned: true}},
			dtype:     Int8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dtype, info := mapType(tt.physical, tt.converted, tt.logical)
			assert.Equal(t, tt.dtype, dtype)
			assert.Equal(t, tt.unit, info.TimeUnit)
		})
	}
}

func TestDTypeSize(t *testing.T) {
	sizes := map[DType]int{
		Invalid: 0, Int8: 1, Int16: 2, Int32: 4, Int64: 8, Float32: 4, Float64: 8, Date32: 4, Date64: 8, String: 16,
	}
	for dtype, size := range sizes {
		assert.Equal(t, size, dtype.Size(), dtype.String())
	}
}
