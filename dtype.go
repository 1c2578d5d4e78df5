package gdfparquet

import (
	"github.com/fraugster/parquet-go/parquet"
)

// DType is the logical type of an output column.
type DType int

const (
	// Invalid is the result of type mapping for columns the decoder cannot represent.
	Invalid DType = iota
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	// Date32 holds days since the epoch as int32.
	Date32
	// Date64 holds a timestamp as int64 in the unit given by DTypeInfo.
	Date64
	// String values are StrDesc descriptors pointing into device memory.
	String
)

func (t DType) String() string {
	switch t {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Date32:
		return "date32"
	case Date64:
		return "date64"
	case String:
		return "string"
	}
	return "invalid"
}

// Size returns the width of one element in the value buffer.
func (t DType) Size() int {
	switch t {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32, Date32:
		return 4
	case Int64, Float64, Date64:
		return 8
	case String:
		return strDescSize
	}
	return 0
}

// TimeUnit is the unit of a Date64 column.
type TimeUnit int

const (
	TimeUnitNone TimeUnit = iota
	TimeUnitSeconds
	TimeUnitMillis
	TimeUnitMicros
	TimeUnitNanos
)

func (u TimeUnit) String() string {
	switch u {
	case TimeUnitSeconds:
		return "s"
	case TimeUnitMillis:
		return "ms"
	case TimeUnitMicros:
		return "us"
	case TimeUnitNanos:
		return "ns"
	}
	return "none"
}

// DTypeInfo is the auxiliary type information of an output column.
type DTypeInfo struct {
	TimeUnit TimeUnit
}

// mapType converts the type of a schema leaf to an output type. The logical type wins over
// the converted type, which wins over the physical type.
func mapType(physical parquet.Type, converted *parquet.ConvertedType, logical *parquet.LogicalType) (DType, DTypeInfo) {
	if logical != nil {
		switch {
		case logical.INTEGER != nil:
			switch logical.INTEGER.BitWidth {
			case 8:
				return Int8, DTypeInfo{}
			case 16:
				return Int16, DTypeInfo{}
			}
		case logical.DATE != nil:
			return Date32, DTypeInfo{}
		case logical.TIMESTAMP != nil && logical.TIMESTAMP.Unit != nil:
			switch unit := logical.TIMESTAMP.Unit; {
			case unit.MILLIS != nil:
				return Date64, DTypeInfo{TimeUnit: TimeUnitMillis}
			case unit.MICROS != nil:
				return Date64, DTypeInfo{TimeUnit: TimeUnitMicros}
			case unit.NANOS != nil:
				return Date64, DTypeInfo{TimeUnit: TimeUnitNanos}
			}
		}
	}

	if converted != nil {
		switch *converted {
		case parquet.ConvertedType_UINT_8, parquet.ConvertedType_INT_8:
			return Int8, DTypeInfo{}
		case parquet.ConvertedType_UINT_16, parquet.ConvertedType_INT_16:
			return Int16, DTypeInfo{}
		case parquet.ConvertedType_DATE:
			return Date32, DTypeInfo{}
		case parquet.ConvertedType_TIMESTAMP_MILLIS:
			return Date64, DTypeInfo{TimeUnit: TimeUnitMillis}
		case parquet.ConvertedType_TIMESTAMP_MICROS:
			return Date64, DTypeInfo{TimeUnit: TimeUnitMicros}
		}
	}

	switch physical {
	case parquet.Type_BOOLEAN:
		return Int8, DTypeInfo{}
	case parquet.Type_INT32:
		return Int32, DTypeInfo{}
	case parquet.Type_INT64:
		return Int64, DTypeInfo{}
	case parquet.Type_FLOAT:
		return Float32, DTypeInfo{}
	case parquet.Type_DOUBLE:
		return Float64, DTypeInfo{}
	case parquet.Type_BYTE_ARRAY, parquet.Type_FIXED_LEN_BYTE_ARRAY:
		return String, DTypeInfo{}
	}
	return Invalid, DTypeInfo{}
}
