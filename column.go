package gdfparquet

import (
	"encoding/binary"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/fraugster/gdfparquet/device"
)

const strDescSize = 16

// StrDesc is the value of a string column: the device address and length of the bytes.
// It is stored as two little-endian uint64.
type StrDesc struct {
	Ptr device.Ptr
	Len int
}

func putStrDesc(dst []byte, d StrDesc) {
	binary.LittleEndian.PutUint64(dst, uint64(d.Ptr))
	binary.LittleEndian.PutUint64(dst[8:], uint64(d.Len))
}

func getStrDesc(src []byte) StrDesc {
	return StrDesc{
		Ptr: device.Ptr(binary.LittleEndian.Uint64(src)),
		Len: int(binary.LittleEndian.Uint64(src[8:])),
	}
}

// validMapSize is the byte size of a validity bitmask for n rows, rounded up to whole
// 32-bit words.
func validMapSize(n int) int {
	return (n + 31) / 32 * 4
}

// Column is one decoded output column.
type Column struct {
	Name  string
	DType DType
	Info  DTypeInfo
	// Size is the number of elements.
	Size      int
	NullCount int
	// Data holds Size elements of DType.Size() bytes each.
	Data device.Buffer
	// Valid holds one bit per row, bit r%32 of 32-bit word r/32.
	Valid device.Buffer
}

// HostColumn is a copy of a column in host memory.
type HostColumn struct {
	Name  string
	DType DType
	Info  DTypeInfo
	// Values is a []int8, []int16, []int32, []int64, []float32, []float64 or []string,
	// depending on DType. Date32 uses []int32 and Date64 []int64. Null rows hold zero values.
	Values    interface{}
	Valid     []bool
	NullCount int
}

// IsValid reports whether row i is not null.
func (c *HostColumn) IsValid(i int) bool {
	return c.Valid[i]
}

// ToHost copies the column from the device.
func (c *Column) ToHost(dev device.Device) (*HostColumn, error) {
	data := make([]byte, c.Data.Size)
	if err := dev.CopyDeviceToHost(data, c.Data.Ptr); err != nil {
		return nil, errors.Wrapf(err, "copy values of %s", c.Name)
	}
	bitmap := make([]byte, c.Valid.Size)
	if err := dev.CopyDeviceToHost(bitmap, c.Valid.Ptr); err != nil {
		return nil, errors.Wrapf(err, "copy validity of %s", c.Name)
	}

	hc := &HostColumn{Name: c.Name, DType: c.DType, Info: c.Info, NullCount: c.NullCount}
	hc.Valid = make([]bool, c.Size)
	for i := range hc.Valid {
		hc.Valid[i] = device.LoadUint32(bitmap, i/32)&(1<<uint(i%32)) != 0
	}

	n := c.Size
	switch c.DType {
	case Int8:
		v := make([]int8, n)
		for i := range v {
			v[i] = int8(data[i])
		}
		hc.Values = v
	case Int16:
		v := make([]int16, n)
		for i := range v {
			v[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
		}
		hc.Values = v
	case Int32, Date32:
		v := make([]int32, n)
		for i := range v {
			v[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
		}
		hc.Values = v
	case Int64, Date64:
		v := make([]int64, n)
		for i := range v {
			v[i] = int64(binary.LittleEndian.Uint64(data[8*i:]))
		}
		hc.Values = v
	case Float32:
		v := make([]float32, n)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		hc.Values = v
	case Float64:
		v := make([]float64, n)
		for i := range v {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
		hc.Values = v
	case String:
		v := make([]string, n)
		for i := range v {
			d := getStrDesc(data[strDescSize*i:])
			if d.Len == 0 {
				continue
			}
			b := make([]byte, d.Len)
			if err := dev.CopyDeviceToHost(b, d.Ptr); err != nil {
				return nil, errors.Wrapf(err, "copy string %d of %s", i, c.Name)
			}
			v[i] = string(b)
		}
		hc.Values = v
	default:
		return nil, errors.Errorf("column %s has invalid type", c.Name)
	}
	return hc, nil
}

// Result is the output of a successful read. The caller owns all device memory it refers to
// and must release it with Free.
type Result struct {
	Columns []*Column
	NumRows int
	// IndexColumn is the position of the pandas index column in Columns, or -1.
	IndexColumn int

	// buffers are the allocations the columns refer to, including the page data string
	// descriptors point into.
	buffers []device.Buffer
	dev     device.Device
}

// Device returns the device the columns live on.
func (r *Result) Device() device.Device {
	return r.dev
}

// NumColumns returns the number of decoded columns.
func (r *Result) NumColumns() int {
	return len(r.Columns)
}

// Column returns the column with the given name or nil.
func (r *Result) Column(name string) *Column {
	for _, c := range r.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Free releases every device buffer of the result. The result must not be used afterwards.
func (r *Result) Free(dev device.Device) error {
	var result *multierror.Error
	for i := len(r.buffers) - 1; i >= 0; i-- {
		if err := dev.Free(r.buffers[i]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	r.buffers = nil
	r.Columns = nil
	return result.ErrorOrNil()
}
