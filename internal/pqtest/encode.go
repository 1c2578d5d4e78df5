package pqtest

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/pkg/errors"
)

// appendBitPacked appends values as one bit-packed run of the hybrid encoding, padding the
// last group of 8 with zeros.
func appendBitPacked(out []byte, values []uint32, width int) []byte {
	if len(values) == 0 || width == 0 {
		return out
	}
	groups := (len(values) + 7) / 8
	out = binary.AppendUvarint(out, uint64(groups<<1|1))
	return append(out, packBits(values, groups*8, width)...)
}

// packBits packs count values of width bits, LSB first.
func packBits(values []uint32, count, width int) []byte {
	buf := make([]byte, (count*width+7)/8)
	for i := 0; i < count && i < len(values); i++ {
		v := uint64(values[i])
		for b := 0; b < width; b++ {
			if v&(1<<uint(b)) != 0 {
				pos := i*width + b
				buf[pos/8] |= 1 << uint(pos%8)
			}
		}
	}
	return buf
}

func appendRLERun(out []byte, value uint32, count, width int) []byte {
	out = binary.AppendUvarint(out, uint64(count<<1))
	for i := 0; i < (width+7)/8; i++ {
		out = append(out, byte(value>>(8*uint(i))))
	}
	return out
}

// EncodeHybrid encodes values with the RLE/bit-packed hybrid encoding, using RLE runs for
// repeats of at least 8 values and bit-packed runs otherwise.
func EncodeHybrid(values []uint32, width int) []byte {
	var (
		out     []byte
		pending []uint32
	)
	if width == 0 {
		return nil
	}
	for i := 0; i < len(values); {
		j := i
		for j < len(values) && values[j] == values[i] {
			j++
		}
		if rem := len(pending) % 8; rem != 0 {
			fill := 8 - rem
			if fill > j-i {
				fill = j - i
			}
			pending = append(pending, values[i:i+fill]...)
			i += fill
		}
		if j-i >= 8 && len(pending)%8 == 0 {
			out = appendBitPacked(out, pending, width)
			pending = nil
			out = appendRLERun(out, values[i], j-i, width)
		} else {
			pending = append(pending, values[i:j]...)
		}
		i = j
	}
	return appendBitPacked(out, pending, width)
}

func withLengthPrefix(data []byte) []byte {
	out := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(out, uint32(len(data)))
	return append(out, data...)
}

func plainValue(out []byte, typ parquet.Type, v interface{}) ([]byte, error) {
	switch typ {
	case parquet.Type_INT32:
		x, ok := v.(int32)
		if !ok {
			return nil, errors.Errorf("pqtest: %T is not int32", v)
		}
		return binary.LittleEndian.AppendUint32(out, uint32(x)), nil
	case parquet.Type_INT64:
		x, ok := v.(int64)
		if !ok {
			return nil, errors.Errorf("pqtest: %T is not int64", v)
		}
		return binary.LittleEndian.AppendUint64(out, uint64(x)), nil
	case parquet.Type_FLOAT:
		x, ok := v.(float32)
		if !ok {
			return nil, errors.Errorf("pqtest: %T is not float32", v)
		}
		return binary.LittleEndian.AppendUint32(out, math.Float32bits(x)), nil
	case parquet.Type_DOUBLE:
		x, ok := v.(float64)
		if !ok {
			return nil, errors.Errorf("pqtest: %T is not float64", v)
		}
		return binary.LittleEndian.AppendUint64(out, math.Float64bits(x)), nil
	case parquet.Type_BYTE_ARRAY:
		b := toBytes(v)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(b)))
		return append(out, b...), nil
	case parquet.Type_FIXED_LEN_BYTE_ARRAY:
		return append(out, toBytes(v)...), nil
	case parquet.Type_INT96:
		return append(out, toBytes(v)...), nil
	}
	return nil, errors.Errorf("pqtest: no plain encoding for %s", typ)
}

func toBytes(v interface{}) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	}
	return nil
}

func encodePlain(typ parquet.Type, values []interface{}) ([]byte, error) {
	if typ == parquet.Type_BOOLEAN {
		bools := make([]uint32, len(values))
		for i, v := range values {
			if b, _ := v.(bool); b {
				bools[i] = 1
			}
		}
		return packBits(bools, len(bools), 1), nil
	}

	var (
		out []byte
		err error
	)
	for _, v := range values {
		if out, err = plainValue(out, typ, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeBooleanRLE(values []interface{}) []byte {
	bools := make([]uint32, len(values))
	for i, v := range values {
		if b, _ := v.(bool); b {
			bools[i] = 1
		}
	}
	return withLengthPrefix(EncodeHybrid(bools, 1))
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// EncodeDeltaBinaryPacked writes values with DELTA_BINARY_PACKED, 128 values per block and
// 4 mini blocks per block. is32 selects 32-bit wrap-around arithmetic.
func EncodeDeltaBinaryPacked(values []int64, is32 bool) []byte {
	const (
		blockSize      = 128
		miniBlocks     = 4
		miniBlockCount = blockSize / miniBlocks
	)
	var out []byte
	out = binary.AppendUvarint(out, blockSize)
	out = binary.AppendUvarint(out, miniBlocks)
	out = binary.AppendUvarint(out, uint64(len(values)))
	if len(values) == 0 {
		return binary.AppendUvarint(out, 0)
	}
	out = binary.AppendUvarint(out, zigzag(values[0]))

	deltas := make([]int64, 0, len(values))
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if is32 {
			d = int64(int32(values[i]) - int32(values[i-1]))
		}
		deltas = append(deltas, d)
	}

	for start := 0; start < len(deltas); start += blockSize {
		end := start + blockSize
		if end > len(deltas) {
			end = len(deltas)
		}
		block := deltas[start:end]
		minDelta := block[0]
		for _, d := range block {
			if d < minDelta {
				minDelta = d
			}
		}
		out = binary.AppendUvarint(out, zigzag(minDelta))

		widths := make([]byte, miniBlocks)
		packed := make([][]uint64, 0, miniBlocks)
		for m := 0; m < miniBlocks; m++ {
			lo := m * miniBlockCount
			if lo >= len(block) {
				break
			}
			hi := lo + miniBlockCount
			if hi > len(block) {
				hi = len(block)
			}
			vals := make([]uint64, miniBlockCount)
			var max uint64
			for i, d := range block[lo:hi] {
				u := uint64(d - minDelta)
				if is32 {
					u = uint64(uint32(int32(d) - int32(minDelta)))
				}
				vals[i] = u
				if u > max {
					max = u
				}
			}
			widths[m] = byte(bits.Len64(max))
			packed = append(packed, vals)
		}
		out = append(out, widths...)
		for m, vals := range packed {
			out = append(out, packBits64(vals, int(widths[m]))...)
		}
	}
	return out
}

func packBits64(values []uint64, width int) []byte {
	buf := make([]byte, (len(values)*width+7)/8)
	for i, v := range values {
		for b := 0; b < width; b++ {
			if v&(1<<uint(b)) != 0 {
				pos := i*width + b
				buf[pos/8] |= 1 << uint(pos%8)
			}
		}
	}
	return buf
}

func encodeDelta(typ parquet.Type, values []interface{}) ([]byte, error) {
	switch typ {
	case parquet.Type_INT32:
		ints := make([]int64, len(values))
		for i, v := range values {
			ints[i] = int64(v.(int32))
		}
		return EncodeDeltaBinaryPacked(ints, true), nil
	case parquet.Type_INT64:
		ints := make([]int64, len(values))
		for i, v := range values {
			ints[i] = v.(int64)
		}
		return EncodeDeltaBinaryPacked(ints, false), nil
	case parquet.Type_BYTE_ARRAY:
		lens := make([]int64, len(values))
		var data []byte
		for i, v := range values {
			b := toBytes(v)
			lens[i] = int64(len(b))
			data = append(data, b...)
		}
		return append(EncodeDeltaBinaryPacked(lens, true), data...), nil
	}
	return nil, errors.Errorf("pqtest: no delta encoding for %s", typ)
}

// EncodeDeltaByteArray writes values with DELTA_BYTE_ARRAY: the length of the prefix each
// value shares with its predecessor, then the remaining suffixes as DELTA_LENGTH_BYTE_ARRAY.
func EncodeDeltaByteArray(values []interface{}) []byte {
	prefixes := make([]int64, len(values))
	suffixes := make([]int64, len(values))
	var data, prev []byte
	for i, v := range values {
		b := toBytes(v)
		n := 0
		for n < len(b) && n < len(prev) && b[n] == prev[n] {
			n++
		}
		prefixes[i] = int64(n)
		suffixes[i] = int64(len(b) - n)
		data = append(data, b[n:]...)
		prev = b
	}
	out := EncodeDeltaBinaryPacked(prefixes, true)
	out = append(out, EncodeDeltaBinaryPacked(suffixes, true)...)
	return append(out, data...)
}

func encodeByteStreamSplit(typ parquet.Type, values []interface{}) ([]byte, error) {
	plain, err := encodePlain(typ, values)
	if err != nil {
		return nil, err
	}
	width := len(plain) / max(len(values), 1)
	out := make([]byte, len(plain))
	for i := 0; i < len(values); i++ {
		for k := 0; k < width; k++ {
			out[k*len(values)+i] = plain[i*width+k]
		}
	}
	return out, nil
}
