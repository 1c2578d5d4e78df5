package gdfparquet

// unpackBits returns the i-th value of width bits from a little-endian bit-packed run.
// The caller guarantees buf holds at least (i+1)*width bits.
func unpackBits(buf []byte, i, width int) uint64 {
	bit := i * width
	var v uint64
	for b := 0; b < width; {
		pos := bit + b
		shift := uint(pos % 8)
		take := 8 - int(shift)
		if take > width-b {
			take = width - b
		}
		v |= uint64((buf[pos/8]>>shift)&byte(1<<uint(take)-1)) << uint(b)
		b += take
	}
	return v
}

// unpack8 unpacks one group of 8 values of bitWidth bits. buf must hold bitWidth bytes.
func unpack8(buf []byte, bitWidth int) [8]uint32 {
	var out [8]uint32
	if bitWidth == 0 {
		return out
	}
	for i := range out {
		out[i] = uint32(unpackBits(buf, i, bitWidth))
	}
	return out
}
