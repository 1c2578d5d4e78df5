package gdfparquet

import (
	"github.com/dustin/go-humanize"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/fraugster/gdfparquet/codec"
	"github.com/fraugster/gdfparquet/device"
)

// decompressBatch is the set of pages of one codec.
type decompressBatch struct {
	codec parquet.CompressionCodec
	pages []int
	size  int
}

// needsDecompression reports whether the page body has to go through the backend. V2
// pages can opt out in their header.
func needsDecompression(p *PageInfo) bool {
	return !p.has(PageV2) || p.IsCompressed
}

// markUnsupported fails on chunks without a decompression strategy, or flags their pages
// as skipped when that is allowed.
func (s *session) markUnsupported() error {
	for i, c := range s.chunks {
		if _, ok := codec.Resolve(c.Codec).(codec.Unsupported); !ok {
			continue
		}
		name := s.columns[c.Column].Name
		if !s.opts.skipUnsupported {
			return newError(UnsupportedError, "decompress",
				errors.Wrapf(ErrUnsupportedCodec, "column %s in row group %d uses codec %s", name, c.RowGroup, codec.Name(c.Codec)))
		}
		level.Warn(s.logger).Log("msg", "skipping column chunk with unsupported codec", "chunk", i, "column", name, "codec", codec.Name(c.Codec))
		for p := c.PageOffset; p < c.PageOffset+c.MaxNumPages; p++ {
			s.pages[p].Flags |= PageSkipped
		}
	}
	return nil
}

// decompressPages runs every compressed page through the decompression backend, one batch
// per codec, and points the pages at their decompressed bytes.
func (s *session) decompressPages() error {
	if err := s.markUnsupported(); err != nil {
		return err
	}

	batches := make([]*decompressBatch, 0, len(codec.Priority))
	total := 0
	for _, cd := range codec.Priority {
		b := &decompressBatch{codec: cd}
		for i := range s.pages {
			p := &s.pages[i]
			if s.chunks[p.ChunkIdx].Codec != cd || p.has(PageSkipped) || !needsDecompression(p) {
				continue
			}
			b.pages = append(b.pages, i)
			b.size += p.UncompressedPageSize
		}
		if len(b.pages) > 0 {
			batches = append(batches, b)
			total += b.size
		}
	}
	if total == 0 {
		return nil
	}

	level.Debug(s.logger).Log("msg", "decompressing pages", "batches", len(batches), "size", humanize.IBytes(uint64(total)))
	out, err := s.alloc(total, "decompressed pages", s.hasStrings())
	if err != nil {
		return err
	}

	offset := 0
	for _, b := range batches {
		in := make([]codec.Input, len(b.pages))
		for j, idx := range b.pages {
			p := &s.pages[idx]
			dst := out.At(offset)
			offset += p.UncompressedPageSize

			levels := levelBytes(p)
			if levels > 0 {
				if levels > p.UncompressedPageSize {
					return errorf(DecodeConsistencyError, "decompress", "page %d has %d level bytes but uncompressed size %d", idx, levels, p.UncompressedPageSize)
				}
				if err := copyDevice(s.dev, dst, p.PageData, levels); err != nil {
					return newError(DecodeConsistencyError, "decompress", err)
				}
			}
			in[j] = codec.Input{
				Src:     p.PageData + device.Ptr(levels),
				SrcSize: p.CompressedPageSize - levels,
				Dst:     dst + device.Ptr(levels),
				DstSize: p.UncompressedPageSize - levels,
			}
		}

		status, err := s.opts.decompressor.Decompress(s.ctx, s.dev, b.codec, in)
		if err != nil {
			if errors.Is(err, codec.ErrUnsupported) {
				return newError(UnsupportedError, "decompress", err)
			}
			return newError(DecompressionError, "decompress", err)
		}
		if len(status) != len(in) {
			return errorf(DecompressionError, "decompress", "%s batch returned %d statuses for %d pages", codec.Name(b.codec), len(status), len(in))
		}

		written := 0
		for j, idx := range b.pages {
			p := &s.pages[idx]
			st := status[j]
			written += st.BytesWritten
			if st.Code != codec.StatusOK || st.BytesWritten != in[j].DstSize {
				if !s.opts.lenient {
					return errorf(DecompressionError, "decompress", "%s page %d of column %s: status %s, wrote %d of %d bytes: %v",
						codec.Name(b.codec), idx, s.columns[s.chunks[p.ChunkIdx].Column].Name, st.Code, st.BytesWritten, in[j].DstSize, st.Err)
				}
				level.Warn(s.logger).Log("msg", "page failed to decompress, its rows stay null", "codec", codec.Name(b.codec),
					"page", idx, "column", s.columns[s.chunks[p.ChunkIdx].Column].Name, "status", st.Code, "written", st.BytesWritten,
					"expected", in[j].DstSize, "err", st.Err)
				p.Flags |= PageCorrupt
			}
			p.PageData = in[j].Dst - device.Ptr(levelBytes(p))
			p.DataLen = p.UncompressedPageSize
		}
		s.metrics.decompressed(codec.Name(b.codec), written)
	}
	return nil
}

func levelBytes(p *PageInfo) int {
	if p.has(PageV2) {
		return p.DefLevelsLen + p.RepLevelsLen
	}
	return 0
}

// copyDevice copies n bytes between two device addresses.
func copyDevice(dev device.Device, dst, src device.Ptr, n int) error {
	if n == 0 {
		return nil
	}
	d, err := dev.View(dst, n)
	if err != nil {
		return err
	}
	sv, err := dev.View(src, n)
	if err != nil {
		return err
	}
	copy(d, sv)
	return nil
}
