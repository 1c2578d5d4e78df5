package gdfparquet

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/fraugster/gdfparquet/device"
)

type allocation struct {
	buf  device.Buffer
	what string
	// keep marks buffers that are handed to the caller with the result.
	keep bool
}

// session is the state of one read. Every stage takes the session and adds to it; every
// device allocation goes on its release stack.
type session struct {
	ctx     context.Context
	opts    *readerOptions
	dev     device.Device
	logger  log.Logger
	metrics *Metrics

	raw    []byte
	meta   *parquet.FileMetaData
	schema *fileSchema

	numRows     int64
	indexName   string
	indexColumn int
	columns     []*Column
	leaves      []*leafColumn

	chunks []*ColumnChunkDesc
	pages  []PageInfo

	allocs []allocation
}

func newSession(ctx context.Context, raw []byte, opts *readerOptions) *session {
	return &session{
		ctx:         ctx,
		opts:        opts,
		dev:         opts.dev,
		logger:      opts.logger,
		metrics:     opts.metrics,
		raw:         raw,
		indexColumn: -1,
	}
}

// alloc allocates a device buffer and pushes it on the release stack.
func (s *session) alloc(size int, what string, keep bool) (device.Buffer, error) {
	buf, err := s.dev.Alloc(size)
	if err != nil {
		return device.Buffer{}, newError(AllocError, "alloc", errors.Wrapf(err, "%s of %s", what, humanize.IBytes(uint64(size))))
	}
	if !buf.IsNil() {
		s.allocs = append(s.allocs, allocation{buf: buf, what: what, keep: keep})
	}
	return buf, nil
}

func (s *session) allocZeroed(size int, what string, keep bool) (device.Buffer, error) {
	buf, err := s.alloc(size, what, keep)
	if err != nil {
		return buf, err
	}
	if err := s.dev.Memset(buf.Ptr, 0, buf.Size); err != nil {
		return device.Buffer{}, newError(AllocError, "alloc", errors.Wrapf(err, "clear %s", what))
	}
	return buf, nil
}

// release frees every allocation of the session in reverse order.
func (s *session) release() error {
	var result *multierror.Error
	for i := len(s.allocs) - 1; i >= 0; i-- {
		if err := s.dev.Free(s.allocs[i].buf); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "free %s", s.allocs[i].what))
		}
	}
	s.allocs = nil
	if err := result.ErrorOrNil(); err != nil {
		level.Warn(s.logger).Log("msg", "releasing device memory failed", "err", err)
		return err
	}
	return nil
}

// finish frees the scratch allocations and moves the rest into the result.
func (s *session) finish() (*Result, error) {
	res := &Result{
		Columns:     s.columns,
		NumRows:     int(s.numRows),
		IndexColumn: s.indexColumn,
		dev:         s.dev,
	}
	var scratch []allocation
	for _, a := range s.allocs {
		if a.keep {
			res.buffers = append(res.buffers, a.buf)
		} else {
			scratch = append(scratch, a)
		}
	}
	s.allocs = scratch
	if err := s.release(); err != nil {
		_ = res.Free(s.dev)
		return nil, err
	}
	return res, nil
}

// hasStrings reports whether any selected column holds string descriptors into page data.
func (s *session) hasStrings() bool {
	for _, c := range s.columns {
		if c.DType == String {
			return true
		}
	}
	return false
}

func (s *session) checkCanceled() error {
	return s.ctx.Err()
}
