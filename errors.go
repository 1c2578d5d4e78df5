package gdfparquet

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fraugster/gdfparquet/codec"
)

// ErrorKind classifies the failures of a read.
type ErrorKind int

const (
	// KindUnknown is reported for errors that did not originate in this package.
	KindUnknown ErrorKind = iota
	// FileError covers open, read, magic number and size validation failures.
	FileError
	// SchemaError covers unmapped column types and inconsistent metadata.
	SchemaError
	// EmptyDatasetError is returned for files without row groups or without columns.
	EmptyDatasetError
	// AllocError is returned when the device runs out of memory.
	AllocError
	// DecodeConsistencyError is returned when page headers disagree between passes or
	// reference data outside of their chunk.
	DecodeConsistencyError
	// DecompressionError is returned when the decompression backend reports a failed page.
	DecompressionError
	// UnsupportedError is returned for codecs and encodings the decoder cannot handle.
	UnsupportedError
)

func (k ErrorKind) String() string {
	switch k {
	case FileError:
		return "file error"
	case SchemaError:
		return "schema error"
	case EmptyDatasetError:
		return "empty dataset"
	case AllocError:
		return "allocation error"
	case DecodeConsistencyError:
		return "decode consistency error"
	case DecompressionError:
		return "decompression error"
	case UnsupportedError:
		return "unsupported"
	}
	return "unknown error"
}

// label is the metrics label of the kind.
func (k ErrorKind) label() string {
	switch k {
	case FileError:
		return "file"
	case SchemaError:
		return "schema"
	case EmptyDatasetError:
		return "empty"
	case AllocError:
		return "alloc"
	case DecodeConsistencyError:
		return "consistency"
	case DecompressionError:
		return "decompression"
	case UnsupportedError:
		return "unsupported"
	}
	return "unknown"
}

// ErrUnsupportedCodec is wrapped by errors about columns compressed with a codec the
// decompression backend does not support.
var ErrUnsupportedCodec = codec.ErrUnsupported

// Error is the error type returned by the read functions.
type Error struct {
	Kind ErrorKind
	// Op is the pipeline stage that failed.
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause returns the underlying error for github.com/pkg/errors.
func (e *Error) Cause() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
