package raster

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrUnsupportedFormat      = errors.New("unsupported format")
	ErrUnsupportedCompression = fmt.Errorf("%w: compression", ErrUnsupportedFormat)
	ErrTruncatedStream        = errors.New("truncated stream")
	ErrUnexpectedEndOfInput   = fmt.Errorf("%w: unexpected end of input", ErrTruncatedStream)
	ErrMalformedChunk         = errors.New("malformed chunk")
	ErrChecksumMismatch       = errors.New("checksum mismatch")
	ErrInvalidFilterType      = errors.New("invalid filter type")
	ErrDecompressionFailure   = errors.New("decompression failure")
	ErrSizeMismatch           = errors.New("size mismatch")
	ErrUnknownFileType        = errors.New("unknown file type")
)

// FormatError reports which kind of failure aborted a conversion and where.
// Offset is -1 when the position is not known.
type FormatError struct {
	Kind   error
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%v at offset %d: %s", e.Kind, e.Offset, e.Msg)
}

func (e *FormatError) Unwrap() error {
	return e.Kind
}

func formatErr(kind error, offset int64, format string, args ...any) error {
	return &FormatError{
		Kind:   kind,
		Offset: offset,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// OffsetOf returns the byte offset carried by err, or -1.
func OffsetOf(err error) int64 {
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe.Offset
	}
	return -1
}
