// Package mediaerr defines the error taxonomy of the media pipeline.
//
// Every per-file failure is reported as an *Error carrying one of four kinds:
// decode (unreadable or corrupt source), encode (external encoder failed),
// io (filesystem read, write or delete failed) and probe (dimension extraction
// failed, always recovered with fallback dimensions).
package mediaerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindDecode marks an unreadable or corrupt source.
	KindDecode Kind = iota + 1
	// KindEncode marks an encoder (or external encoding process) failure.
	KindEncode
	// KindIO marks a filesystem failure.
	KindIO
	// KindProbe marks a failed dimension probe.
	KindProbe
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	case KindIO:
		return "io"
	case KindProbe:
		return "probe"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a per-file pipeline failure.
type Error struct {
	Kind Kind
	Op   string // e.g. "convert-heic", "compress", "write-thumbnail"
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s error", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s error: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Decode returns a KindDecode error.
func Decode(op, path string, err error) error {
	return &Error{Kind: KindDecode, Op: op, Path: path, Err: err}
}

// Encode returns a KindEncode error.
func Encode(op, path string, err error) error {
	return &Error{Kind: KindEncode, Op: op, Path: path, Err: err}
}

// IO returns a KindIO error.
func IO(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Probe returns a KindProbe error.
func Probe(op, path string, err error) error {
	return &Error{Kind: KindProbe, Op: op, Path: path, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsDecode reports whether err is a decode failure.
func IsDecode(err error) bool { return KindOf(err) == KindDecode }

// IsEncode reports whether err is an encode failure.
func IsEncode(err error) bool { return KindOf(err) == KindEncode }

// IsIO reports whether err is a filesystem failure.
func IsIO(err error) bool { return KindOf(err) == KindIO }

// IsProbe reports whether err is a probe failure.
func IsProbe(err error) bool { return KindOf(err) == KindProbe }
