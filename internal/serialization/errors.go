package serialization

import (
	"errors"
	"fmt"
)

// Errors returned while reading a checkpoint.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("not a born checkpoint")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrTensorNotFound     = errors.New("tensor not found")
)

// HeaderError reports a tensor table entry that does not describe the data section.
// Check names the rule that failed: "name", "duplicate", "dtype", "shape", "size",
// "count", "range", "overlap" or "data".
type HeaderError struct {
	Check  string
	Tensor string
	Other  string // second tensor of an overlap
	Detail string
}

func (e *HeaderError) Error() string {
	switch {
	case e.Other != "":
		return fmt.Sprintf("checkpoint %s: %q and %q: %s", e.Check, e.Tensor, e.Other, e.Detail)
	case e.Tensor != "":
		return fmt.Sprintf("checkpoint %s: %q: %s", e.Check, e.Tensor, e.Detail)
	default:
		return fmt.Sprintf("checkpoint %s: %s", e.Check, e.Detail)
	}
}
