package pe

import "fmt"

// FormatError reports an input buffer that does not satisfy basic PE
// structure: bad signature, unknown optional-header magic, misaligned
// or overlapping sections, holes between sections, checksum mismatch.
type FormatError struct {
	msg string
}

func (e *FormatError) Error() string { return e.msg }

func formatErrf(format string, args ...interface{}) error {
	return &FormatError{msg: fmt.Sprintf(format, args...)}
}

// UnsupportedError reports a requested mutation the container model
// cannot honor, e.g. a data directory that is not cleanly backed by
// exactly one section.
type UnsupportedError struct {
	msg string
}

func (e *UnsupportedError) Error() string { return e.msg }

func unsupportedErrf(format string, args ...interface{}) error {
	return &UnsupportedError{msg: fmt.Sprintf(format, args...)}
}

// InvariantError reports a mutation that would violate a structural
// guarantee established at parse time, e.g. removing a signature that
// is not positioned at the true end of the file.
type InvariantError struct {
	msg string
}

func (e *InvariantError) Error() string { return e.msg }

func invariantErrf(format string, args ...interface{}) error {
	return &InvariantError{msg: fmt.Sprintf(format, args...)}
}
