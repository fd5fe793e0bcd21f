package loader

import "fmt"

// FileNotFoundError indicates the resolved embedding path does not exist.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("embedding file not found: %s", e.Path)
}

// UnsupportedFormatError indicates neither hint, suffix nor sniffing matched
// a known embedding format.
type UnsupportedFormatError struct {
	Path   string
	Detail string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported embedding format for %s: %s", e.Path, e.Detail)
}

// FormatError indicates a structurally malformed embedding file.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed embedding file %s: %s", e.Path, e.Reason)
}

// DimensionMismatchError indicates a record whose vector length deviates
// from the table dimension.
type DimensionMismatchError struct {
	Path     string
	Record   int
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch in %s at record %d: expected %d, got %d",
		e.Path, e.Record, e.Expected, e.Actual)
}

// InvalidWordError indicates a word key with unreadable bytes.
type InvalidWordError struct {
	Path   string
	Record int
	Reason string
}

func (e *InvalidWordError) Error() string {
	return fmt.Sprintf("invalid word in %s at record %d: %s", e.Path, e.Record, e.Reason)
}

// ParseError indicates a record that could not be decoded.
type ParseError struct {
	Path   string
	Record int
	Detail string
	cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s at record %d: %s", e.Path, e.Record, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.cause }
