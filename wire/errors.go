package wire

import "fmt"

type malformedError struct {
	reason string
}

func (e *malformedError) Error() string { return fmt.Sprintf("malformed wire buffer: %s", e.reason) }

func errShortBuffer(where string) error {
	return &malformedError{reason: fmt.Sprintf("buffer too short at %s", where)}
}

func errSizeMismatch(want, got uint64) error {
	return &malformedError{reason: fmt.Sprintf("total_size=%d but buffer is %d bytes", want, got)}
}
