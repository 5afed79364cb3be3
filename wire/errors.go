package wire

import "fmt"

// ErrorCode enumerates the codec failure modes named in spec §4.1.
// Mirrors the teacher's ErrorCode-tagged-struct pattern
// (consensus/errors.go) rather than sentinel errors, so callers can
// carry structured detail without type-asserting.
type ErrorCode string

const (
	ErrInvalidHeader       ErrorCode = "INVALID_HEADER"
	ErrInvalidMessage      ErrorCode = "INVALID_MESSAGE"
	ErrInsufficientWork    ErrorCode = "INSUFFICIENT_WORK"
	ErrDuplicatePublish    ErrorCode = "DUPLICATE_PUBLISH"
	ErrDuplicateConfirmAck ErrorCode = "DUPLICATE_CONFIRM_ACK"
	ErrOversized           ErrorCode = "OVERSIZED"
)

type CodecError struct {
	Code ErrorCode
	Msg  string
}

func (e *CodecError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func codecErr(code ErrorCode, format string, args ...any) error {
	return &CodecError{Code: code, Msg: fmt.Sprintf(format, args...)}
}
