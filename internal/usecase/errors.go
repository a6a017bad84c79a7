package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorRateLimited  ErrorCode = "RATE_LIMITED"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// ReplyKind tells a real answer apart from the fallback texts that are
// returned through the same channel.
type ReplyKind string

const (
	ReplyOK          ReplyKind = "ok"
	ReplyDegraded    ReplyKind = "degraded"
	ReplyRateLimited ReplyKind = "rate_limited"
)

// Reply is the outcome of one chat cycle. Text is always what the user sees;
// Cause is set for every kind other than ReplyOK.
type Reply struct {
	Text  string
	Kind  ReplyKind
	Cause *Error
}

func (r Reply) OK() bool {
	return r.Kind == ReplyOK
}
