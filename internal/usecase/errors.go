package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorTransient    ErrorCode = "TRANSIENT_UPSTREAM"
	ErrorRemoteJob    ErrorCode = "REMOTE_JOB_FAILED"
	ErrorPollTimeout  ErrorCode = "POLL_TIMEOUT"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// Error is the structured failure outcome of a turn. ConversationID carries
// the best-known conversation handle, which may be empty when the failure
// happened before a conversation was started.
type Error struct {
	Code           ErrorCode
	Reason         string
	ConversationID string
	Err            error
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

// Description is the human-readable failure text shown to chat users.
func (e *Error) Description() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func newTurnError(code ErrorCode, reason, conversationID string, err error) *Error {
	return &Error{Code: code, Reason: reason, ConversationID: conversationID, Err: err}
}
