package event

import (
	"errors"

	"github.com/fystack/guardkv/pkg/auth"
	"github.com/fystack/guardkv/pkg/blobstore"
)

const (
	StoreTopic    = "store"
	RetrieveTopic = "retrieve"
	AddUserTopic  = "add_user"

	StoredEventTopic    = "event.stored"
	UserAddedEventTopic = "event.user_added"
)

type ResultType string

const (
	ResultTypeSuccess ResultType = "success"
	ResultTypeError   ResultType = "error"
)

// ErrorCode classifies a rejected request for the caller.
type ErrorCode string

const (
	ErrorCodeUnknown               ErrorCode = "ERROR_UNKNOWN"
	ErrorCodeNotAuthorized         ErrorCode = "ERROR_NOT_AUTHORIZED"
	ErrorCodeNotFound              ErrorCode = "ERROR_NOT_FOUND"
	ErrorCodeMessageFormat         ErrorCode = "ERROR_MESSAGE_FORMAT"
	ErrorCodeSignatureVerification ErrorCode = "ERROR_SIGNATURE_VERIFICATION"
	ErrorCodeNotRunning            ErrorCode = "ERROR_NOT_RUNNING"
	ErrorCodeDuplicateRequest      ErrorCode = "ERROR_DUPLICATE_REQUEST"
	ErrorCodeExpiredRequest        ErrorCode = "ERROR_EXPIRED_REQUEST"
)

var (
	// ErrNotRunning is returned for requests that arrive while the node is not serving.
	ErrNotRunning = errors.New("node is not running")
	// ErrDuplicateRequest rejects a signed request id the node has already seen.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrRequestExpired rejects a signed request issued outside the accepted window.
	ErrRequestExpired = errors.New("request expired")
)

// Result is the reply to every request.
type Result struct {
	RequestID   string     `json:"request_id"`
	ResultType  ResultType `json:"result_type"`
	ErrorCode   ErrorCode  `json:"error_code,omitempty"`
	ErrorReason string     `json:"error_reason,omitempty"`
	Contents    []byte     `json:"contents,omitempty"`
}

func Success(requestID string, contents []byte) Result {
	return Result{RequestID: requestID, ResultType: ResultTypeSuccess, Contents: contents}
}

func Failure(requestID string, code ErrorCode, err error) Result {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return Result{RequestID: requestID, ResultType: ResultTypeError, ErrorCode: code, ErrorReason: reason}
}

// ErrorCodeFromError maps core errors onto wire error codes.
func ErrorCodeFromError(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrNotAuthorized):
		return ErrorCodeNotAuthorized
	case errors.Is(err, blobstore.ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, ErrNotRunning):
		return ErrorCodeNotRunning
	case errors.Is(err, ErrDuplicateRequest):
		return ErrorCodeDuplicateRequest
	case errors.Is(err, ErrRequestExpired):
		return ErrorCodeExpiredRequest
	default:
		return ErrorCodeUnknown
	}
}

// Err turns a failed result back into the matching core error.
func (r Result) Err() error {
	if r.ResultType != ResultTypeError {
		return nil
	}
	var base error
	switch r.ErrorCode {
	case ErrorCodeNotAuthorized:
		base = auth.ErrNotAuthorized
	case ErrorCodeNotFound:
		base = blobstore.ErrNotFound
	case ErrorCodeNotRunning:
		base = ErrNotRunning
	case ErrorCodeDuplicateRequest:
		base = ErrDuplicateRequest
	case ErrorCodeExpiredRequest:
		base = ErrRequestExpired
	default:
		return &RemoteError{Code: r.ErrorCode, Reason: r.ErrorReason}
	}
	return &RemoteError{Code: r.ErrorCode, Reason: r.ErrorReason, base: base}
}

// RemoteError is a rejection reported by a node.
type RemoteError struct {
	Code   ErrorCode
	Reason string
	base   error
}

func (e *RemoteError) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Reason
}

func (e *RemoteError) Unwrap() error {
	return e.base
}

// MutationEvent is published after a successful mutating request.
type MutationEvent struct {
	RequestID string `json:"request_id"`
	Caller    string `json:"caller"`
	Path      string `json:"path,omitempty"`
	Principal string `json:"principal,omitempty"`
	Size      int    `json:"size,omitempty"`
}
