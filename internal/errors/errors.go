package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is reported in the gRPC ErrorInfo detail.
const Domain = "quizgrade"

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeInternal           = Code(codes.Internal)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeAborted:            http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
}

// Error is the structured error returned by every service. Reason names the
// rule that rejected the request, Details carries the values needed to
// explain it (e.g. the session close time).
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches errors by code and reason, so callers can compare against a
// template built with New.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Code == t.Code && (t.Reason == "" || e.Reason == t.Reason)
}

func (e *Error) GRPCStatus() *status.Status {
	st := status.New(codes.Code(e.Code), e.Message)
	if e.Reason == "" {
		return st
	}

	md := make(map[string]string, len(e.Details))
	for k, v := range e.Details {
		md[k] = fmt.Sprint(v)
	}

	withDetails, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   e.Reason,
		Domain:   Domain,
		Metadata: md,
	})
	if err != nil {
		return st
	}

	return withDetails
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Retryable reports whether the whole operation may be safely retried.
func (e *Error) Retryable() bool {
	return e.Code == CodeAborted
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// CodeOf returns the code of err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	return Convert(err).Code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(reason string) Option {
	return optionFunc(func(e *Error) {
		e.Reason = reason
	})
}

func WithDetail(key string, value any) Option {
	return optionFunc(func(e *Error) {
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		e.Details[key] = value
	})
}
