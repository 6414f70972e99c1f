// Package svcerr provides swindon's error taxonomy: a small set of kinds
// (spec §7) rather than a per-feature code list, since the core has no
// SaaS-style error catalog to grow — a client or backend either got
// malformed input, overloaded a pool, failed auth, or the processor hit an
// invariant it refuses to trust.
package svcerr

import "fmt"

// Kind is one of the error taxonomy buckets from spec §7.
type Kind string

const (
	KindIO         Kind = "io"
	KindDecode     Kind = "decode"
	KindValidation Kind = "validation"
	KindPool       Kind = "pool"
	KindAuth       Kind = "auth"
	KindFatal      Kind = "fatal"
)

// Error is swindon's typed error: a Kind plus a machine-readable Code used
// in client Error() frame rendering. The admin surface does not render it.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"-"` // backend/admin HTTP status, where applicable
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func new(kind Kind, code, message string, status int) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Status: status}
}

// Validation-kind constructors (spec §7 "Validation").
func InvalidMethod(method string) *Error {
	return new(KindValidation, "invalid_method", fmt.Sprintf("invalid method %q", method), 400)
}

func InvalidRequestID() *Error {
	return new(KindValidation, "invalid_request_id", "request_id must be a string, int, or float", 400)
}

func InvalidUserID() *Error {
	return new(KindValidation, "invalid_user_id", "user_id must be a string", 400)
}

func ObjectExpected(field string) *Error {
	return new(KindValidation, "object_expected", fmt.Sprintf("%s must be an object", field), 400)
}

func ArrayExpected(field string) *Error {
	return new(KindValidation, "array_expected", fmt.Sprintf("%s must be an array", field), 400)
}

func InvalidLength(field string, want int) *Error {
	return new(KindValidation, "invalid_length", fmt.Sprintf("%s must have %d elements", field, want), 400)
}

func ValidationError(detail string) *Error {
	return new(KindValidation, "validation_error", detail, 400)
}

// Decode-kind constructors (spec §7 "Decode").
func HTTPError(status int, bodySnippet string) *Error {
	msg := fmt.Sprintf("backend responded %d", status)
	if bodySnippet != "" {
		msg = fmt.Sprintf("%s: %s", msg, bodySnippet)
	}
	return new(KindDecode, "http_error", msg, status)
}

// Pool-kind constructors (spec §7 "Pool", spec §4.4).
func PoolOverflow() *Error {
	return new(KindPool, "pool_overflow", "upstream pool queue is full", 503)
}

func NoPool() *Error {
	return new(KindPool, "no_pool", "upstream has no resolved address", 503)
}

func PoolError(detail string) *Error {
	return new(KindPool, "pool_error", detail, 502)
}

// Auth-kind constructors (spec §7 "Auth", spec §4.5 close-code mapping).
func AuthHTTP(status int) *Error {
	return new(KindAuth, "auth_http", fmt.Sprintf("auth backend responded %d", status), status)
}

func InternalServerError() *Error {
	return new(KindFatal, "internal_server_error", "internal server error", 500)
}

// Fatal-kind constructor (spec §7 "Fatal" — processor invariant violations,
// never surfaced to a client, only logged and the action dropped).
func Fatal(detail string) *Error {
	return new(KindFatal, "fatal", detail, 0)
}
