// Package domainerrors is the caller-facing error vocabulary.
//
// Every error leaving a public service operation is an *Error carrying exactly one
// Code plus structured metadata. Store and driver errors never cross that boundary
// unclassified; see the user service's normalize pipeline.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Code is a stable error kind.
type Code string

const (
	CodeInvalidIdentity   Code = "INVALID_IDENTITY"
	CodeFilterTooComplex  Code = "FILTER_TOO_COMPLEX"
	CodeDuplicateIdentity Code = "DUPLICATE_IDENTITY"
	CodeEntityNotFound    Code = "ENTITY_NOT_FOUND"
	CodeCursorNotFound    Code = "CURSOR_NOT_FOUND"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeStoreTimeout      Code = "STORE_TIMEOUT"
	CodeUnknown           Code = "UNKNOWN_ERROR"
)

// messages are the default templates; ${key} is substituted from Meta.
var messages = map[Code]string{
	CodeInvalidIdentity:   "identity must not be empty",
	CodeFilterTooComplex:  "filter nesting exceeds ${maxDepth} levels",
	CodeDuplicateIdentity: "an active user already exists for provider ${provider}",
	CodeEntityNotFound:    `user "${id}" not found or not in the required state`,
	CodeCursorNotFound:    `cursor "${cursor}" does not reference an existing user`,
	CodeValidation:        "validation failed",
	CodeStoreTimeout:      "store did not respond in time",
	CodeUnknown:           "an unexpected error occurred",
}

// Error is a classified failure.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := e.message()
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// PublicMessage is the message without the wrapped cause, safe to show callers.
func (e *Error) PublicMessage() string { return e.message() }

func (e *Error) message() string {
	if e.Message != "" {
		return e.Message
	}
	return render(messages[e.Code], e.Meta)
}

// WithMeta attaches one metadata entry and returns the same error.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// New builds an error of the given code. An empty message falls back to the
// code's template.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an error of the given code that keeps err as its cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns err's code, or CodeUnknown when err is not classified.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeUnknown
}

// ToHTTPStatus maps a code to the status the HTTP layer answers with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidIdentity, CodeFilterTooComplex, CodeValidation, CodeCursorNotFound:
		return http.StatusBadRequest
	case CodeDuplicateIdentity:
		return http.StatusConflict
	case CodeEntityNotFound:
		return http.StatusNotFound
	case CodeStoreTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func render(template string, meta map[string]any) string {
	if len(meta) == 0 || !strings.Contains(template, "${") {
		return template
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		template = strings.ReplaceAll(template, "${"+k+"}", fmt.Sprint(meta[k]))
	}
	return template
}
