// Package httputil renders JSON responses and classified errors.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// maxBodyBytes caps request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Code    dErrors.Code   `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err with the status of its code. Unclassified errors
// are answered as UNKNOWN_ERROR without their text.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.As(err)
	if !ok {
		de = dErrors.New(dErrors.CodeUnknown, "")
	}
	WriteJSON(w, dErrors.ToHTTPStatus(de.Code), ErrorBody{
		Code:    de.Code,
		Message: de.PublicMessage(),
		Meta:    de.Meta,
	})
}

// DecodeJSON decodes one JSON value from r's body into v. Unknown fields and
// trailing data are rejected as validation errors.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeValidation, "request body is required")
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("invalid request body: %v", err))
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeValidation, "request body must hold a single JSON value")
	}
	return nil
}
