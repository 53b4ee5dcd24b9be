package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// Exit codes for userctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the service rejected the operation
	ExitCommandError = 2 // bad flags, config or connectivity
)

func write(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}

// errorBody mirrors the HTTP error envelope.
type errorBody struct {
	Code    string         `json:"code" yaml:"code"`
	Message string         `json:"message" yaml:"message"`
	Meta    map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// WriteError prints err to w and returns the exit code for it.
func WriteError(w io.Writer, err error) int {
	de, ok := dErrors.As(err)
	if !ok {
		fmt.Fprintf(w, "error: %v\n", err)
		return ExitCommandError
	}
	_ = write(w, "yaml", errorBody{Code: string(de.Code), Message: de.PublicMessage(), Meta: de.Meta})
	return ExitFailure
}
