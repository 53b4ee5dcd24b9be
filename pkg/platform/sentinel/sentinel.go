package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about records, not business-rule outcomes:
// - ErrNotFound: record does not exist in store
// - ErrConflict: a uniqueness constraint rejected the write
// - ErrInvalid: the store rejected the data (check, not-null, type constraints)
// - ErrTimeout: the store gave up on the statement (deadline, statement timeout)
// - ErrUnavailable: store temporarily unreachable
//
// For caller-facing errors use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrInvalid     = errors.New("invalid data")
	ErrTimeout     = errors.New("timeout")
	ErrUnavailable = errors.New("unavailable")
)
