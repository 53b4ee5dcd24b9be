package service

import (
	"context"
	"errors"

	"github.com/changeuikim/vercel-kayce/pkg/platform/sentinel"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// op names a public operation; it decides how store signals are read.
type op string

const (
	opCreate         op = "create"
	opSoftDelete     op = "soft_delete"
	opRestore        op = "restore"
	opFindByID       op = "find_by_id"
	opFindByIdentity op = "find_by_identity"
	opFetchPage      op = "fetch_page"
)

func (o op) lifecycle() bool {
	return o == opCreate || o == opSoftDelete || o == opRestore
}

// normalize classifies err into the caller vocabulary. Every public operation
// passes its failure through here exactly once.
//
// Order:
//  1. already classified errors pass through unchanged
//  2. deadlines and store timeouts become StoreTimeout
//  3. conflicts inside a lifecycle transaction become DuplicateIdentity;
//     missing rows become EntityNotFound
//  4. store-rejected data becomes ValidationError
//  5. anything else is UnknownError with the cause kept in meta
func normalize(err error, o op) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, sentinel.ErrTimeout):
		return dErrors.Wrap(err, dErrors.CodeStoreTimeout, "")
	case errors.Is(err, sentinel.ErrConflict) && o.lifecycle():
		return dErrors.Wrap(err, dErrors.CodeDuplicateIdentity, "")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeEntityNotFound, "")
	case errors.Is(err, sentinel.ErrInvalid):
		return dErrors.Wrap(err, dErrors.CodeValidation, "")
	}
	return dErrors.Wrap(err, dErrors.CodeUnknown, "").WithMeta("originalError", err.Error())
}
