package testutil

import (
	"context"
	"time"

	"github.com/changeuikim/vercel-kayce/pkg/requestcontext"
)

// Context returns a background context carrying the request id and clock the
// middleware chain would normally set, so services see deterministic values.
func Context(requestID string, now time.Time) context.Context {
	ctx := requestcontext.WithRequestID(context.Background(), requestID)
	return requestcontext.WithTime(ctx, now)
}
