package services

import (
	"context"
	"time"
)

type nowFunc func() time.Time

func defaultNow() time.Time { return time.Now() }

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
