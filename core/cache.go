package core

import (
	"context"
	"time"
)

type (
	// TokenBlacklist keeps revoked token IDs until they expire.
	TokenBlacklist interface {
		Revoke(ctx context.Context, tokenID string, until time.Time) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}

	// AttemptCounter counts attempts per key within a sliding window started by the first hit.
	AttemptCounter interface {
		Hit(ctx context.Context, key string, window time.Duration) (int, error)
		Count(ctx context.Context, key string) (int, error)
		Reset(ctx context.Context, key string) error
	}
)
