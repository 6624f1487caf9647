package ratelimit

import "context"

// Allower answers whether one more request is allowed for a key within the
// current window. retryAfter is in seconds and only meaningful when denied.
type Allower interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter int, err error)
}
