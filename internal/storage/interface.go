// Package storage defines the result sinks that persist detected segments.
package storage

import (
	"context"
)

// Sink persists the segments of one pixel. Implementations must be safe for
// concurrent use, since pixels are processed by a pool of workers.
type Sink interface {
	Store(ctx context.Context, r PixelResult) error
	Close() error
}
