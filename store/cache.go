package store

import "context"

type (
	// LocalCache is the fast, always-available tier of the snapshot store.
	LocalCache interface {
		// Get returns false when nothing is cached under key
		Get(ctx context.Context, key string) ([]byte, bool, error)
		Set(ctx context.Context, key string, value []byte) error
		// Delete is a no-op for a missing key
		Delete(ctx context.Context, key string) error

		Shutdown(ctx context.Context) error
	}
)
