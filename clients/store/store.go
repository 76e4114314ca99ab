// package store provides the backends holding the entities
// served by the resource engine
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("entity not found in the store")

// Store holds JSON encoded entities grouped into named sets.
// Keys are assigned per set and never reused.
type Store interface {
	// NextKey reserves and returns an unused key in set
	NextKey(ctx context.Context, set string) (int64, error)
	// Put creates or replaces the entity stored under key
	Put(ctx context.Context, set string, key int64, data []byte) error
	Get(ctx context.Context, set string, key int64) ([]byte, error)
	// List returns every entity in set ordered by key
	List(ctx context.Context, set string) ([][]byte, error)
	Delete(ctx context.Context, set string, key int64) error
	Healthcheck(ctx context.Context) error
}
