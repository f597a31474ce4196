// Package syncstore is the shared key-value store that keeps independent
// viewers of the auction consistent. Every handle has an origin id; a
// handle is told about writes made through other handles and never about
// its own. There is no merge logic: the last value written wins.
package syncstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("key not found")

// Change is a value written through another handle.
type Change struct {
	Key    string
	Value  []byte
	Origin string
}

type Store interface {
	Origin() string
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key and notifies every other handle.
	Put(ctx context.Context, key string, value []byte) error
	// Watch calls fn for each change made through other handles until ctx
	// is done.
	Watch(ctx context.Context, fn func(Change)) error
}

// envelope is the change-notification payload.
type envelope struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Value  []byte `json:"value"`
}

func newOrigin(origin string) string {
	if origin == "" {
		return uuid.NewString()
	}
	return origin
}
