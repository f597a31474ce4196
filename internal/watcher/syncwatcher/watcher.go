package syncwatcher

import (
	"context"
	"errors"

	"chitbidgo/internal/syncstore"

	"go.uber.org/zap"
)

// Merger is the part of the auction service that accepts remote snapshots.
type Merger interface {
	ApplyRemote(ctx context.Context, key string, value []byte) error
}

// Run feeds every change written by another viewer into svc until ctx is
// done. A malformed snapshot is dropped and the last good value kept.
func Run(ctx context.Context, store syncstore.Store, svc Merger) error {
	zap.L().Info("syncwatcher.started", zap.String("origin", store.Origin()))
	err := store.Watch(ctx, func(c syncstore.Change) {
		if err := svc.ApplyRemote(ctx, c.Key, c.Value); err != nil {
			zap.L().Debug("syncwatcher.merge_skipped",
				zap.String("key", c.Key),
				zap.String("from", c.Origin),
				zap.Error(err))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
