package syncbid

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chitbidgo/internal/bidjournal"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ins = `INSERT INTO bid_history (stream_id, round_id, user_id, name,
                                   increment, loss, current_loss, placed_at)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
             ON CONFLICT (stream_id) DO NOTHING`

// Archiver tails the bid journal stream and persists every accepted bid in
// Postgres. Inserts are keyed by stream id, so replaying from the start of
// the stream after a restart is harmless.
type Archiver struct {
	rdb    *redis.Client
	db     *sql.DB
	stream string
	lastID string
}

func NewArchiver(rdb *redis.Client, db *sql.DB, stream string) *Archiver {
	return &Archiver{rdb: rdb, db: db, stream: stream, lastID: "0-0"}
}

func (a *Archiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := a.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			zap.L().Warn("syncbid.poll", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// pollOnce blocks up to 2 s for new entries and persists them.
func (a *Archiver) pollOnce(ctx context.Context) error {
	res, err := a.rdb.XRead(ctx, a.readArgs()).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil
	}
	msgs := res[0].Messages
	if err := persist(ctx, a.db, msgs); err != nil {
		return err
	}
	a.lastID = msgs[len(msgs)-1].ID
	return nil
}

func (a *Archiver) readArgs() *redis.XReadArgs {
	return &redis.XReadArgs{
		Streams: []string{a.stream, a.lastID},
		Count:   100,
		Block:   2000 * time.Millisecond,
	}
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		e := bidjournal.EntryFromMessage(m)
		if _, err := tx.ExecContext(ctx, ins,
			e.ID, e.RoundID, e.UserID, e.Name, e.Increment, e.Loss, e.CurrentLoss, e.At); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
