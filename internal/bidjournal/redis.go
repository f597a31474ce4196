package bidjournal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const stream = "bids_stream"

// RedisJournal appends to a capped Redis stream shared by every instance.
type RedisJournal struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisJournal(rdb *redis.Client, prefix string, maxLen int64) *RedisJournal {
	return &RedisJournal{rdb: rdb, stream: prefix + stream, maxLen: maxLen}
}

// Stream is the Redis stream the journal writes to.
func (j *RedisJournal) Stream() string { return j.stream }

func (j *RedisJournal) Append(ctx context.Context, e Entry) error {
	return j.rdb.XAdd(ctx, j.addArgs(e)).Err()
}

func (j *RedisJournal) addArgs(e Entry) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Approx: true,
		Values: []interface{}{
			"round", e.RoundID,
			"uid", e.UserID,
			"name", e.Name,
			"inc", e.Increment,
			"loss", e.Loss,
			"cur", e.CurrentLoss,
			"at", e.At.UnixMilli(),
		},
	}
}

func (j *RedisJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	msgs, err := j.rdb.XRevRangeN(ctx, j.stream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", j.stream, err)
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, EntryFromMessage(m))
	}
	return out, nil
}

// EntryFromMessage decodes a stream message written by Append.
func EntryFromMessage(m redis.XMessage) Entry {
	return Entry{
		ID:          m.ID,
		RoundID:     str(m.Values["round"]),
		UserID:      str(m.Values["uid"]),
		Name:        str(m.Values["name"]),
		Increment:   atoi(m.Values["inc"]),
		Loss:        atoi(m.Values["loss"]),
		CurrentLoss: atoi(m.Values["cur"]),
		At:          time.UnixMilli(atoi(m.Values["at"])).UTC(),
	}
}

// helpers
func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
func atoi(v interface{}) int64 {
	i, _ := strconv.ParseInt(str(v), 10, 64)
	return i
}
