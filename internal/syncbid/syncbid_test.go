package syncbid

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var insertSQL = regexp.QuoteMeta("INSERT INTO bid_history")

func msg(id, uid string, inc, cur int64, at int64) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]interface{}{
		"round": "r1", "uid": uid, "name": uid,
		"inc": itoa(inc), "loss": itoa(inc), "cur": itoa(cur), "at": itoa(at),
	}}
}

func itoa(i int64) string { return strconv.FormatInt(i, 10) }

func TestArchiver_PollPersistsAndAdvances(t *testing.T) {
	rdb, rmock := redismock.NewClientMock()
	db, smock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := NewArchiver(rdb, db, "gk:bids_stream")

	rmock.ExpectXRead(a.readArgs()).SetVal([]redis.XStream{{
		Stream: "gk:bids_stream",
		Messages: []redis.XMessage{
			msg("1-0", "U-2", 1000, 31000, 1700000000000),
			msg("2-0", "U-3", 2000, 33000, 1700000001000),
		},
	}})
	smock.ExpectBegin()
	smock.ExpectExec(insertSQL).
		WithArgs("1-0", "r1", "U-2", "U-2", int64(1000), int64(1000), int64(31000), time.UnixMilli(1700000000000).UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	smock.ExpectExec(insertSQL).
		WithArgs("2-0", "r1", "U-3", "U-3", int64(2000), int64(2000), int64(33000), time.UnixMilli(1700000001000).UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	smock.ExpectCommit()

	require.NoError(t, a.pollOnce(context.Background()))
	assert.Equal(t, "2-0", a.lastID)
	assert.NoError(t, rmock.ExpectationsWereMet())
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestArchiver_FailedInsertKeepsPosition(t *testing.T) {
	rdb, rmock := redismock.NewClientMock()
	db, smock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := NewArchiver(rdb, db, "gk:bids_stream")

	rmock.ExpectXRead(a.readArgs()).SetVal([]redis.XStream{{
		Stream:   "gk:bids_stream",
		Messages: []redis.XMessage{msg("5-0", "U-2", 1000, 31000, 1700000000000)},
	}})
	smock.ExpectBegin()
	smock.ExpectExec(insertSQL).WillReturnError(errors.New("connection reset"))
	smock.ExpectRollback()

	assert.Error(t, a.pollOnce(context.Background()))
	assert.Equal(t, "0-0", a.lastID)
	assert.NoError(t, smock.ExpectationsWereMet())
}

func TestArchiver_EmptyRead(t *testing.T) {
	rdb, rmock := redismock.NewClientMock()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := NewArchiver(rdb, db, "gk:bids_stream")
	rmock.ExpectXRead(a.readArgs()).RedisNil()

	assert.NoError(t, a.pollOnce(context.Background()))
	assert.Equal(t, "0-0", a.lastID)
}
