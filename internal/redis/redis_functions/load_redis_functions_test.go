package redis_functions

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAll(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.Equal(t, []string{"chitbid.lua"}, names)

	code, err := fs.ReadFile("chitbid.lua")
	require.NoError(t, err)
	assert.Contains(t, string(code), "redis.register_function('kv_put'")

	rdb, mock := redismock.NewClientMock()
	mock.ExpectFunctionLoadReplace(string(code)).SetVal("chitbid")

	require.NoError(t, LoadAll(context.Background(), rdb))
	assert.NoError(t, mock.ExpectationsWereMet())
}
