package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.SyncBackend)
	assert.Equal(t, "memory", cfg.FinanceBackend)
	assert.Equal(t, 600*time.Second, cfg.RoundDuration)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, int64(600000), cfg.DefaultChitValue)
	assert.Equal(t, 5.0, cfg.DefaultCommissionRate)
	assert.Equal(t, "GK-123456", cfg.DefaultRoomCode)
	assert.Equal(t, []string{"*"}, cfg.CorsAllowedOrigins)
	assert.Equal(t, []int64{100, 250, 500, 800, 1000, 1500, 2000, 5000}, cfg.BidIncrements)
	assert.Equal(t, uint16(8085), cfg.HttpServerPort)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("SYNC_BACKEND", "memory")
	t.Setenv("ROUND_DURATION", "90s")
	t.Setenv("BID_MIN_INCREMENT", "100")
	t.Setenv("BID_INCREMENTS", "100,1000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := parse()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.SyncBackend)
	assert.Equal(t, 90*time.Second, cfg.RoundDuration)
	assert.Equal(t, int64(100), cfg.BidMinIncrement)
	assert.Equal(t, []int64{100, 1000}, cfg.BidIncrements)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CorsAllowedOrigins)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"SYNC_BACKEND":            "etcd",
		"HTTP_SERVER_PORT":        "80",
		"DEFAULT_COMMISSION_RATE": "120",
		"ROUND_DURATION":          "500ms",
		"BID_INCREMENTS":          "100,-5",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := parse()
			assert.Error(t, err)
		})
	}
}
