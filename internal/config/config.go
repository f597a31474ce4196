package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	SyncBackend    string `env:"SYNC_BACKEND"    envDefault:"redis"  validate:"oneof=redis memory"`
	FinanceBackend string `env:"FINANCE_BACKEND" envDefault:"memory" validate:"oneof=memory postgres"`

	RedisHost      string `env:"REDIS_HOST"       envDefault:"localhost"`
	RedisPort      uint16 `env:"REDIS_PORT"       envDefault:"6379" validate:"min=1000,max=65535"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB"         envDefault:"0"    validate:"min=0,max=15"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"gk:"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"chit_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"chit_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"chit_db"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE"  envDefault:"disable" validate:"oneof=disable require verify-ca verify-full"`

	RoundDuration   time.Duration `env:"ROUND_DURATION"    envDefault:"600s" validate:"min=1s"`
	TickInterval    time.Duration `env:"TICK_INTERVAL"     envDefault:"1s"   validate:"min=10ms"`
	BidMinIncrement int64         `env:"BID_MIN_INCREMENT" envDefault:"0"    validate:"min=0"`
	// BidIncrements is the menu of accepted bid steps.
	BidIncrements []int64 `env:"BID_INCREMENTS" envDefault:"100,250,500,800,1000,1500,2000,5000" envSeparator:"," validate:"dive,min=1"`

	// Seed values used when the shared store holds no auction config yet.
	DefaultChitValue      int64   `env:"DEFAULT_CHIT_VALUE"      envDefault:"600000"    validate:"min=0"`
	DefaultCommissionRate float64 `env:"DEFAULT_COMMISSION_RATE" envDefault:"5"         validate:"min=0,max=100"`
	DefaultRoomCode       string  `env:"DEFAULT_ROOM_CODE"       envDefault:"GK-123456"`
	DefaultTerm           int     `env:"DEFAULT_TERM"            envDefault:"24"        validate:"min=1"`
	DefaultBatchID        string  `env:"DEFAULT_BATCH_ID"        envDefault:"GK-A1"`

	AdminToken         string `env:"ADMIN_TOKEN"`
	RequireEligibility bool   `env:"REQUIRE_ELIGIBILITY" envDefault:"false"`

	JournalMaxLen int64 `env:"JOURNAL_MAX_LEN" envDefault:"10000" validate:"min=1"`

	CorsAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
