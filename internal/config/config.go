package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaCodeTopic    string        `env:"KAFKA_CODE_TOPIC" envDefault:"transfer_verification_codes"`
	KafkaWriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"5s"`

	CreditCodeTTL   time.Duration `env:"CREDIT_TRANSFER_CODE_TTL" envDefault:"10m"`
	TransferCodeTTL time.Duration `env:"TRANSFER_CODE_TTL" envDefault:"10m"`
	CodeHashCost    int           `env:"CODE_HASH_COST" envDefault:"10"`

	MaxCodeAttempts      int             `env:"TRANSFER_MAX_CODE_ATTEMPTS" envDefault:"3"`
	BlockDuration        time.Duration   `env:"TRANSFER_BLOCK_DURATION" envDefault:"30m"`
	SecondCodeThreshold  decimal.Decimal `env:"TRANSFER_SECOND_CODE_THRESHOLD" envDefault:"10000.00"`
	ExecuteMaxRetries    int             `env:"EXECUTE_MAX_RETRIES" envDefault:"3"`
	SessionSweepInterval time.Duration   `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	ShutdownTimeout      time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	IdempotencyTTL       time.Duration   `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.CreditCodeTTL <= 0 || cfg.TransferCodeTTL <= 0 {
		return nil, fmt.Errorf("config.Load: code TTLs must be positive")
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
