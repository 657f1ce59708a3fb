package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/transfers")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.CreditCodeTTL)
	assert.Equal(t, 10*time.Minute, cfg.TransferCodeTTL)
	assert.Equal(t, 3, cfg.MaxCodeAttempts)
	assert.Equal(t, 30*time.Minute, cfg.BlockDuration)
	assert.True(t, decimal.RequireFromString("10000").Equal(cfg.SecondCodeThreshold))
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/transfers")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("TRANSFER_SECOND_CODE_THRESHOLD", "2500.50")
	t.Setenv("CREDIT_TRANSFER_CODE_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, decimal.RequireFromString("2500.50").Equal(cfg.SecondCodeThreshold))
	assert.Equal(t, 5*time.Minute, cfg.CreditCodeTTL)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/transfers")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TRANSFER_CODE_TTL", "0s")

	_, err := Load()
	require.Error(t, err)
}
