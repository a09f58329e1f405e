package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "pantry-events", cfg.Kafka.TopicEvents)
	assert.Equal(t, int64(100), cfg.Business.CounterStart)

	settings := cfg.Business.Settings()
	assert.True(t, settings.EnforcePointLimit)
	assert.True(t, settings.EnforceStock)
	assert.False(t, settings.ExcludeClientAllergens)
	assert.Equal(t, 100, settings.DefaultPointsPerVisit)
	assert.Equal(t, 24*time.Hour, settings.CartTTL)
	assert.Equal(t, 5*time.Minute, settings.AvailabilityCacheTTL)
	assert.Equal(t, 30*time.Second, settings.CheckoutLockTTL)
	assert.Equal(t, int64(5), settings.LowStockThreshold)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:pantry.db")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("ENFORCE_STOCK", "false")
	t.Setenv("EXCLUDE_CLIENT_ALLERGENS", "true")
	t.Setenv("CART_TTL", "2h")
	t.Setenv("COUNTER_START", "5000")
	t.Setenv("TIMEZONE", "America/Chicago")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Options().Driver)
	assert.Equal(t, "file:pantry.db", cfg.Database.Options().URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, int64(5000), cfg.Business.CounterStart)

	settings := cfg.Business.Settings()
	assert.False(t, settings.EnforceStock)
	assert.True(t, settings.ExcludeClientAllergens)
	assert.Equal(t, 2*time.Hour, settings.CartTTL)

	loc, err := cfg.Business.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "DATABASE_DRIVER", "mysql"},
		{"bad duration", "CART_TTL", "soon"},
		{"bad bool", "ENFORCE_STOCK", "maybe"},
		{"negative counter", "COUNTER_START", "-1"},
		{"zero default points", "DEFAULT_POINTS_PER_VISIT", "0"},
		{"unknown timezone", "TIMEZONE", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
