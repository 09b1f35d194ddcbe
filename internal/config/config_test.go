package config

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AUTH_PROVIDER", "")
	t.Setenv("QUIZ_TICK_INTERVAL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.Auth.Provider)
	assert.Equal(t, time.Second, cfg.Quiz.TickInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.Quiz.AdvanceDelay)
	assert.Equal(t, 30*time.Second, cfg.AdminRefreshInterval)
}

func TestLoadConfig_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("QUIZ_ADVANCE_DELAY", "250ms")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "3")
	t.Setenv("JWT_TTL", "not-a-duration")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Quiz.AdvanceDelay)
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, 3, cfg.LoginRatePerMinute)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTTTL)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		Auth:        AuthConfig{Provider: "local", JWTSecret: "supersecretkey"},
		Storage:     StorageConfig{Provider: "local"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "a-real-secret"
	assert.NoError(t, cfg.Validate())

	cfg.Auth.Provider = "casdoor"
	assert.Error(t, cfg.Validate())

	cfg.Auth.Provider = "ldap"
	assert.Error(t, cfg.Validate())
}

func TestEventConfig_CreateEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	disabled := EventConfig{Enabled: false, Publisher: "kafka"}
	publisher, err := disabled.CreateEventPublisher(logger)
	require.NoError(t, err)
	assert.IsType(t, &events.MockEventPublisher{}, publisher)

	unknown := EventConfig{Enabled: true, Publisher: "nats"}
	publisher, err = unknown.CreateEventPublisher(logger)
	require.NoError(t, err)
	assert.IsType(t, &events.MockEventPublisher{}, publisher)

	brokers := EventConfig{KafkaBrokers: "k1:9092, k2:9092,,"}
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, brokers.GetKafkaBrokers())
}
