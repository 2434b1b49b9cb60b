package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, int64(10000), cfg.Poll.MinTimeLimitMs)
	assert.Equal(t, int64(60000), cfg.Poll.DefaultTimeLimitMs)
	assert.Equal(t, 2*time.Second, cfg.Poll.CloseGrace)
	assert.Equal(t, 15*time.Second, cfg.Realtime.Heartbeat)
	assert.Equal(t, "none", cfg.Realtime.Bridge)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://db/livepoll")
	t.Setenv("POLL_CLOSE_GRACE_MS", "500")
	t.Setenv("REALTIME_BRIDGE", "nats")
	t.Setenv("SESSION_COOKIE_SECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://db/livepoll", cfg.Database.DSN())
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.CloseGrace)
	assert.Equal(t, "nats", cfg.Realtime.Bridge)
	assert.True(t, cfg.Session.CookieSecure)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"unknown bridge", map[string]string{"STORE_DRIVER": "memory", "REALTIME_BRIDGE": "kafka"}},
		{"redis bridge without addr", map[string]string{"STORE_DRIVER": "memory", "REALTIME_BRIDGE": "redis", "REDIS_ADDR": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDSNFromComponents(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())
}
