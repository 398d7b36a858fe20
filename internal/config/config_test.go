package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{"DATABASE_URL": "postgres://x"}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Equal(t, StorePostgres, c.Store)
	assert.Equal(t, 30*time.Second, c.ReapInterval)
	assert.Equal(t, 8, c.SubscriberBuffer)
	assert.True(t, c.Migrate)
}

func TestOverrides(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{
		"ORDERFEED_STORE":                 "Memory",
		"ORDERFEED_GRPC_ADDR":             "",
		"ORDERFEED_REAP_INTERVAL_SECONDS": "2",
		"ORDERFEED_SUBSCRIBER_BUFFER":     "3",
		"ORDERFEED_LOG_DEV":               "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Empty(t, c.GRPCAddr)
	assert.Equal(t, 2*time.Second, c.ReapInterval)
	assert.Equal(t, 3, c.SubscriberBuffer)
	assert.True(t, c.LogDev)
}

func TestInvalidValues(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"ORDERFEED_STORE":                 "memory",
		"ORDERFEED_REAP_INTERVAL_SECONDS": "-1",
		"ORDERFEED_MIGRATE":               "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORDERFEED_REAP_INTERVAL_SECONDS")
	assert.Contains(t, err.Error(), "ORDERFEED_MIGRATE")

	_, err = FromLookup(lookupFrom(map[string]string{}))
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = FromLookup(lookupFrom(map[string]string{"ORDERFEED_STORE": "sqlite"}))
	assert.ErrorContains(t, err, "unknown store")
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ORDERFEED_STORE=memory\nORDERFEED_HTTP_ADDR=:9999\n"), 0o600))
	t.Setenv("ORDERFEED_STORE", "")
	t.Setenv("ORDERFEED_HTTP_ADDR", "")
	os.Unsetenv("ORDERFEED_STORE")
	os.Unsetenv("ORDERFEED_HTTP_ADDR")

	c, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Equal(t, ":9999", c.HTTPAddr)
}
