package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "*", cfg.CORSAllowOrigin)
	assert.Equal(t, "1", cfg.CounterID)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.False(t, cfg.NativeIncrement)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 200*time.Millisecond, cfg.MaxBackoff)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "AzureResume", cfg.Cosmos.Database)
	assert.Equal(t, "Counter", cfg.Cosmos.Container)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("COUNTER_STORE", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("COUNTER_NATIVE_INCREMENT", "true")
	t.Setenv("COUNTER_MAX_ATTEMPTS", "3")
	t.Setenv("COUNTER_STORE_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "visit-counter:", cfg.Redis.KeyPrefix)
	assert.True(t, cfg.NativeIncrement)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
}

func TestLoadEnvFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(fn, []byte("COUNTER_ID=home\nPROJECT_ID=my-project\n"), 0o600))
	// godotenv.Load sets real environment variables
	t.Setenv("COUNTER_ID", "")
	t.Setenv("PROJECT_ID", "")
	os.Unsetenv("COUNTER_ID")
	os.Unsetenv("PROJECT_ID")
	t.Setenv("COUNTER_STORE", "datastore")

	cfg, err := Load(fn, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "home", cfg.CounterID)
	assert.Equal(t, "my-project", cfg.Datastore.ProjectID)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{
			name: "unknown store",
			env:  map[string]string{"COUNTER_STORE": "etcd"},
			msg:  "unknown COUNTER_STORE: etcd",
		},
		{
			name: "attempts",
			env:  map[string]string{"COUNTER_MAX_ATTEMPTS": "0"},
			msg:  "COUNTER_MAX_ATTEMPTS must be >= 1",
		},
		{
			name: "datastore",
			env:  map[string]string{"COUNTER_STORE": "datastore", "PROJECT_ID": ""},
			msg:  "PROJECT_ID must be specified",
		},
		{
			name: "mongo",
			env:  map[string]string{"COUNTER_STORE": "mongo", "MONGO_URI": ""},
			msg:  "MONGO_URI must be specified",
		},
		{
			name: "cosmos",
			env:  map[string]string{"COUNTER_STORE": "cosmos", "COSMOS_CONNECTION_STRING": ""},
			msg:  "COSMOS_CONNECTION_STRING must be specified",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}
