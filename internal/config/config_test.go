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

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8700, cfg.Port)
	assert.Equal(t, "redis://127.0.0.1:6379/0", cfg.RedisConnection)
	assert.Equal(t, 100, cfg.MaxConnections)
	assert.Equal(t, 30, cfg.MaxConcurrency)
	assert.Equal(t, 100, cfg.MaxGenerateLength)
	assert.Equal(t, 500, cfg.MemoryLimitMB)
	assert.Equal(t, 10*time.Second, cfg.WaitKillTime)
	assert.Equal(t, 24*time.Hour, cfg.RecordTTL)
	assert.Empty(t, cfg.LuaScriptsDir)
	assert.Empty(t, cfg.RPCRouter)
	assert.Equal(t, "static/record_redis_backup", cfg.BackupDir)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "0.0.0.0:8700", cfg.ListenAddr())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ASYNCTEST_HOST", "127.0.0.1")
	t.Setenv("ASYNCTEST_PORT", "9000")
	t.Setenv("LOCAL_REDIS_CONNECTION", "redis://redis.internal:6379/3")
	t.Setenv("MAX_CONCURRENCY", "8")
	t.Setenv("MAX_GENERATE_LENGTH", "50")
	t.Setenv("MULTI_PROCESS_MEMORY_LIMIT", "1024")
	t.Setenv("WAITING_MULTI_PROCESS_TIME", "5")
	t.Setenv("REDIS_TASK_RECORD_TIMEOUT", "3600")
	t.Setenv("ASYNCTEST_RCP_ROUTER", "http://orchestrator/rpc")
	t.Setenv("ASYNCTEST_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
	assert.Equal(t, "redis://redis.internal:6379/3", cfg.RedisConnection)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, 50, cfg.MaxGenerateLength)
	assert.Equal(t, 1024, cfg.MemoryLimitMB)
	assert.Equal(t, 5*time.Second, cfg.WaitKillTime)
	assert.Equal(t, time.Hour, cfg.RecordTTL)
	assert.Equal(t, "http://orchestrator/rpc", cfg.RPCRouter)
	assert.True(t, cfg.Debug)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("concurrency", func(t *testing.T) {
		t.Setenv("MAX_CONCURRENCY", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "MAX_CONCURRENCY")
	})
	t.Run("generate length", func(t *testing.T) {
		t.Setenv("MAX_GENERATE_LENGTH", "-1")
		_, err := Load()
		assert.ErrorContains(t, err, "MAX_GENERATE_LENGTH")
	})
	t.Run("record ttl", func(t *testing.T) {
		t.Setenv("REDIS_TASK_RECORD_TIMEOUT", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "REDIS_TASK_RECORD_TIMEOUT")
	})
}
