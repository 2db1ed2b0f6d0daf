package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime knob of the engine. It is loaded once at process
// start from the environment (optionally seeded from a .env file) and passed
// down explicitly; nothing reads the environment after Load returns.
type Config struct {
	// Host and Port are the bind address of the HTTP surface.
	Host string
	Port int

	// RedisConnection is the URL of the observability store
	// (e.g. redis://localhost:6379/0).
	RedisConnection string

	// MaxConnections bounds the per-host connection pool of the shared
	// outbound HTTP session.
	MaxConnections int

	// MaxConcurrency is the capacity of the process-wide semaphore gating
	// runner work bodies.
	MaxConcurrency int

	// MaxGenerateLength caps dataset- and script-driven loop expansion.
	MaxGenerateLength int

	// MemoryLimitMB is the RSS limit of a task process; the monitor sends
	// SIGUSR1 when it is exceeded.
	MemoryLimitMB int

	// WaitKillTime is how long the monitor waits after a limit signal
	// before killing the task process.
	WaitKillTime time.Duration

	// RecordTTL is the expiry applied to every telemetry key.
	RecordTTL time.Duration

	// LuaScriptsDir optionally overrides the embedded Lua scripts.
	LuaScriptsDir string

	// RPCRouter is the orchestrator endpoint for start_task/end_task calls.
	// Empty means local mode: no announcements are made.
	RPCRouter string

	// BackupDir is where telemetry backup files are exported.
	BackupDir string

	// Debug enables debug logging.
	Debug bool
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present, without overriding
// variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ASYNCTEST_HOST", "0.0.0.0")
	v.SetDefault("ASYNCTEST_PORT", 8700)
	v.SetDefault("LOCAL_REDIS_CONNECTION", "redis://127.0.0.1:6379/0")
	v.SetDefault("MAX_CONNECTIONS", 100)
	v.SetDefault("MAX_CONCURRENCY", 30)
	v.SetDefault("MAX_GENERATE_LENGTH", 100)
	v.SetDefault("MULTI_PROCESS_MEMORY_LIMIT", 500)
	v.SetDefault("WAITING_MULTI_PROCESS_TIME", 10)
	v.SetDefault("REDIS_TASK_RECORD_TIMEOUT", 60*60*24)
	v.SetDefault("LUA_SCRIPTS_DIR", "")
	v.SetDefault("ASYNCTEST_RCP_ROUTER", "")
	v.SetDefault("RECORD_BACKUP_DIR", "static/record_redis_backup")
	v.SetDefault("ASYNCTEST_DEBUG", false)

	cfg := &Config{
		Host:              v.GetString("ASYNCTEST_HOST"),
		Port:              v.GetInt("ASYNCTEST_PORT"),
		RedisConnection:   v.GetString("LOCAL_REDIS_CONNECTION"),
		MaxConnections:    v.GetInt("MAX_CONNECTIONS"),
		MaxConcurrency:    v.GetInt("MAX_CONCURRENCY"),
		MaxGenerateLength: v.GetInt("MAX_GENERATE_LENGTH"),
		MemoryLimitMB:     v.GetInt("MULTI_PROCESS_MEMORY_LIMIT"),
		WaitKillTime:      time.Duration(v.GetInt("WAITING_MULTI_PROCESS_TIME")) * time.Second,
		RecordTTL:         time.Duration(v.GetInt("REDIS_TASK_RECORD_TIMEOUT")) * time.Second,
		LuaScriptsDir:     v.GetString("LUA_SCRIPTS_DIR"),
		RPCRouter:         v.GetString("ASYNCTEST_RCP_ROUTER"),
		BackupDir:         v.GetString("RECORD_BACKUP_DIR"),
		Debug:             v.GetBool("ASYNCTEST_DEBUG"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.MaxGenerateLength < 1 {
		return fmt.Errorf("MAX_GENERATE_LENGTH must be at least 1, got %d", c.MaxGenerateLength)
	}
	if c.RecordTTL <= 0 {
		return fmt.Errorf("REDIS_TASK_RECORD_TIMEOUT must be positive, got %s", c.RecordTTL)
	}
	return nil
}

// ListenAddr returns the host:port the HTTP surface binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
