// Package agent supervises the lifecycle of one task execution: resource
// setup, file staging, orchestrator announcements, the engine run itself, and
// the telemetry backup sweep that follows.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/asynctest/asynctest/internal/config"
	"github.com/asynctest/asynctest/internal/logger"
	"github.com/asynctest/asynctest/internal/monitor"
	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/script"
	"github.com/asynctest/asynctest/internal/spec"
)

// Agent holds the process-wide resources shared by every task it supervises.
type Agent struct {
	cfg     *config.Config
	client  redis.UniversalClient
	lua     *record.LuaManager
	backup  *record.BackupStore
	scripts runtime.ScriptEngine
	rpc     *resty.Client
}

func New(cfg *config.Config, client redis.UniversalClient, lua *record.LuaManager) *Agent {
	return &Agent{
		cfg:     cfg,
		client:  client,
		lua:     lua,
		backup:  record.NewBackupStore(client, cfg.BackupDir),
		scripts: script.NewEngine(),
		rpc:     resty.New().SetTimeout(30 * time.Second),
	}
}

// Backup exposes the backup store for the restore endpoint.
func (a *Agent) Backup() *record.BackupStore { return a.backup }

// Execute runs one submission end to end. All failures end up in telemetry;
// the returned error only reports setup problems that prevented the run from
// starting at all.
func (a *Agent) Execute(ctx context.Context, sub *spec.Submission) error {
	emitter := record.NewTaskRecord(a.client, a.lua, sub.Record.RecordBackupIndex, a.cfg.RecordTTL)

	staging, err := a.stageFiles(ctx, sub.Exec.GlobalCache)
	if err != nil {
		return fmt.Errorf("stage files: %w", err)
	}
	defer a.cleanStaging(ctx, staging)

	session := newSession(a.cfg.MaxConnections)
	databases := runtime.NewDatabaseController(sub.Exec.GlobalCache)
	defer databases.CloseAll()

	eng, err := runtime.NewEngine(runtime.Options{
		Exec:              sub.Exec,
		Record:            sub.Record,
		Emitter:           emitter,
		Scripts:           a.scripts,
		Session:           session,
		Databases:         databases,
		MaxConcurrency:    a.cfg.MaxConcurrency,
		MaxGenerateLength: a.cfg.MaxGenerateLength,
	})
	if err != nil {
		return err
	}

	a.announce(ctx, "start_task", sub)

	runCtx, stop := monitor.WithSignalCancel(ctx)
	defer stop()
	eng.RunTask(runCtx)
	if cause := context.Cause(runCtx); cause != nil && runCtx.Err() != nil {
		logger.Errorf(ctx, "run cancelled: %v", cause)
	}

	live := a.announce(ctx, "end_task", sub)

	if err := a.backup.Export(ctx, sub.Record.RecordBackupIndex); err != nil {
		logger.Errorf(ctx, "export record backup failed: %v", err)
	}
	if live != nil {
		if err := a.backup.Prune(live); err != nil {
			logger.Warnf(ctx, "prune record backups failed: %v", err)
		}
	}
	return nil
}

// newSession builds the shared outbound HTTP client with a bounded per-host
// connection pool.
func newSession(maxConnections int) *resty.Client {
	if maxConnections < 1 {
		maxConnections = 1
	}
	transport := &http.Transport{
		MaxIdleConns:        maxConnections,
		MaxIdleConnsPerHost: maxConnections,
		MaxConnsPerHost:     maxConnections,
	}
	return resty.New().
		SetTransport(transport).
		SetTimeout(120 * time.Second)
}

// stageFiles copies every referenced file into a task-scoped staging
// directory and rewrites the exec paths. Remote origins are fetched over
// HTTP; local origins are copied.
func (a *Agent) stageFiles(ctx context.Context, cache *spec.GlobalCache) (string, error) {
	if cache == nil || len(cache.OriginFileMapping) == 0 {
		return "", nil
	}
	staging := filepath.Join(os.TempDir(), "asynctest", strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", err
	}
	for name, ref := range cache.OriginFileMapping {
		if ref == nil || ref.Origin == "" {
			continue
		}
		dest := filepath.Join(staging, filepath.Base(ref.Name))
		if err := a.fetchFile(ctx, ref.Origin, dest); err != nil {
			return staging, fmt.Errorf("stage file %s: %w", name, err)
		}
		ref.ExecPath = dest
	}
	return staging, nil
}

func (a *Agent) fetchFile(ctx context.Context, origin, dest string) error {
	if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		resp, err := a.rpc.R().SetContext(ctx).SetOutput(dest).Get(origin)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("fetch %s: status %d", origin, resp.StatusCode())
		}
		return nil
	}
	data, err := os.ReadFile(origin)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func (a *Agent) cleanStaging(ctx context.Context, staging string) {
	if staging == "" {
		return
	}
	if err := os.RemoveAll(staging); err != nil {
		logger.Warnf(ctx, "remove staging dir failed: %v", err)
	}
}
