package agent

import (
	"context"

	"github.com/asynctest/asynctest/internal/logger"
	"github.com/asynctest/asynctest/internal/spec"
)

// headerInternal marks announcements as internal traffic for the
// orchestrator's gateway.
const headerInternal = "HTTP_X_INTERNAL"

type rpcEnvelope struct {
	Data rpcData `json:"data"`
}

type rpcData struct {
	RecordBackupIndexList []string `json:"record_backup_index_list"`
}

// announce tells the orchestrator a task started or ended. Announcement
// failures never fail the run; the orchestrator reconciles from telemetry.
// The end_task reply carries the record indexes still alive, used to prune
// stale backup files; nil means the list is unknown.
func (a *Agent) announce(ctx context.Context, rcpType string, sub *spec.Submission) []string {
	if a.cfg.RPCRouter == "" {
		return nil
	}
	var envelope rpcEnvelope
	resp, err := a.rpc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(headerInternal, "from_nginx").
		SetQueryParam("rcp_type", rcpType).
		SetBody(map[string]any{
			"task_id":   sub.Exec.TaskInfo.ID,
			"record_id": sub.Record.ID,
		}).
		SetResult(&envelope).
		Post(a.cfg.RPCRouter)
	if err != nil {
		logger.Errorf(ctx, "rpc %s failed: %v", rcpType, err)
		return nil
	}
	if resp.IsError() {
		logger.Errorf(ctx, "rpc %s rejected: status %d", rcpType, resp.StatusCode())
		return nil
	}
	if rcpType == "end_task" && envelope.Data.RecordBackupIndexList != nil {
		return envelope.Data.RecordBackupIndexList
	}
	return nil
}
