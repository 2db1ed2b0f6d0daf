package runtime

import (
	"context"
	"sort"
	"time"

	"github.com/asynctest/asynctest/internal/logger"
	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/spec"
)

// Final task statuses reported to record info.
const (
	TaskStatusEnd      = "end"
	TaskStatusErrorEnd = "error_end"
)

// LoopConcurrent is the loop_strategy value that launches siblings eagerly;
// any other value runs them in order.
const LoopConcurrent = "concurrency"

func isConcurrent(loopStrategy string) bool {
	return loopStrategy == LoopConcurrent || loopStrategy == "concurrent"
}

// taskRunner is the root of the dynamic tree: it owns the task node, the
// initial task/record telemetry and the main case runners.
type taskRunner struct {
	eng  *Engine
	node *Node
}

func newTaskRunner(eng *Engine) *taskRunner {
	node := eng.Tree.Register(&Node{
		Key:  spec.TaskKey(eng.Task.HexIndex),
		Kind: KindTask,
		SPI: spec.SPI{
			Task:         eng.Task.HexIndex,
			PositionList: []string{eng.Task.Name},
		},
		Task: eng.Task,
	})
	return &taskRunner{eng: eng, node: node}
}

func (r *taskRunner) Node() *Node { return r.node }

func (r *taskRunner) Before(ctx context.Context) (any, error) {
	if err := r.eng.Emitter.WriteTaskInfo(ctx, r.eng.Task); err != nil {
		return nil, err
	}
	if err := r.eng.Emitter.WriteRecordInfo(ctx, r.eng.Record); err != nil {
		return nil, err
	}

	start := record.NewProcess(record.TypeSystem, "任务开始").WithPosition(r.node.SPI.PositionList)
	if err := r.eng.Emitter.AppendSummary(ctx, start); err != nil {
		logger.Warnf(ctx, "append task start failed: %v", err)
	}

	cases := make([]*spec.Case, len(r.eng.Cases))
	copy(cases, r.eng.Cases)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].Index < cases[j].Index })

	runners := make([]Runner, 0, len(cases))
	for _, c := range cases {
		runners = append(runners, newCaseRunner(r.eng, r.node, c))
	}
	return runners, nil
}

func (r *taskRunner) Run(ctx context.Context, pre any) error {
	r.node.SetStatus(StatusRunning)
	r.node.StampStart()

	runners := pre.([]Runner)
	if isConcurrent(r.eng.Task.LoopStrategy) {
		r.eng.Scheduler.RunConcurrently(ctx, runners)
	} else {
		r.eng.Scheduler.RunSequentially(ctx, runners)
	}
	return nil
}

func (r *taskRunner) After(ctx context.Context, pre any) {
	r.node.StampEnd()
	if r.node.HasChildError() {
		r.node.SetStatus(StatusErrorChild)
		r.node.SetResult(ResultErrorChild)
	} else if r.node.HasChildSkipped() {
		r.node.SetStatus(StatusSkippedChild)
		r.node.SetResult(ResultSkippedChild)
	} else {
		r.node.SetStatus(StatusEnd)
		r.node.SetResult(ResultSuccess)
	}
	r.finalize(ctx, "任务结束")
}

func (r *taskRunner) Error(ctx context.Context, err error, pre any) {
	r.node.StampEnd()
	r.node.SetStatus(StatusError)
	r.node.SetResult(ResultErrorSelf)
	r.eng.NoteError(err.Error())

	ev := record.NewProcess(record.TypeSystemException, "系统错误："+err.Error()).
		WithPosition(r.node.SPI.PositionList)
	if serr := r.eng.Emitter.AppendSummary(ctx, ev); serr != nil {
		logger.Warnf(ctx, "append task error failed: %v", serr)
	}
	r.finalize(ctx, "任务结束")
}

func (r *taskRunner) Skipped(ctx context.Context, pre any) {
	// A task is never pre-marked skipped; treat it as a clean end.
	r.node.StampEnd()
	r.node.SetResult(ResultSkippedSelf)
	r.finalize(ctx, "任务结束")
}

// finalize writes the terminal task/record telemetry and the closing summary
// event. The task status collapses to end or error_end; the first failure
// message rides along for user-facing services.
func (r *taskRunner) finalize(ctx context.Context, desc string) {
	status := TaskStatusEnd
	if r.eng.Erred() || r.node.HasChildError() {
		status = TaskStatusErrorEnd
	}
	endAt := time.Now().UnixMilli()

	if err := r.eng.Emitter.UpdateTaskInfo(ctx, map[string]any{
		"status": status,
	}); err != nil {
		logger.Warnf(ctx, "update task info failed: %v", err)
	}
	fields := map[string]any{
		"status": status,
		"end_at": endAt,
	}
	if msg := r.eng.FirstError(); msg != "" {
		fields["error_info"] = msg
	}
	if err := r.eng.Emitter.UpdateRecordInfo(ctx, fields); err != nil {
		logger.Warnf(ctx, "update record info failed: %v", err)
	}

	end := record.NewProcess(record.TypeSystem, desc).WithPosition(r.node.SPI.PositionList)
	if err := r.eng.Emitter.AppendSummary(ctx, end); err != nil {
		logger.Warnf(ctx, "append task end failed: %v", err)
	}
}
