package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/asynctest/asynctest/internal/spec"
)

// Emitter is the engine-facing telemetry sink. The runtime never talks to
// Redis directly; it emits through this interface so tests can capture the
// stream in memory.
type Emitter interface {
	WriteTaskInfo(ctx context.Context, info any) error
	UpdateTaskInfo(ctx context.Context, fields map[string]any) error

	WriteRecordInfo(ctx context.Context, rec any) error
	UpdateRecordInfo(ctx context.Context, fields map[string]any) error
	IncrementRecordInfo(ctx context.Context, deltas map[string]int64) error

	AppendSummary(ctx context.Context, events ...*ProcessObject) error

	AppendChildCase(ctx context.Context, descriptor any) error
	UpdateChildCaseEntry(ctx context.Context, listIndex int, fields map[string]any) error
	UpdateChildCaseStatus(ctx context.Context, childCaseIndex int, fields map[string]any) error
	IncrementChildCaseStatus(ctx context.Context, childCaseIndex int, deltas map[string]int64) error
	AppendChildCaseProcess(ctx context.Context, childCaseIndex int, events ...*ProcessObject) error

	AppendStepProcess(ctx context.Context, spi spec.SPI, events ...*ProcessObject) error
	UpdateStepStatus(ctx context.Context, spi spec.SPI, fields map[string]any) error

	AddDetail(ctx context.Context, detail *StepDetail) error
}

// TaskRecord is the Redis-backed Emitter of one run. All process-stream
// appends pipeline RPUSH with EXPIRE so every key carries the record TTL;
// partial updates go through the preloaded Lua scripts.
type TaskRecord struct {
	client redis.UniversalClient
	lua    *LuaManager
	keys   Keys
	ttl    time.Duration
}

var _ Emitter = (*TaskRecord)(nil)

func NewTaskRecord(client redis.UniversalClient, lua *LuaManager, recordBackupIndex string, ttl time.Duration) *TaskRecord {
	return &TaskRecord{
		client: client,
		lua:    lua,
		keys:   NewKeys(recordBackupIndex),
		ttl:    ttl,
	}
}

// Keys exposes the key builder, used by the supervisor for export.
func (r *TaskRecord) Keys() Keys { return r.keys }

func (r *TaskRecord) setJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.client.Set(ctx, key, payload, r.ttl).Err()
}

func (r *TaskRecord) pushJSON(ctx context.Context, key string, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	payloads := make([]any, 0, len(values))
	for _, v := range values {
		p, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		payloads = append(payloads, p)
	}
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, payloads...)
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func eventsToAny(events []*ProcessObject) []any {
	out := make([]any, 0, len(events))
	for _, e := range events {
		out = append(out, e)
	}
	return out
}

func (r *TaskRecord) WriteTaskInfo(ctx context.Context, info any) error {
	return r.setJSON(ctx, r.keys.TaskInfo(), info)
}

func (r *TaskRecord) UpdateTaskInfo(ctx context.Context, fields map[string]any) error {
	return r.lua.UpdateFields(ctx, r.keys.TaskInfo(), fields, r.ttl)
}

func (r *TaskRecord) WriteRecordInfo(ctx context.Context, rec any) error {
	return r.setJSON(ctx, r.keys.RecordInfo(), rec)
}

func (r *TaskRecord) UpdateRecordInfo(ctx context.Context, fields map[string]any) error {
	return r.lua.UpdateFields(ctx, r.keys.RecordInfo(), fields, r.ttl)
}

func (r *TaskRecord) IncrementRecordInfo(ctx context.Context, deltas map[string]int64) error {
	return r.lua.IncrementFields(ctx, r.keys.RecordInfo(), deltas, r.ttl)
}

func (r *TaskRecord) AppendSummary(ctx context.Context, events ...*ProcessObject) error {
	return r.pushJSON(ctx, r.keys.SummaryProcess(), eventsToAny(events)...)
}

func (r *TaskRecord) AppendChildCase(ctx context.Context, descriptor any) error {
	return r.pushJSON(ctx, r.keys.ChildCaseList(), descriptor)
}

func (r *TaskRecord) UpdateChildCaseEntry(ctx context.Context, listIndex int, fields map[string]any) error {
	return r.lua.UpdateFieldsToList(ctx, r.keys.ChildCaseList(), listIndex, fields, r.ttl)
}

func (r *TaskRecord) UpdateChildCaseStatus(ctx context.Context, childCaseIndex int, fields map[string]any) error {
	return r.lua.UpdateFields(ctx, r.keys.ChildCaseStatus(childCaseIndex), fields, r.ttl)
}

func (r *TaskRecord) IncrementChildCaseStatus(ctx context.Context, childCaseIndex int, deltas map[string]int64) error {
	return r.lua.IncrementFields(ctx, r.keys.ChildCaseStatus(childCaseIndex), deltas, r.ttl)
}

func (r *TaskRecord) AppendChildCaseProcess(ctx context.Context, childCaseIndex int, events ...*ProcessObject) error {
	return r.pushJSON(ctx, r.keys.ChildCaseProcess(childCaseIndex), eventsToAny(events)...)
}

func (r *TaskRecord) AppendStepProcess(ctx context.Context, spi spec.SPI, events ...*ProcessObject) error {
	return r.pushJSON(ctx, r.keys.StepProcess(spi), eventsToAny(events)...)
}

func (r *TaskRecord) UpdateStepStatus(ctx context.Context, spi spec.SPI, fields map[string]any) error {
	return r.lua.UpdateFields(ctx, r.keys.StepStatus(spi), fields, r.ttl)
}

// AddDetail writes every field of a detail blob in one pipelined round-trip.
func (r *TaskRecord) AddDetail(ctx context.Context, detail *StepDetail) error {
	pipe := r.client.Pipeline()
	for field, payload := range detail.Data {
		key := r.keys.DetailField(detail.Type, detail.Index, field)
		pipe.Set(ctx, key, payload, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
