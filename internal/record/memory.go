package record

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/asynctest/asynctest/internal/spec"
)

// MemoryEmitter is an in-memory Emitter used by tests and dry runs. It keys
// its storage with the same key builder as the Redis writer, so tests assert
// against the real key schema.
type MemoryEmitter struct {
	mu    sync.Mutex
	keys  Keys
	Blobs map[string]map[string]any
	Lists map[string][]any
}

var _ Emitter = (*MemoryEmitter)(nil)

func NewMemoryEmitter(recordBackupIndex string) *MemoryEmitter {
	return &MemoryEmitter{
		keys:  NewKeys(recordBackupIndex),
		Blobs: map[string]map[string]any{},
		Lists: map[string][]any{},
	}
}

// KeysOf exposes the key builder for assertions.
func (m *MemoryEmitter) KeysOf() Keys { return m.keys }

func (m *MemoryEmitter) writeBlob(key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Blobs[key] = fields
	return nil
}

func (m *MemoryEmitter) updateBlob(key string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.Blobs[key]
	if !ok {
		blob = map[string]any{}
		m.Blobs[key] = blob
	}
	for k, v := range fields {
		blob[k] = v
	}
}

func (m *MemoryEmitter) incrementBlob(key string, deltas map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.Blobs[key]
	if !ok {
		blob = map[string]any{}
		m.Blobs[key] = blob
	}
	for k, d := range deltas {
		base, _ := blob[k].(int64)
		if f, ok := blob[k].(float64); ok {
			base = int64(f)
		}
		blob[k] = base + d
	}
}

func (m *MemoryEmitter) push(key string, values ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lists[key] = append(m.Lists[key], values...)
}

// List returns a copy of the list at key.
func (m *MemoryEmitter) List(key string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.Lists[key]))
	copy(out, m.Lists[key])
	return out
}

// Blob returns the blob at key, or nil.
func (m *MemoryEmitter) Blob(key string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Blobs[key]
}

// Events returns the process events of a list key.
func (m *MemoryEmitter) Events(key string) []*ProcessObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ProcessObject
	for _, v := range m.Lists[key] {
		if e, ok := v.(*ProcessObject); ok {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryEmitter) WriteTaskInfo(_ context.Context, info any) error {
	return m.writeBlob(m.keys.TaskInfo(), info)
}

func (m *MemoryEmitter) UpdateTaskInfo(_ context.Context, fields map[string]any) error {
	m.updateBlob(m.keys.TaskInfo(), fields)
	return nil
}

func (m *MemoryEmitter) WriteRecordInfo(_ context.Context, rec any) error {
	return m.writeBlob(m.keys.RecordInfo(), rec)
}

func (m *MemoryEmitter) UpdateRecordInfo(_ context.Context, fields map[string]any) error {
	m.updateBlob(m.keys.RecordInfo(), fields)
	return nil
}

func (m *MemoryEmitter) IncrementRecordInfo(_ context.Context, deltas map[string]int64) error {
	m.incrementBlob(m.keys.RecordInfo(), deltas)
	return nil
}

func (m *MemoryEmitter) AppendSummary(_ context.Context, events ...*ProcessObject) error {
	m.push(m.keys.SummaryProcess(), eventsToAny(events)...)
	return nil
}

func (m *MemoryEmitter) AppendChildCase(_ context.Context, descriptor any) error {
	payload, err := json.Marshal(descriptor)
	if err != nil {
		return err
	}
	var entry map[string]any
	if err := json.Unmarshal(payload, &entry); err != nil {
		return err
	}
	m.push(m.keys.ChildCaseList(), entry)
	return nil
}

func (m *MemoryEmitter) UpdateChildCaseEntry(_ context.Context, listIndex int, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.Lists[m.keys.ChildCaseList()]
	if listIndex < 0 || listIndex >= len(list) {
		return nil
	}
	if entry, ok := list[listIndex].(map[string]any); ok {
		for k, v := range fields {
			entry[k] = v
		}
	}
	return nil
}

func (m *MemoryEmitter) UpdateChildCaseStatus(_ context.Context, childCaseIndex int, fields map[string]any) error {
	m.updateBlob(m.keys.ChildCaseStatus(childCaseIndex), fields)
	return nil
}

func (m *MemoryEmitter) IncrementChildCaseStatus(_ context.Context, childCaseIndex int, deltas map[string]int64) error {
	m.incrementBlob(m.keys.ChildCaseStatus(childCaseIndex), deltas)
	return nil
}

func (m *MemoryEmitter) AppendChildCaseProcess(_ context.Context, childCaseIndex int, events ...*ProcessObject) error {
	m.push(m.keys.ChildCaseProcess(childCaseIndex), eventsToAny(events)...)
	return nil
}

func (m *MemoryEmitter) AppendStepProcess(_ context.Context, spi spec.SPI, events ...*ProcessObject) error {
	m.push(m.keys.StepProcess(spi), eventsToAny(events)...)
	return nil
}

func (m *MemoryEmitter) UpdateStepStatus(_ context.Context, spi spec.SPI, fields map[string]any) error {
	m.updateBlob(m.keys.StepStatus(spi), fields)
	return nil
}

func (m *MemoryEmitter) AddDetail(_ context.Context, detail *StepDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for field, payload := range detail.Data {
		key := m.keys.DetailField(detail.Type, detail.Index, field)
		m.Blobs[key] = map[string]any{"value": payload}
	}
	return nil
}
