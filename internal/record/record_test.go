package record

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asynctest/asynctest/internal/spec"
)

func TestKeySchema(t *testing.T) {
	k := NewKeys("record:42:abc")

	assert.Equal(t, "record:42:abc:task_info", k.TaskInfo())
	assert.Equal(t, "record:42:abc:record_info", k.RecordInfo())
	assert.Equal(t, "record:42:abc:summary_record:process", k.SummaryProcess())
	assert.Equal(t, "record:42:abc:child_case_record:child_case_list", k.ChildCaseList())
	assert.Equal(t, "record:42:abc:child_case_record:7:process", k.ChildCaseProcess(7))
	assert.Equal(t, "record:42:abc:child_case_record:7:status", k.ChildCaseStatus(7))

	spi := spec.SPI{CaseID: "c1", ChildCaseIndex: 7, StepID: "s9"}
	assert.Equal(t,
		"record:42:abc:step_record:case:c1:child_case:7:step:s9:process",
		k.StepProcess(spi))
	assert.Equal(t,
		"record:42:abc:step_record:case:c1:child_case:7:step:s9:status",
		k.StepStatus(spi))

	assert.Equal(t,
		"record:42:abc:interface_success_detail:deadbeef:response",
		k.DetailField(DetailTypeInterfaceSuccess, "deadbeef", "response"))
}

func TestProcessObjectWireShape(t *testing.T) {
	detail := &StepDetail{Type: DetailTypeInterfaceError, Index: "idx1", Data: map[string]string{"request": "{}"}}
	ev := NewProcess(TypeInterfaceErrorFinished, "接口发送异常：[x]").
		WithDetail(detail).
		WithPosition([]string{"task", "case", "step"})

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "interface_error_finished", decoded["type"])
	assert.Equal(t, []any{"task", "case", "step"}, decoded["position_list"])
	assert.Equal(t, float64(0), decoded["times"])
	assert.NotZero(t, decoded["time"])
	assert.Equal(t, map[string]any{"type": "interface_error", "index": "idx1"}, decoded["detail"])
}

func TestProcessErrorCarriesObject(t *testing.T) {
	perr := NewProcessError(TypeAssertionFailed, "断言失败：[x]")
	assert.Equal(t, "断言失败：[x]", perr.Error())

	var target *ProcessError
	assert.True(t, errors.As(error(perr), &target))
	assert.Equal(t, TypeAssertionFailed, target.Object.Type)
}

func TestFanoutSharesEvents(t *testing.T) {
	ev := NewProcess(TypeSystem, "任务开始")
	core := Fanout(ev)
	assert.Equal(t, []*ProcessObject{ev}, core.Parent)
	assert.Equal(t, []*ProcessObject{ev}, core.ChildCase)
	assert.Equal(t, []*ProcessObject{ev}, core.Summary)
	assert.Nil(t, core.Result)
}

func TestMemoryEmitterRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryEmitter("record:1:aa")
	k := m.KeysOf()

	require.NoError(t, m.WriteRecordInfo(ctx, map[string]any{"status": "mid_running", "done_child_case_count": 0}))
	require.NoError(t, m.IncrementRecordInfo(ctx, map[string]int64{"done_child_case_count": 2}))
	require.NoError(t, m.UpdateRecordInfo(ctx, map[string]any{"status": "end"}))

	blob := m.Blob(k.RecordInfo())
	assert.Equal(t, "end", blob["status"])
	assert.Equal(t, int64(2), blob["done_child_case_count"])

	require.NoError(t, m.AppendChildCase(ctx, map[string]any{"case_id": "c1", "status": "mid_pending"}))
	require.NoError(t, m.UpdateChildCaseEntry(ctx, 0, map[string]any{"status": "end_normal"}))
	entries := m.List(k.ChildCaseList())
	require.Len(t, entries, 1)
	assert.Equal(t, "end_normal", entries[0].(map[string]any)["status"])

	spi := spec.SPI{CaseID: "c1", ChildCaseIndex: 0, StepID: "s1"}
	require.NoError(t, m.AppendStepProcess(ctx, spi, NewProcess(TypeStepRunning, "步骤开始执行：[a]")))
	events := m.Events(k.StepProcess(spi))
	require.Len(t, events, 1)
	assert.Equal(t, TypeStepRunning, events[0].Type)

	detail := &StepDetail{Type: DetailTypeInterfaceSuccess, Index: "idx", Data: map[string]string{"timing": `{"total_ms":5}`}}
	require.NoError(t, m.AddDetail(ctx, detail))
	assert.NotNil(t, m.Blob(k.DetailField(DetailTypeInterfaceSuccess, "idx", "timing")))
}

func TestBackupFilePath(t *testing.T) {
	b := NewBackupStore(nil, "/tmp/backups")
	got := b.FilePath("record:42:abc")
	assert.Equal(t, filepath.Join("/tmp/backups", "record_42_abc.json"), got)
}

func TestBackupEntryMarshal(t *testing.T) {
	entry := &BackupEntry{Type: "list", Value: json.RawMessage(`["a","b"]`), TTL: 3600}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"list","value":["a","b"],"ttl":3600}`, string(raw))

	var back BackupEntry
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, entry.Type, back.Type)
	assert.Equal(t, entry.TTL, back.TTL)
}

func TestPruneKeepsLiveBackups(t *testing.T) {
	dir := t.TempDir()
	b := NewBackupStore(nil, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "record_1_aa.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "record_2_bb.json"), []byte("{}"), 0o644))

	require.NoError(t, b.Prune([]string{"record:1:aa"}))

	_, err := os.Stat(filepath.Join(dir, "record_1_aa.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "record_2_bb.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreMissingFile(t *testing.T) {
	b := NewBackupStore(nil, t.TempDir())
	err := b.Restore(context.Background(), "record:9:zz")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}
