package spec

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepUnmarshalKeepsRawOptions(t *testing.T) {
	payload := `{
		"id": "s1",
		"label": "login",
		"type": "interface",
		"check": "enabled",
		"method": "POST",
		"path": "/api/login",
		"should_raise": true,
		"raise_code": "403"
	}`
	var step Step
	require.NoError(t, json.Unmarshal([]byte(payload), &step))

	assert.Equal(t, "s1", step.ID)
	assert.Equal(t, StepTypeInterface, step.Type)
	assert.True(t, step.ShouldRaise)
	assert.Equal(t, "403", step.RaiseCode)
	assert.Equal(t, "POST", step.Options()["method"])
	assert.Equal(t, "/api/login", step.Options()["path"])
}

func TestStepTypeTraits(t *testing.T) {
	assert.True(t, StepTypeGroup.HasChildren())
	assert.True(t, StepTypeCase.IsLoopDriven())
	assert.True(t, StepTypeChildStepCase.IsVirtual())
	assert.False(t, StepTypeInterface.HasChildren())
	assert.False(t, StepTypeInterface.IsVirtual())
}

func TestVirtualStepInheritsChildrenAndOptions(t *testing.T) {
	var step Step
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "loop1",
		"label": "drive",
		"type": "case",
		"children": ["a", "b"],
		"case_id": "case-9"
	}`), &step))

	v := step.Virtual(StepTypeChildStepCase, 2, map[string]any{"row": 1})
	assert.Equal(t, StepTypeChildStepCase, v.Type)
	assert.Equal(t, []string{"a", "b"}, v.Children)
	assert.Equal(t, map[string]any{"row": 1}, v.TempVariables)
	assert.Equal(t, "case-9", v.Options()["case_id"])

	// The virtual child owns its slice; mutating it must not leak back.
	v.Children[0] = "x"
	assert.Equal(t, "a", step.Children[0])
}

func TestDynamicMappingKeys(t *testing.T) {
	task := TaskKey("abc123")
	assert.Equal(t, "abc123_task", task)

	c := CaseKey("abc123", 0)
	assert.Equal(t, "abc123_0_case", c)

	cc := ChildCaseKey(c, 3)
	assert.Equal(t, "abc123_0_case_3_child_case", cc)

	assert.Equal(t, "abc123_0_case_3_child_case_s1_step", StepKey(cc, "s1"))
}

func TestSPIDerivation(t *testing.T) {
	root := SPI{Task: "abc", CaseID: "c1", CaseIndex: 0, PositionList: []string{"task", "case"}}

	step := root.ChildStep("s1", "step one")
	assert.Equal(t, "s1", step.StepID)
	assert.Equal(t, []string{"task", "case", "step one"}, step.PositionList)
	// Derivation copies the breadcrumb.
	assert.Equal(t, []string{"task", "case"}, root.PositionList)

	virtual := step.WithPosition("iteration")
	assert.Equal(t, "s1", virtual.StepID)
	assert.Equal(t, []string{"task", "case", "step one", "iteration"}, virtual.PositionList)
}

func TestDecodeSubmissionValidates(t *testing.T) {
	body := `{
		"exec": {
			"task_info": {"id": "t1", "hex_index": "abc", "name": "demo", "project_id": "p", "env": "test", "loop_strategy": "order", "error_strategy": "raise"},
			"case_list": [{"id": "c1", "name": "case", "project_id": "p", "env": "test", "drive_strategy": "times", "loop_strategy": "order", "error_strategy": "raise", "index": 0}],
			"child_case_list": [{"case_id": "c1", "case_name": "case", "temp_variables": {}, "origin_child_steps": ["s1"], "index": 0, "index_in_global_list": 0}],
			"step_mapping": {"c1": {"s1": {"id": "s1", "label": "step", "type": "script", "check": "enabled"}}}
		},
		"record": {"id": 9, "record_backup_index": "record:9:abc"}
	}`
	sub, err := DecodeSubmission(strings.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, sub.Validate())
	assert.NotNil(t, sub.Exec.GlobalCache)
	assert.Equal(t, "record:9:abc", sub.Record.RecordBackupIndex)
}

func TestDecodeSubmissionRejectsDanglingChildCase(t *testing.T) {
	body := `{
		"exec": {
			"task_info": {"id": "t1", "hex_index": "abc", "name": "demo"},
			"case_list": [],
			"child_case_list": [{"case_id": "ghost", "case_name": "case", "origin_child_steps": [], "index": 0, "index_in_global_list": 0}],
			"step_mapping": {}
		},
		"record": {"id": 9, "record_backup_index": "record:9:abc"}
	}`
	sub, err := DecodeSubmission(strings.NewReader(body))
	require.NoError(t, err)
	assert.ErrorIs(t, sub.Validate(), ErrInvalidSubmission)
}

func TestDatasetFallbackIsDeterministic(t *testing.T) {
	cache := &GlobalCache{
		OriginDatasetMapping: map[string]map[string]*DatasetEnv{
			"ds1": {
				"prod": {Depend: 0, IsDefault: false, Data: []map[string]any{{"env": "prod"}}},
				"beta": {Depend: 0, IsDefault: true, Data: []map[string]any{{"env": "beta"}}},
				"alfa": {Depend: 0, IsDefault: true, Data: []map[string]any{{"env": "alfa"}}},
			},
		},
	}
	// The requested env has no rows of its own (depend==0), so the fallback
	// picks the first default in sorted env-name order.
	for range 10 {
		ds := cache.Dataset("ds1", "prod")
		require.NotNil(t, ds)
		assert.Equal(t, "alfa", ds.Data[0]["env"])
	}
}

func TestDatasetDirectHit(t *testing.T) {
	cache := &GlobalCache{
		OriginDatasetMapping: map[string]map[string]*DatasetEnv{
			"ds1": {
				"test": {Depend: 1, Data: []map[string]any{{"k": "v"}}},
			},
		},
	}
	ds := cache.Dataset("ds1", "test")
	require.NotNil(t, ds)
	assert.Equal(t, "v", ds.Data[0]["k"])
	assert.Nil(t, cache.Dataset("missing", "test"))
}

func TestGlobalCacheVariableIsolation(t *testing.T) {
	cache := &GlobalCache{
		OriginProjectEnvVarMapping: map[string]map[string]map[string]any{
			"p": {"test": {"token": "abc"}},
		},
	}
	vars := cache.EnvVariables("p", "test")
	vars["token"] = "mutated"
	assert.Equal(t, "abc", cache.EnvVariables("p", "test")["token"])

	cache.SetEnvVariable("p", "test", "fresh", 1)
	assert.Equal(t, 1, cache.EnvVariables("p", "test")["fresh"])

	cache.SetGlobalVariable("g", true)
	v, ok := cache.GlobalVariable("g")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestBeforeScriptPrintCache(t *testing.T) {
	cache := &GlobalCache{}
	_, ran := cache.BeforeScriptPrints("c1")
	assert.False(t, ran)

	cache.SetBeforeScriptPrints("c1", nil)
	prints, ran := cache.BeforeScriptPrints("c1")
	assert.True(t, ran)
	assert.Empty(t, prints)
}
