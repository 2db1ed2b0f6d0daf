package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asynctest/asynctest/internal/spec"
)

// scriptedEngine returns a fixed value for every script.
type scriptedEngine struct {
	value any
	err   error
}

func (s scriptedEngine) Run(context.Context, string, *ScriptContext) (any, error) {
	return s.value, s.err
}

func TestParseTimes(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{nil, 0},
		{3, 3},
		{int64(4), 4},
		{5.0, 5},
		{"6", 6},
		{-2, 0},
	}
	for _, tc := range cases {
		got, err := parseTimes(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := parseTimes("not a number")
	assert.Error(t, err)
	_, err = parseTimes([]string{"x"})
	assert.Error(t, err)
}

func TestExpandLoopTimes(t *testing.T) {
	eng := newBareEngine(t, nil)
	_, node := chainForCase(eng, &spec.Case{ID: "c1", ProjectID: "p", Env: "test"})

	rows, err := expandLoop(context.Background(), eng, node, &spec.Step{
		ID: "loop", Type: spec.StepTypeMultitasker,
		DriveStrategy: "times", LoopTimes: "3",
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Empty(t, rows[0])
}

func TestExpandLoopDatasetCappedAndCopied(t *testing.T) {
	data := make([]map[string]any, 150)
	for i := range data {
		data[i] = map[string]any{"i": i}
	}
	cache := &spec.GlobalCache{
		OriginDatasetMapping: map[string]map[string]*spec.DatasetEnv{
			"ds1": {"test": {Depend: 1, Data: data}},
		},
	}
	eng := newBareEngine(t, cache)
	_, node := chainForCase(eng, &spec.Case{ID: "c1", ProjectID: "p", Env: "test"})

	rows, err := expandLoop(context.Background(), eng, node, &spec.Step{
		ID: "loop", Type: spec.StepTypeCase,
		DriveStrategy: "dataset", DataSet: "ds1",
	})
	require.NoError(t, err)
	assert.Len(t, rows, eng.MaxGenerateLength)

	// Rows are copies; the cached dataset must stay untouched.
	rows[0]["i"] = -1
	assert.Equal(t, 0, data[0]["i"])
}

func TestExpandLoopDatasetMissing(t *testing.T) {
	eng := newBareEngine(t, nil)
	_, node := chainForCase(eng, &spec.Case{ID: "c1", ProjectID: "p", Env: "test"})

	_, err := expandLoop(context.Background(), eng, node, &spec.Step{
		ID: "loop", Type: spec.StepTypeCase,
		DriveStrategy: "dataset", DataSet: "ghost",
	})
	assert.Error(t, err)
}

func TestExpandLoopScriptDrive(t *testing.T) {
	eng := newBareEngine(t, nil)
	eng.Scripts = scriptedEngine{value: NewDataSet(
		map[string]any{"user": "a"},
		map[string]any{"user": "b"},
	)}
	_, node := chainForCase(eng, &spec.Case{ID: "c1", ProjectID: "p", Env: "test"})

	rows, err := expandLoop(context.Background(), eng, node, &spec.Step{
		ID: "loop", Type: spec.StepTypeMultitasker,
		DriveStrategy: "script", LoadLoopScript: "dataset(...)",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["user"])
}

func TestExpandLoopUnknownStrategy(t *testing.T) {
	eng := newBareEngine(t, nil)
	_, node := chainForCase(eng, &spec.Case{ID: "c1", ProjectID: "p", Env: "test"})

	_, err := expandLoop(context.Background(), eng, node, &spec.Step{
		ID: "loop", Type: spec.StepTypeCase, DriveStrategy: "telepathy",
	})
	assert.Error(t, err)
}

func TestNormalizeLoopResult(t *testing.T) {
	assert.Len(t, normalizeLoopResult(5, 100), 5)
	assert.Len(t, normalizeLoopResult(int64(7), 100), 7)
	assert.Len(t, normalizeLoopResult(2.9, 100), 2)
	assert.Len(t, normalizeLoopResult(-4, 100), 4)
	assert.Len(t, normalizeLoopResult(500, 100), 100)

	assert.Len(t, normalizeLoopResult([]any{1, 2, 3}, 100), 3)
	assert.Len(t, normalizeLoopResult("abcd", 100), 4)
	assert.Len(t, normalizeLoopResult(map[string]any{"a": 1}, 100), 1)

	// A scalar with no size drives exactly one iteration.
	assert.Len(t, normalizeLoopResult(true, 100), 1)
	assert.Len(t, normalizeLoopResult(nil, 100), 1)

	ds := NewDataSet(map[string]any{"k": "v"}, map[string]any{"k": "w"})
	rows := normalizeLoopResult(ds, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, "v", rows[0]["k"])
}

func TestLoopStrategyConcurrency(t *testing.T) {
	assert.True(t, isConcurrent(LoopConcurrent))
	assert.True(t, isConcurrent("concurrent"))
	assert.False(t, isConcurrent("order"))
	assert.False(t, isConcurrent(""))
}
