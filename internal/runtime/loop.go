package runtime

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/asynctest/asynctest/internal/spec"
)

// expandLoop converts the drive spec of a case or multitasker step into the
// temp-variable rows of its virtual children. Dataset and script drives are
// capped at MaxGenerateLength.
func expandLoop(ctx context.Context, eng *Engine, node *Node, step *spec.Step) ([]map[string]any, error) {
	switch step.DriveStrategy {
	case "times":
		n, err := parseTimes(step.LoopTimes)
		if err != nil {
			return nil, fmt.Errorf("parse loop times: %w", err)
		}
		return emptyRows(n), nil

	case "dataset":
		_, env := NewVariables(eng, node).envRef()
		ds := eng.Cache.Dataset(step.DataSet, env)
		if ds == nil {
			return nil, fmt.Errorf("dataset %s not found for env %s", step.DataSet, env)
		}
		rows := ds.Data
		if len(rows) > eng.MaxGenerateLength {
			rows = rows[:eng.MaxGenerateLength]
		}
		out := make([]map[string]any, len(rows))
		for i, row := range rows {
			out[i] = copyMap(row)
		}
		return out, nil

	case "script":
		result, err := eng.Scripts.Run(ctx, step.LoadLoopScript, &ScriptContext{
			Vars:     NewVariables(eng, node),
			Position: node.SPI.PositionList,
			Engine:   eng,
			Node:     node,
		})
		if err != nil {
			return nil, fmt.Errorf("run loop script: %w", err)
		}
		return normalizeLoopResult(result, eng.MaxGenerateLength), nil

	default:
		return nil, fmt.Errorf("unknown drive strategy %q", step.DriveStrategy)
	}
}

func parseTimes(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return max(t, 0), nil
	case int64:
		return max(int(t), 0), nil
	case float64:
		return max(int(t), 0), nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, err
		}
		return max(n, 0), nil
	default:
		return 0, fmt.Errorf("unsupported loop times value %v", v)
	}
}

// normalizeLoopResult maps an arbitrary script result onto loop rows:
// a DataSet contributes its rows, an integer-like value its absolute count,
// any sized value its length, everything else one iteration.
func normalizeLoopResult(result any, limit int) []map[string]any {
	switch t := result.(type) {
	case *DataSet:
		rows := t.Rows
		if len(rows) > limit {
			rows = rows[:limit]
		}
		out := make([]map[string]any, len(rows))
		for i, row := range rows {
			out[i] = copyMap(row)
		}
		return out
	case DataSet:
		return normalizeLoopResult(&t, limit)
	case int:
		return emptyRows(min(abs(t), limit))
	case int64:
		return emptyRows(min(abs(int(t)), limit))
	case float64:
		return emptyRows(min(abs(int(t)), limit))
	}

	rv := reflect.ValueOf(result)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return emptyRows(min(rv.Len(), limit))
	}
	return emptyRows(1)
}

func emptyRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{}
	}
	return rows
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
