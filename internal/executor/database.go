package executor

import (
	"context"
	"fmt"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/spec"
)

func init() {
	runtime.RegisterExecutor(spec.StepTypeDatabase, func(run *runtime.StepRun) (runtime.NodeExecutor, error) {
		var opts databaseOptions
		if err := decodeOptions(run, &opts); err != nil {
			return nil, err
		}
		return &databaseExecutor{opts: opts}, nil
	})
}

type databaseExtract struct {
	Expression string `json:"expression"`
	Variable   string `json:"variable"`
	Scope      string `json:"scope"`
}

type databaseOptions struct {
	DatabaseID string            `json:"database_id"`
	SQL        string            `json:"sql"`
	Extract    []databaseExtract `json:"extract"`
}

// databaseExecutor runs one query through the shared pools and extracts
// values from the row set into variables with jq expressions.
type databaseExecutor struct {
	opts databaseOptions
}

func (e *databaseExecutor) Execute(ctx context.Context, run *runtime.StepRun) (*record.CoreExecReturn, error) {
	sql := run.Render(e.opts.SQL)
	rows, err := databaseAccessor{eng: run.Engine}.Query(ctx, e.opts.DatabaseID, sql)
	if err != nil {
		return nil, record.NewProcessError(record.TypeDatabaseException,
			fmt.Sprintf("数据库执行异常：[%s] %s", run.Step.Label, err.Error()))
	}

	doc := normalizeJSON(rows)
	for _, ex := range e.opts.Extract {
		value, err := evalJQ(doc, ex.Expression)
		if err != nil {
			return nil, record.NewProcessError(record.TypeDatabaseException,
				fmt.Sprintf("数据库执行异常：[%s] %s", run.Step.Label, err.Error()))
		}
		if err := run.Vars().Set(ex.Scope, ex.Variable, value); err != nil {
			run.Warn(ctx, record.TypeVariableWarning,
				fmt.Sprintf("变量写入被拒绝：%s（%s）", ex.Variable, err.Error()))
			continue
		}
		run.Warn(ctx, record.TypeActionExtract, fmt.Sprintf("提取变量：%s", ex.Variable))
	}

	ev := record.NewProcess(record.TypeActionScript,
		fmt.Sprintf("数据库执行完成：[%s]，返回 %d 行", run.Step.Label, len(rows)))
	run.Emit(ctx, ev)
	return nil, nil
}

// databaseAccessor adapts the engine's pools to the script capability surface
// and to the database executor itself.
type databaseAccessor struct {
	eng *runtime.Engine
}

func (a databaseAccessor) Query(ctx context.Context, databaseID, sql string) ([]map[string]any, error) {
	pool, err := a.eng.Databases.Pool(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, field := range fields {
			row[string(field.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
