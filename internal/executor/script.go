package executor

import (
	"context"
	"fmt"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/spec"
)

func init() {
	runtime.RegisterExecutor(spec.StepTypeScript, func(run *runtime.StepRun) (runtime.NodeExecutor, error) {
		var opts scriptOptions
		if err := decodeOptions(run, &opts); err != nil {
			return nil, err
		}
		return &scriptExecutor{opts: opts}, nil
	})
}

type scriptOptions struct {
	Script string `json:"script"`
}

// scriptExecutor runs one user script with the full capability surface:
// variable writes, prints, and database queries through the shared pools.
type scriptExecutor struct {
	opts scriptOptions
}

func (e *scriptExecutor) Execute(ctx context.Context, run *runtime.StepRun) (*record.CoreExecReturn, error) {
	_, err := run.Engine.Scripts.Run(ctx, e.opts.Script, &runtime.ScriptContext{
		Vars:     run.Vars(),
		Print:    func(desc string) { run.Warn(ctx, record.TypeActionScriptPrint, desc) },
		Warn:     func(desc string) { run.Warn(ctx, record.TypeActionWarning, desc) },
		Position: run.Node.SPI.PositionList,
		Database: databaseAccessor{eng: run.Engine},
		Engine:   run.Engine,
		Node:     run.Node,
	})
	if err != nil {
		return nil, record.NewProcessError(record.TypeSystemException,
			fmt.Sprintf("脚本执行异常：[%s] %s", run.Step.Label, err.Error()))
	}
	ev := record.NewProcess(record.TypeActionScript, fmt.Sprintf("脚本执行完成：[%s]", run.Step.Label))
	run.Emit(ctx, ev)
	return nil, nil
}
