package executor

import (
	"context"
	"fmt"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/spec"
)

func init() {
	runtime.RegisterExecutor(spec.StepTypeIf, func(run *runtime.StepRun) (runtime.NodeExecutor, error) {
		var opts condOptions
		if err := decodeOptions(run, &opts); err != nil {
			return nil, err
		}
		return &ifExecutor{opts: opts}, nil
	})
	runtime.RegisterExecutor(spec.StepTypeError, func(run *runtime.StepRun) (runtime.NodeExecutor, error) {
		var opts condOptions
		if err := decodeOptions(run, &opts); err != nil {
			return nil, err
		}
		return &errorExecutor{opts: opts}, nil
	})
}

// Condition evaluation modes shared by if and error steps.
const (
	ConditionFast   = "fast"
	ConditionScript = "script"
)

type condOptions struct {
	ConditionType string `json:"condition_type"`

	// Fast form: two rendered operands and a comparator.
	Left       string `json:"left"`
	Comparator string `json:"comparator"`
	Right      string `json:"right"`

	// Script form.
	Script string `json:"script"`
}

// evaluate resolves the condition. Condition contexts are read-only: scripts
// here observe but never mutate variables.
func (o condOptions) evaluate(ctx context.Context, run *runtime.StepRun) (bool, error) {
	run.Node.SetCanSet(false)
	defer run.Node.SetCanSet(true)

	switch o.ConditionType {
	case "", ConditionFast:
		left := run.RenderValue(o.Left)
		right := run.RenderValue(o.Right)
		return compare(o.Comparator, normalizeJSON(left), normalizeJSON(right))

	case ConditionScript:
		result, err := run.Engine.Scripts.Run(ctx, o.Script, &runtime.ScriptContext{
			Vars:     run.Vars(),
			Print:    func(desc string) { run.Warn(ctx, record.TypeActionScriptPrint, desc) },
			Warn:     func(desc string) { run.Warn(ctx, record.TypeActionWarning, desc) },
			Position: run.Node.SPI.PositionList,
			Database: databaseAccessor{eng: run.Engine},
			Engine:   run.Engine,
			Node:     run.Node,
		})
		if err != nil {
			return false, err
		}
		return truthy(result), nil

	default:
		return false, fmt.Errorf("未知条件类型：%s", o.ConditionType)
	}
}

// ifExecutor decides whether the child steps run; a failed condition is not a
// failure, it turns the node conditional and the children skip.
type ifExecutor struct {
	opts condOptions
}

func (e *ifExecutor) Execute(ctx context.Context, run *runtime.StepRun) (*record.CoreExecReturn, error) {
	passed, err := e.opts.evaluate(ctx, run)
	if err != nil {
		return nil, record.NewProcessError(record.TypeSystemException,
			fmt.Sprintf("条件执行异常：[%s] %s", run.Step.Label, err.Error()))
	}
	var ev *record.ProcessObject
	if passed {
		ev = record.NewProcess(record.TypeIfSuccess, fmt.Sprintf("条件成立：[%s]", run.Step.Label))
	} else {
		ev = record.NewProcess(record.TypeIfFailed, fmt.Sprintf("条件不成立：[%s]，子步骤将被跳过", run.Step.Label))
	}
	run.Emit(ctx, ev)
	core := record.Fanout(ev)
	core.Result = passed
	return core, nil
}

// errorExecutor raises a user-defined failure when its condition holds and
// does nothing otherwise.
type errorExecutor struct {
	opts condOptions
}

func (e *errorExecutor) Execute(ctx context.Context, run *runtime.StepRun) (*record.CoreExecReturn, error) {
	triggered, err := e.opts.evaluate(ctx, run)
	if err != nil {
		return nil, record.NewProcessError(record.TypeSystemException,
			fmt.Sprintf("条件执行异常：[%s] %s", run.Step.Label, err.Error()))
	}
	if triggered {
		return nil, record.NewProcessError(record.TypeErrorFailed,
			fmt.Sprintf("用户自定义错误：[%s]", run.Step.Label))
	}
	return nil, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}
