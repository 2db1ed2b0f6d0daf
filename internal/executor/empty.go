package executor

import (
	"context"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/spec"
)

func init() {
	runtime.RegisterExecutor(spec.StepTypeEmpty, func(*runtime.StepRun) (runtime.NodeExecutor, error) {
		return emptyExecutor{}, nil
	})
}

// emptyExecutor is the placeholder step: it does nothing and leaves no trace
// on any stream.
type emptyExecutor struct{}

func (emptyExecutor) Execute(context.Context, *runtime.StepRun) (*record.CoreExecReturn, error) {
	return nil, nil
}
