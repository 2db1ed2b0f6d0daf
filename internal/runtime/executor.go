package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/spec"
	"github.com/asynctest/asynctest/internal/template"
)

// NodeExecutor runs the type-specific body of one step node. Implementations
// live in the executor package and register themselves by step type.
type NodeExecutor interface {
	Execute(ctx context.Context, run *StepRun) (*record.CoreExecReturn, error)
}

// ExecutorFactory builds an executor bound to one step run.
type ExecutorFactory func(run *StepRun) (NodeExecutor, error)

var (
	executorsMu sync.RWMutex
	executors   = map[spec.StepType]ExecutorFactory{}
)

// RegisterExecutor installs the factory for one step type; called from init
// functions of the executor package.
func RegisterExecutor(t spec.StepType, factory ExecutorFactory) {
	executorsMu.Lock()
	defer executorsMu.Unlock()
	executors[t] = factory
}

func newNodeExecutor(run *StepRun) (NodeExecutor, error) {
	executorsMu.RLock()
	factory, ok := executors[run.Step.Type]
	executorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no executor registered for step type %q", run.Step.Type)
	}
	return factory(run)
}

// StepRun is the execution context handed to a node executor: the node, its
// step definition, and helpers for variables, templating and self-stream
// telemetry.
type StepRun struct {
	Engine *Engine
	Node   *Node
	Step   *spec.Step
	InCase bool
}

// Vars returns the variable handle scoped to this node.
func (r *StepRun) Vars() *Variables {
	return NewVariables(r.Engine, r.Node)
}

// Render resolves variable and mock placeholders in text, picking the cache
// mode from the text itself.
func (r *StepRun) Render(text string) string {
	return template.NewExchange(text, r.Vars().Lookup(), template.AutoMode(text)).Replace()
}

// RenderValue resolves text preserving the native type of a lone placeholder.
func (r *StepRun) RenderValue(text string) any {
	return template.NewExchange(text, r.Vars().Lookup(), template.AutoMode(text)).ReplaceValue()
}

// Emit appends events to the node's own process stream.
func (r *StepRun) Emit(ctx context.Context, events ...*record.ProcessObject) {
	emitter{engine: r.Engine, node: r.Node}.send(ctx, streamSet{self: true}, events...)
}

// Warn is shorthand for a single self-stream event.
func (r *StepRun) Warn(ctx context.Context, t record.ProcessType, desc string) {
	r.Emit(ctx, record.NewProcess(t, desc))
}
