package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/asynctest/asynctest/internal/logger"
	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/spec"
)

// stepRunner drives one step node of any type. Leaf types delegate their body
// to the registered node executor; container types build and schedule their
// child runners here. caseID names the step-mapping case the step's children
// resolve in, which differs from the telemetry case for nested case steps.
type stepRunner struct {
	eng    *Engine
	node   *Node
	step   *spec.Step
	caseID string
	inCase bool
}

func newStepRunner(eng *Engine, parent *Node, step *spec.Step, inCase bool) *stepRunner {
	node := eng.Tree.Register(&Node{
		Key:    spec.StepKey(parent.Key, step.ID),
		Kind:   KindStep,
		SPI:    parent.SPI.ChildStep(step.ID, step.Label),
		Step:   step,
		parent: parent,
	})
	node.SetCanSet(true)
	return &stepRunner{eng: eng, node: node, step: step, caseID: parent.SPI.CaseID, inCase: inCase}
}

// newVirtualStepRunner builds the runner of one loop iteration. The node key
// embeds the iteration index because every iteration shares the parent step's
// id.
func newVirtualStepRunner(eng *Engine, parent *Node, step *spec.Step, index int, caseID string, inCase bool) *stepRunner {
	label := fmt.Sprintf("第%d次循环", index+1)
	node := eng.Tree.Register(&Node{
		Key:    spec.ChildCaseKey(parent.Key, index),
		Kind:   KindStep,
		SPI:    parent.SPI.WithPosition(label),
		Step:   step,
		parent: parent,
	})
	for name, value := range step.TempVariables {
		node.TempSet(name, value)
	}
	node.SetCanSet(true)
	return &stepRunner{eng: eng, node: node, step: step, caseID: caseID, inCase: inCase}
}

func (r *stepRunner) Node() *Node { return r.node }

func (r *stepRunner) Before(ctx context.Context) (any, error) {
	if r.step.Check == spec.CheckNone {
		r.node.SetStatus(StatusSkipped)
	}
	return nil, nil
}

func (r *stepRunner) Run(ctx context.Context, pre any) error {
	r.node.SetStatus(StatusRunning)
	r.node.StampStart()
	em := emitter{engine: r.eng, node: r.node}
	em.sendStatus(ctx)

	running := record.NewProcess(record.TypeStepRunning, fmt.Sprintf("步骤开始执行：[%s]", r.step.Label))
	em.send(ctx, stepStreams(r.step, r.inCase, true), running)

	switch r.step.Type {
	case spec.StepTypeGroup:
		return r.runChildren(ctx, r.caseID, r.inCase)

	case spec.StepTypeIf:
		return r.runIf(ctx)

	case spec.StepTypeCase:
		return r.runLoop(ctx, spec.StepTypeChildStepCase)

	case spec.StepTypeMultitasker:
		return r.runLoop(ctx, spec.StepTypeChildMultitasker)

	case spec.StepTypeChildStepCase:
		return r.runChildren(ctx, r.caseID, true)

	case spec.StepTypeChildMultitasker:
		return r.runChildren(ctx, r.caseID, r.inCase)

	default:
		return r.runLeaf(ctx)
	}
}

// runLeaf dispatches to the registered executor and fans its return out to
// the aggregate streams.
func (r *stepRunner) runLeaf(ctx context.Context) error {
	run := &StepRun{Engine: r.eng, Node: r.node, Step: r.step, InCase: r.inCase}
	exec, err := newNodeExecutor(run)
	if err != nil {
		return err
	}
	core, err := exec.Execute(ctx, run)
	r.fanout(ctx, core)
	return err
}

// runIf evaluates the condition through the executor, then runs the children:
// on a false condition the node turns conditional first, so every child takes
// the skipped path and is recorded as such.
func (r *stepRunner) runIf(ctx context.Context) error {
	run := &StepRun{Engine: r.eng, Node: r.node, Step: r.step, InCase: r.inCase}
	exec, err := newNodeExecutor(run)
	if err != nil {
		return err
	}
	core, err := exec.Execute(ctx, run)
	r.fanout(ctx, core)
	if err != nil {
		return err
	}
	passed := false
	if core != nil {
		passed, _ = core.Result.(bool)
	}
	if !passed {
		r.node.SetStatus(StatusConditional)
	}
	return r.runChildren(ctx, r.caseID, r.inCase)
}

// runLoop expands a case or multitasker step into virtual iterations and runs
// them under the step's loop strategy.
func (r *stepRunner) runLoop(ctx context.Context, virtualType spec.StepType) error {
	driveType := record.TypeCaseDrive
	desc := fmt.Sprintf("用例驱动：[%s]", r.step.Label)
	childCaseID := r.refCaseID()
	childInCase := true
	if virtualType == spec.StepTypeChildMultitasker {
		driveType = record.TypeMultitaskerDrive
		desc = fmt.Sprintf("多任务驱动：[%s]", r.step.Label)
		childCaseID = r.caseID
		childInCase = r.inCase
	}
	em := emitter{engine: r.eng, node: r.node}
	em.send(ctx, stepStreams(r.step, r.inCase, false), record.NewProcess(driveType, desc))

	rows, err := expandLoop(ctx, r.eng, r.node, r.step)
	if err != nil {
		return err
	}
	runners := make([]Runner, 0, len(rows))
	for i, row := range rows {
		virtual := r.step.Virtual(virtualType, i, row)
		runners = append(runners, newVirtualStepRunner(r.eng, r.node, virtual, i, childCaseID, childInCase))
	}
	if isConcurrent(r.step.LoopStrategy) {
		r.eng.Scheduler.RunConcurrently(ctx, runners)
	} else {
		r.eng.Scheduler.RunSequentially(ctx, runners)
	}
	return nil
}

// runChildren schedules the step's child list sequentially within the given
// step-mapping case.
func (r *stepRunner) runChildren(ctx context.Context, caseID string, inCase bool) error {
	runners := make([]Runner, 0, len(r.step.Children))
	for _, stepID := range r.step.Children {
		child, err := r.eng.StepFor(caseID, stepID)
		if err != nil {
			return err
		}
		runners = append(runners, newStepRunner(r.eng, r.node, child, inCase))
	}
	r.eng.Scheduler.RunSequentially(ctx, runners)
	return nil
}

// refCaseID resolves the case a nested case step replays, falling back to the
// current mapping case.
func (r *stepRunner) refCaseID() string {
	opts := r.step.Options()
	for _, key := range []string{"case_id", "case"} {
		if v, ok := opts[key].(string); ok && v != "" {
			return v
		}
	}
	return r.caseID
}

func (r *stepRunner) fanout(ctx context.Context, core *record.CoreExecReturn) {
	if core == nil {
		return
	}
	set := stepStreams(r.step, r.inCase, false)
	em := emitter{engine: r.eng, node: r.node}
	if set.parent && len(core.Parent) > 0 {
		em.send(ctx, streamSet{parent: true}, core.Parent...)
	}
	if set.childCase && len(core.ChildCase) > 0 {
		em.send(ctx, streamSet{childCase: true}, core.ChildCase...)
	}
	if set.summary && len(core.Summary) > 0 {
		em.send(ctx, streamSet{summary: true}, core.Summary...)
	}
}

func (r *stepRunner) After(ctx context.Context, pre any) {
	r.node.StampEnd()
	switch {
	case r.node.Status() == StatusConditional:
		r.node.SetResult(ResultSuccess)
	case r.node.HasChildError():
		r.node.SetStatus(StatusErrorChild)
		r.node.SetResult(ResultErrorChild)
		if parent := r.node.Parent(); parent != nil {
			parent.MarkChildError()
		}
	case r.node.HasChildSkipped():
		r.node.SetStatus(StatusSkippedChild)
		r.node.SetResult(ResultSkippedChild)
	default:
		r.node.SetStatus(StatusEnd)
		r.node.SetResult(ResultSuccess)
	}
	r.countStep(ctx, "done_step_count")
	emitter{engine: r.eng, node: r.node}.sendStatus(ctx)
}

func (r *stepRunner) Error(ctx context.Context, err error, pre any) {
	r.node.StampEnd()

	var obj *record.ProcessObject
	var perr *record.ProcessError
	if errors.As(err, &perr) && perr.Object != nil {
		obj = perr.Object
	} else {
		obj = record.NewProcess(record.TypeSystemException, "系统错误："+err.Error())
	}
	obj.WithPosition(r.node.SPI.PositionList)
	em := emitter{engine: r.eng, node: r.node}
	em.send(ctx, stepStreams(r.step, r.inCase, false), obj)

	r.node.SetStatus(StatusError)
	r.node.SetResult(ResultErrorSelf)
	r.node.SetErrorInfo(obj.Desc)
	if parent := r.node.Parent(); parent != nil {
		parent.MarkChildError()
	}
	r.countStep(ctx, "failed_step_count")
	em.sendStatus(ctx)
	r.eng.NoteError(obj.Desc)

	ApplyErrorStrategy(r.node, r.inCase)
}

func (r *stepRunner) Skipped(ctx context.Context, pre any) {
	r.node.StampStart()
	r.node.StampEnd()
	r.node.SetResult(ResultSkippedSelf)

	em := emitter{engine: r.eng, node: r.node}
	skipped := record.NewProcess(record.TypeStepSkipped, fmt.Sprintf("步骤跳过：[%s]", r.step.Label))
	em.send(ctx, stepStreams(r.step, r.inCase, true), skipped)

	if parent := r.node.Parent(); parent != nil {
		parent.MarkChildSkipped()
	}
	r.countStep(ctx, "skipped_step_count")
	em.sendStatus(ctx)
}

// countStep bumps one child-case counter for real steps on the child case's
// own stream; nested-case internals and virtual iterations are not counted.
func (r *stepRunner) countStep(ctx context.Context, field string) {
	if r.inCase || r.step.Type.IsVirtual() || r.step.Type == spec.StepTypeEmpty {
		return
	}
	if err := r.eng.Emitter.IncrementChildCaseStatus(ctx, r.node.SPI.ChildCaseIndex, map[string]int64{
		field: 1,
	}); err != nil {
		logger.Warnf(ctx, "increment %s failed: %v", field, err)
	}
}
