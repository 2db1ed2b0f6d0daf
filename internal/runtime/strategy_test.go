package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asynctest/asynctest/internal/spec"
)

// strategyChain is task → case → child case → failing step, with the error
// strategy installed on the failing step.
func strategyChain(stepStrategy string) (task, caseNode, cc, step *Node) {
	task = &Node{Key: "t", Kind: KindTask, Task: &spec.TaskInfo{ID: "t1", ErrorStrategy: StrategyRaise}}
	caseNode = &Node{Key: "c", Kind: KindCase, Case: &spec.Case{ID: "c1", ErrorStrategy: StrategyRaise}, parent: task}
	cc = &Node{Key: "cc", Kind: KindChildCase, ChildCase: &spec.ChildCase{CaseID: "c1", ErrorStrategy: StrategyRaise}, parent: caseNode}
	step = &Node{Key: "s", Kind: KindStep, Step: &spec.Step{ID: "s1", Type: spec.StepTypeScript, ErrorStrategy: stepStrategy}, parent: cc}
	return task, caseNode, cc, step
}

func TestStrategyRaiseEverywhereIsTransparent(t *testing.T) {
	task, caseNode, cc, step := strategyChain(StrategyRaise)
	target := ApplyErrorStrategy(step, false)
	assert.Nil(t, target)
	for _, n := range []*Node{task, caseNode, cc} {
		assert.Equal(t, StatusPending, n.Status(), n.Key)
	}
}

func TestStrategyCurrentStepIsNoOp(t *testing.T) {
	task, caseNode, cc, step := strategyChain(StrategyCurrentStep)
	target := ApplyErrorStrategy(step, false)
	assert.Nil(t, target)
	for _, n := range []*Node{task, caseNode, cc} {
		assert.Equal(t, StatusPending, n.Status(), n.Key)
	}
}

func TestStrategyCurrentCaseSkipsChildCase(t *testing.T) {
	_, caseNode, cc, step := strategyChain(StrategyCurrentCase)
	target := ApplyErrorStrategy(step, false)
	require.Same(t, cc, target)
	assert.Equal(t, StatusSkipped, cc.Status())
	assert.Equal(t, StatusPending, caseNode.Status())
}

func TestStrategyCaseSkipsMainCase(t *testing.T) {
	task, caseNode, _, step := strategyChain(StrategyCase)
	target := ApplyErrorStrategy(step, false)
	require.Same(t, caseNode, target)
	assert.Equal(t, StatusSkipped, caseNode.Status())
	assert.Equal(t, StatusPending, task.Status())
}

func TestStrategyTaskSkipsTask(t *testing.T) {
	task, _, _, step := strategyChain(StrategyTask)
	target := ApplyErrorStrategy(step, false)
	require.Same(t, task, target)
	assert.Equal(t, StatusSkipped, task.Status())
}

func TestStrategyAncestorDecidesWhenStepRaises(t *testing.T) {
	// The failing step is transparent; the child case's own strategy decides.
	_, _, cc, step := strategyChain(StrategyRaise)
	cc.ChildCase.ErrorStrategy = StrategyCurrentCase

	target := ApplyErrorStrategy(step, false)
	require.Same(t, cc, target)
	assert.Equal(t, StatusSkipped, cc.Status())
}

func TestStrategyMultitasker(t *testing.T) {
	_, _, cc, _ := strategyChain(StrategyRaise)

	mt := &Node{Key: "mt", Kind: KindStep, Step: &spec.Step{ID: "m", Type: spec.StepTypeMultitasker, ErrorStrategy: StrategyRaise}, parent: cc}
	iter := &Node{Key: "mt_0", Kind: KindStep, Step: &spec.Step{ID: "m", Type: spec.StepTypeChildMultitasker, ErrorStrategy: StrategyRaise}, parent: mt}
	failing := &Node{Key: "s", Kind: KindStep, Step: &spec.Step{ID: "s1", Type: spec.StepTypeScript, ErrorStrategy: StrategyMultitasker}, parent: iter}

	target := ApplyErrorStrategy(failing, false)
	require.Same(t, mt, target)
	assert.Equal(t, StatusSkipped, mt.Status())
	assert.Equal(t, StatusPending, iter.Status())
}

func TestStrategyCurrentMultitaskerSkipsOneIteration(t *testing.T) {
	_, _, cc, _ := strategyChain(StrategyRaise)

	mt := &Node{Key: "mt", Kind: KindStep, Step: &spec.Step{ID: "m", Type: spec.StepTypeMultitasker, ErrorStrategy: StrategyRaise}, parent: cc}
	iter := &Node{Key: "mt_0", Kind: KindStep, Step: &spec.Step{ID: "m", Type: spec.StepTypeChildMultitasker, ErrorStrategy: StrategyRaise}, parent: mt}
	failing := &Node{Key: "s", Kind: KindStep, Step: &spec.Step{ID: "s1", Type: spec.StepTypeScript, ErrorStrategy: StrategyCurrentMultitasker}, parent: iter}

	target := ApplyErrorStrategy(failing, false)
	require.Same(t, iter, target)
	assert.Equal(t, StatusSkipped, iter.Status())
	assert.Equal(t, StatusPending, mt.Status())
}

func TestStrategyRefCaseInnerDefersToCaseStrategy(t *testing.T) {
	// A nested-case step deferring to its inner case strategy "case" stops
	// the whole nested case, not the outer main case.
	_, caseNode, cc, _ := strategyChain(StrategyRaise)

	ref := &Node{Key: "ref", Kind: KindStep, Step: &spec.Step{
		ID: "ref", Type: spec.StepTypeCase,
		ErrorStrategy: StrategyRefCaseInner, CaseErrorStrategy: StrategyCase,
	}, parent: cc}
	inner := &Node{Key: "ref_0", Kind: KindStep, Step: &spec.Step{ID: "ref", Type: spec.StepTypeChildStepCase, ErrorStrategy: StrategyRaise}, parent: ref}
	failing := &Node{Key: "s", Kind: KindStep, Step: &spec.Step{ID: "s1", Type: spec.StepTypeScript, ErrorStrategy: StrategyRaise}, parent: inner}

	target := ApplyErrorStrategy(failing, true)
	require.Same(t, ref, target)
	assert.Equal(t, StatusSkipped, ref.Status())
	assert.Equal(t, StatusPending, caseNode.Status())
}

func TestStrategyRefCaseInnerRaiseStaysTransparent(t *testing.T) {
	// With the inner case strategy raise, the walk continues to the child
	// case; its current_case resolves to the running iteration inside the
	// nested case.
	_, _, cc, _ := strategyChain(StrategyRaise)
	cc.ChildCase.ErrorStrategy = StrategyCurrentCase

	ref := &Node{Key: "ref", Kind: KindStep, Step: &spec.Step{
		ID: "ref", Type: spec.StepTypeCase,
		ErrorStrategy: StrategyRefCaseInner, CaseErrorStrategy: StrategyRaise,
	}, parent: cc}
	inner := &Node{Key: "ref_0", Kind: KindStep, Step: &spec.Step{ID: "ref", Type: spec.StepTypeChildStepCase, ErrorStrategy: StrategyRaise}, parent: ref}
	failing := &Node{Key: "s", Kind: KindStep, Step: &spec.Step{ID: "s1", Type: spec.StepTypeScript, ErrorStrategy: StrategyRaise}, parent: inner}

	target := ApplyErrorStrategy(failing, true)
	require.Same(t, inner, target)
	assert.Equal(t, StatusSkipped, inner.Status())
	assert.Equal(t, StatusPending, cc.Status())
}

func TestStrategyRefChildCaseSkipsIteration(t *testing.T) {
	_, _, cc, _ := strategyChain(StrategyRaise)

	ref := &Node{Key: "ref", Kind: KindStep, Step: &spec.Step{ID: "ref", Type: spec.StepTypeCase, ErrorStrategy: StrategyRaise}, parent: cc}
	inner := &Node{Key: "ref_0", Kind: KindStep, Step: &spec.Step{ID: "ref", Type: spec.StepTypeChildStepCase, ErrorStrategy: StrategyRaise}, parent: ref}
	failing := &Node{Key: "s", Kind: KindStep, Step: &spec.Step{ID: "s1", Type: spec.StepTypeScript, ErrorStrategy: StrategyRefChildCase}, parent: inner}

	target := ApplyErrorStrategy(failing, true)
	require.Same(t, inner, target)
	assert.Equal(t, StatusSkipped, inner.Status())
	assert.Equal(t, StatusPending, ref.Status())
}

func TestStrategyNeverResurrectsTerminalNodes(t *testing.T) {
	_, _, cc, step := strategyChain(StrategyCurrentCase)
	cc.SetStatus(StatusEnd)

	target := ApplyErrorStrategy(step, false)
	require.Same(t, cc, target)
	assert.Equal(t, StatusEnd, cc.Status())
}
