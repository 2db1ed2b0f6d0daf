package runtime

import (
	"context"
	"sort"

	"github.com/asynctest/asynctest/internal/spec"
)

// caseRunner drives one main case: it collects the child cases instantiated
// from the case and runs them under the case's loop strategy. Main cases have
// no process stream of their own; their outcome surfaces through the child
// case records and the task summary.
type caseRunner struct {
	eng  *Engine
	node *Node
	c    *spec.Case
}

func newCaseRunner(eng *Engine, parent *Node, c *spec.Case) *caseRunner {
	node := eng.Tree.Register(&Node{
		Key:  spec.CaseKey(eng.Task.HexIndex, c.Index),
		Kind: KindCase,
		SPI: spec.SPI{
			Task:         eng.Task.HexIndex,
			CaseID:       c.ID,
			CaseIndex:    c.Index,
			PositionList: appendTo(parent.SPI.PositionList, c.Name),
		},
		Case:   c,
		parent: parent,
	})
	return &caseRunner{eng: eng, node: node, c: c}
}

func (r *caseRunner) Node() *Node { return r.node }

func (r *caseRunner) Before(ctx context.Context) (any, error) {
	children := make([]*spec.ChildCase, 0)
	for _, cc := range r.eng.ChildCases {
		if cc.CaseID == r.c.ID {
			children = append(children, cc)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].IndexInGlobalList < children[j].IndexInGlobalList
	})

	runners := make([]Runner, 0, len(children))
	for _, cc := range children {
		runners = append(runners, newChildCaseRunner(r.eng, r.node, cc))
	}
	return runners, nil
}

func (r *caseRunner) Run(ctx context.Context, pre any) error {
	r.node.SetStatus(StatusRunning)
	r.node.StampStart()

	runners := pre.([]Runner)
	if isConcurrent(r.c.LoopStrategy) {
		r.eng.Scheduler.RunConcurrently(ctx, runners)
	} else {
		r.eng.Scheduler.RunSequentially(ctx, runners)
	}
	return nil
}

func (r *caseRunner) After(ctx context.Context, pre any) {
	r.node.StampEnd()
	switch {
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
}

func (r *caseRunner) Error(ctx context.Context, err error, pre any) {
	r.node.StampEnd()
	r.node.SetStatus(StatusError)
	r.node.SetResult(ResultErrorSelf)
	r.node.SetErrorInfo(err.Error())
	if parent := r.node.Parent(); parent != nil {
		parent.MarkChildError()
	}
	r.eng.NoteError(err.Error())
}

func (r *caseRunner) Skipped(ctx context.Context, pre any) {
	r.node.StampStart()
	r.node.StampEnd()
	r.node.SetResult(ResultSkippedSelf)
	if parent := r.node.Parent(); parent != nil {
		parent.MarkChildSkipped()
	}
}

func appendTo(list []string, label string) []string {
	next := make([]string, 0, len(list)+1)
	next = append(next, list...)
	return append(next, label)
}
