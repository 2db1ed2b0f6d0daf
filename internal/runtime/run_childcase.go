package runtime

import (
	"context"
	"fmt"

	"github.com/asynctest/asynctest/internal/logger"
	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/spec"
)

// childCaseRunner drives one concrete instantiation of a main case: it owns
// the child case's temp scope, its list entry and status blob, and the
// ordered run of its top-level steps.
type childCaseRunner struct {
	eng  *Engine
	node *Node
	cc   *spec.ChildCase
}

func newChildCaseRunner(eng *Engine, parent *Node, cc *spec.ChildCase) *childCaseRunner {
	label := cc.Desc
	if label == "" {
		label = cc.CaseName
	}
	spi := parent.SPI
	spi.ChildCaseIndex = cc.IndexInGlobalList
	spi.PositionList = appendTo(parent.SPI.PositionList, label)

	node := eng.Tree.Register(&Node{
		Key:       spec.ChildCaseKey(parent.Key, cc.Index),
		Kind:      KindChildCase,
		SPI:       spi,
		ChildCase: cc,
		parent:    parent,
	})
	for name, value := range cc.TempVariables {
		node.TempSet(name, value)
	}
	node.SetCanSet(true)
	return &childCaseRunner{eng: eng, node: node, cc: cc}
}

func (r *childCaseRunner) Node() *Node { return r.node }

func (r *childCaseRunner) Before(ctx context.Context) (any, error) {
	entry := *r.cc
	entry.Status = r.node.Status().String()
	if err := r.eng.Emitter.AppendChildCase(ctx, &entry); err != nil {
		return nil, fmt.Errorf("append child case entry: %w", err)
	}
	if err := r.eng.Emitter.UpdateChildCaseStatus(ctx, r.cc.IndexInGlobalList, map[string]any{
		"status":             r.node.Status().String(),
		"result":             r.node.Result().String(),
		"case_id":            r.cc.CaseID,
		"case_name":          r.cc.CaseName,
		"index":              r.cc.Index,
		"done_step_count":    0,
		"failed_step_count":  0,
		"skipped_step_count": 0,
	}); err != nil {
		logger.Warnf(ctx, "init child case status failed: %v", err)
	}

	r.runBeforeScript(ctx)

	runners := make([]Runner, 0, len(r.cc.OriginChildSteps))
	for _, stepID := range r.cc.OriginChildSteps {
		step, err := r.eng.StepFor(r.cc.CaseID, stepID)
		if err != nil {
			return nil, err
		}
		runners = append(runners, newStepRunner(r.eng, r.node, step, false))
	}
	return runners, nil
}

// runBeforeScript executes the main case's before script once per case and
// replays its captured print output on every child case stream.
func (r *childCaseRunner) runBeforeScript(ctx context.Context) {
	caseNode := r.node.Parent()
	if caseNode == nil || caseNode.Case == nil || caseNode.Case.BeforeScript == "" {
		return
	}
	caseID := caseNode.Case.ID

	prints, ran := r.eng.Cache.BeforeScriptPrints(caseID)
	if !ran {
		var captured []string
		_, err := r.eng.Scripts.Run(ctx, caseNode.Case.BeforeScript, &ScriptContext{
			Vars:     NewVariables(r.eng, r.node),
			Print:    func(line string) { captured = append(captured, line) },
			Position: r.node.SPI.PositionList,
			Engine:   r.eng,
			Node:     r.node,
		})
		if err != nil {
			captured = append(captured, "前置脚本执行异常："+err.Error())
		}
		r.eng.Cache.SetBeforeScriptPrints(caseID, captured)
		prints = captured
	}
	for _, line := range prints {
		ev := record.NewProcess(record.TypeActionScriptPrint, line)
		emitter{engine: r.eng, node: r.node}.send(ctx, streamSet{childCase: true}, ev)
	}
}

func (r *childCaseRunner) Run(ctx context.Context, pre any) error {
	r.node.SetStatus(StatusRunning)
	r.node.StampStart()
	emitter{engine: r.eng, node: r.node}.sendStatus(ctx)
	start, _ := r.node.Span()
	r.updateEntry(ctx, map[string]any{
		"status": r.node.Status().String(),
		"start":  start,
	})

	r.eng.Scheduler.RunSequentially(ctx, pre.([]Runner))
	return nil
}

func (r *childCaseRunner) After(ctx context.Context, pre any) {
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
		if parent := r.node.Parent(); parent != nil {
			parent.MarkChildSkipped()
		}
	default:
		r.node.SetStatus(StatusEnd)
		r.node.SetResult(ResultSuccess)
	}
	r.finalize(ctx)
}

func (r *childCaseRunner) Error(ctx context.Context, err error, pre any) {
	r.node.StampEnd()
	r.node.SetStatus(StatusError)
	r.node.SetResult(ResultErrorSelf)
	r.node.SetErrorInfo(err.Error())
	if parent := r.node.Parent(); parent != nil {
		parent.MarkChildError()
	}
	r.eng.NoteError(err.Error())

	ev := record.NewProcess(record.TypeSystemException, "系统错误："+err.Error())
	emitter{engine: r.eng, node: r.node}.send(ctx, streamSet{childCase: true, summary: true}, ev)
	r.finalize(ctx)
}

func (r *childCaseRunner) Skipped(ctx context.Context, pre any) {
	r.node.StampStart()
	r.node.StampEnd()
	r.node.SetResult(ResultSkippedSelf)
	if parent := r.node.Parent(); parent != nil {
		parent.MarkChildSkipped()
	}
	r.finalize(ctx)
}

// finalize projects the terminal state into the status blob and the list
// entry, and counts the child case as done on record info.
func (r *childCaseRunner) finalize(ctx context.Context) {
	emitter{engine: r.eng, node: r.node}.sendStatus(ctx)
	start, end := r.node.Span()
	r.updateEntry(ctx, map[string]any{
		"status": r.node.Status().String(),
		"start":  start,
		"end":    end,
	})
	if err := r.eng.Emitter.IncrementRecordInfo(ctx, map[string]int64{
		"done_child_case_count": 1,
	}); err != nil {
		logger.Warnf(ctx, "increment done child case count failed: %v", err)
	}
}

func (r *childCaseRunner) updateEntry(ctx context.Context, fields map[string]any) {
	if err := r.eng.Emitter.UpdateChildCaseEntry(ctx, r.cc.IndexInGlobalList, fields); err != nil {
		logger.Warnf(ctx, "update child case entry failed: index=%d err=%v", r.cc.IndexInGlobalList, err)
	}
}
