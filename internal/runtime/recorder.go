package runtime

import (
	"context"

	"github.com/asynctest/asynctest/internal/logger"
	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/spec"
)

// streamSet selects which telemetry streams an emission reaches.
type streamSet struct {
	self      bool
	parent    bool
	childCase bool
	summary   bool
}

var allStreams = streamSet{self: true, parent: true, childCase: true, summary: true}

// stepStreams implements the visibility rules: steps inside a nested case
// only write their own stream; virtual multitasker iterations have no stream
// of their own; empty steps are invisible everywhere; the running/skipped
// markers of interface and assertion steps stay off the aggregate streams
// because their executors emit richer events.
func stepStreams(step *spec.Step, inCase, marker bool) streamSet {
	s := allStreams
	switch step.Type {
	case spec.StepTypeEmpty:
		return streamSet{}
	case spec.StepTypeChildMultitasker:
		s.self = false
	}
	if inCase {
		s.parent, s.childCase, s.summary = false, false, false
	}
	if marker && (step.Type == spec.StepTypeInterface || step.Type == spec.StepTypeAssertion) {
		s.parent, s.childCase, s.summary = false, false, false
	}
	return s
}

// emitter fans process events out to the selected streams of one node.
// Telemetry failures are logged and swallowed: observability must never fail
// a run.
type emitter struct {
	engine *Engine
	node   *Node
}

func (e emitter) send(ctx context.Context, set streamSet, events ...*record.ProcessObject) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		if ev.PositionList == nil {
			ev.PositionList = e.node.SPI.PositionList
		}
	}
	sink := e.engine.Emitter

	if set.self && e.node.SPI.StepID != "" {
		if err := sink.AppendStepProcess(ctx, e.node.SPI, events...); err != nil {
			logger.Warnf(ctx, "append step process failed: %v", err)
		}
	}
	if set.parent {
		if parent := e.node.Parent(); parent != nil && parent.Kind == KindStep && parent.SPI.StepID != "" {
			if parentSet := stepStreams(parent.Step, false, false); parentSet.self {
				if err := sink.AppendStepProcess(ctx, parent.SPI, events...); err != nil {
					logger.Warnf(ctx, "append parent step process failed: %v", err)
				}
			}
		}
	}
	if set.childCase {
		if err := sink.AppendChildCaseProcess(ctx, e.node.SPI.ChildCaseIndex, events...); err != nil {
			logger.Warnf(ctx, "append child case process failed: %v", err)
		}
	}
	if set.summary {
		if err := sink.AppendSummary(ctx, events...); err != nil {
			logger.Warnf(ctx, "append summary process failed: %v", err)
		}
	}
}

// sendStatus projects the node's volatile state into its status blob.
func (e emitter) sendStatus(ctx context.Context) {
	start, end := e.node.Span()
	fields := map[string]any{
		"status": e.node.Status().String(),
		"result": e.node.Result().String(),
		"start":  start,
		"end":    end,
	}
	var err error
	switch e.node.Kind {
	case KindStep:
		err = e.engine.Emitter.UpdateStepStatus(ctx, e.node.SPI, fields)
	case KindChildCase:
		err = e.engine.Emitter.UpdateChildCaseStatus(ctx, e.node.SPI.ChildCaseIndex, fields)
	default:
		return
	}
	if err != nil {
		logger.Warnf(ctx, "update status failed: key=%s err=%v", e.node.Key, err)
	}
}
