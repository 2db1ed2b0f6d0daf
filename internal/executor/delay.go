package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/spec"
)

func init() {
	runtime.RegisterExecutor(spec.StepTypeDelay, func(run *runtime.StepRun) (runtime.NodeExecutor, error) {
		var opts delayOptions
		if err := decodeOptions(run, &opts); err != nil {
			return nil, err
		}
		return &delayExecutor{opts: opts}, nil
	})
}

// MaxDelayMilliseconds bounds one delay step; out-of-range values collapse to
// zero with a warning instead of failing the step.
const MaxDelayMilliseconds = 99999

type delayOptions struct {
	DelayTime int `json:"delay_time"`
}

type delayExecutor struct {
	opts delayOptions
}

func (e *delayExecutor) Execute(ctx context.Context, run *runtime.StepRun) (*record.CoreExecReturn, error) {
	delay := e.opts.DelayTime
	if delay < 0 || delay > MaxDelayMilliseconds {
		run.Warn(ctx, record.TypeDelayWarning,
			fmt.Sprintf("延时时间超出范围：[%d]，已自动转为：0", delay))
		delay = 0
	}

	if delay > 0 {
		timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ev := record.NewProcess(record.TypeDelaySuccess, fmt.Sprintf("延时完成：%dms", delay))
	run.Emit(ctx, ev)
	return record.Fanout(ev), nil
}
