package runtime

import (
	"context"
	"sync"

	"github.com/asynctest/asynctest/internal/logger"
)

// Runner is the uniform lifecycle every tree level implements. Before builds
// the dynamic node and child runners; Run does the work; After and Error
// finalize; Skipped replaces Run+After when the node was short-circuited.
// Runners never return work errors from After/Error/Skipped: all error
// signaling happens through node status mutation.
type Runner interface {
	Node() *Node
	Before(ctx context.Context) (any, error)
	Run(ctx context.Context, pre any) error
	After(ctx context.Context, pre any)
	Error(ctx context.Context, err error, pre any)
	Skipped(ctx context.Context, pre any)
}

// Scheduler executes runner queues with bounded parallelism. One semaphore
// of capacity maxConcurrency gates the Run bodies of concurrently launched
// runners; Before and After are never gated, so dynamic children register
// even under saturation. Sequential execution is not gated: it adds no
// parallelism, and gating it would deadlock ancestor chains deeper than the
// capacity.
type Scheduler struct {
	sem chan struct{}
}

func NewScheduler(maxConcurrency int) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Scheduler{sem: make(chan struct{}, maxConcurrency)}
}

// Execute drives one runner through its full lifecycle.
func (s *Scheduler) Execute(ctx context.Context, r Runner) {
	s.execute(ctx, r, false)
}

// RunSequentially processes runners strictly in order, finishing each before
// starting the next.
func (s *Scheduler) RunSequentially(ctx context.Context, runners []Runner) {
	for _, r := range runners {
		s.execute(ctx, r, false)
	}
}

// RunConcurrently launches every runner eagerly and waits for all of them.
func (s *Scheduler) RunConcurrently(ctx context.Context, runners []Runner) {
	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			s.execute(ctx, r, true)
		}(r)
	}
	wg.Wait()
}

func (s *Scheduler) execute(ctx context.Context, r Runner, gated bool) {
	node := r.Node()

	pre, err := r.Before(ctx)
	if err != nil {
		logger.Debugf(ctx, "runner before failed: key=%s err=%v", node.Key, err)
		r.Error(ctx, err, pre)
		return
	}

	if shouldSkip(node) {
		node.SetStatus(StatusSkipped)
		r.Skipped(ctx, pre)
		return
	}

	if gated {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			node.SetStatus(StatusSkipped)
			r.Skipped(ctx, pre)
			return
		}
	}
	err = r.Run(ctx, pre)
	if gated {
		<-s.sem
	}

	if err != nil {
		r.Error(ctx, err, pre)
		return
	}
	r.After(ctx, pre)
}

// shouldSkip implements the check made immediately after Before: the node
// takes the skipped path when it was pre-marked skipped or when any ancestor
// is in a blocking terminal state.
func shouldSkip(node *Node) bool {
	if node.Status() == StatusSkipped {
		return true
	}
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Status().Blocking() {
			return true
		}
	}
	return false
}

// InFlight returns the number of gated Run bodies currently executing;
// exposed for tests of the concurrency bound.
func (s *Scheduler) InFlight() int {
	return len(s.sem)
}
