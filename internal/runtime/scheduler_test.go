package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records which lifecycle hooks fired.
type fakeRunner struct {
	node *Node

	beforeErr error
	runErr    error
	onRun     func(ctx context.Context)

	mu    sync.Mutex
	calls []string
}

func (f *fakeRunner) Node() *Node { return f.node }

func (f *fakeRunner) Before(ctx context.Context) (any, error) {
	f.record("before")
	return nil, f.beforeErr
}

func (f *fakeRunner) Run(ctx context.Context, pre any) error {
	f.record("run")
	if f.onRun != nil {
		f.onRun(ctx)
	}
	return f.runErr
}

func (f *fakeRunner) After(ctx context.Context, pre any)            { f.record("after") }
func (f *fakeRunner) Error(ctx context.Context, err error, pre any) { f.record("error") }
func (f *fakeRunner) Skipped(ctx context.Context, pre any)          { f.record("skipped") }

func (f *fakeRunner) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestSchedulerLifecycleOrder(t *testing.T) {
	s := NewScheduler(2)
	r := &fakeRunner{node: &Node{Key: "n"}}
	s.Execute(context.Background(), r)
	assert.Equal(t, []string{"before", "run", "after"}, r.Calls())
}

func TestSchedulerBeforeFailureRoutesToError(t *testing.T) {
	s := NewScheduler(2)
	r := &fakeRunner{node: &Node{Key: "n"}, beforeErr: assert.AnError}
	s.Execute(context.Background(), r)
	assert.Equal(t, []string{"before", "error"}, r.Calls())
}

func TestSchedulerRunFailureRoutesToError(t *testing.T) {
	s := NewScheduler(2)
	r := &fakeRunner{node: &Node{Key: "n"}, runErr: assert.AnError}
	s.Execute(context.Background(), r)
	assert.Equal(t, []string{"before", "run", "error"}, r.Calls())
}

func TestSchedulerSkipsPreMarkedNode(t *testing.T) {
	s := NewScheduler(2)
	node := &Node{Key: "n"}
	node.SetStatus(StatusSkipped)
	r := &fakeRunner{node: node}
	s.Execute(context.Background(), r)
	assert.Equal(t, []string{"before", "skipped"}, r.Calls())
}

func TestSchedulerSkipsUnderBlockingAncestor(t *testing.T) {
	s := NewScheduler(2)

	grand := &Node{Key: "grand"}
	grand.SetStatus(StatusConditional)
	parent := &Node{Key: "parent", parent: grand}
	child := &Node{Key: "child", parent: parent}

	r := &fakeRunner{node: child}
	s.Execute(context.Background(), r)
	assert.Equal(t, []string{"before", "skipped"}, r.Calls())
	assert.Equal(t, StatusSkipped, child.Status())

	// error_child on an ancestor is terminal but not blocking.
	grand.SetStatus(StatusErrorChild)
	other := &Node{Key: "other", parent: grand}
	r2 := &fakeRunner{node: other}
	s.Execute(context.Background(), r2)
	assert.Equal(t, []string{"before", "run", "after"}, r2.Calls())
}

func TestSchedulerBoundsConcurrentRuns(t *testing.T) {
	const capacity = 3
	s := NewScheduler(capacity)

	var mu sync.Mutex
	inFlight, maxSeen := 0, 0

	runners := make([]Runner, 12)
	for i := range runners {
		runners[i] = &fakeRunner{
			node: &Node{Key: "n"},
			onRun: func(ctx context.Context) {
				mu.Lock()
				inFlight++
				if inFlight > maxSeen {
					maxSeen = inFlight
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
			},
		}
	}

	s.RunConcurrently(context.Background(), runners)

	require.Equal(t, 0, s.InFlight())
	assert.LessOrEqual(t, maxSeen, capacity)
	assert.Greater(t, maxSeen, 1)
}

func TestSchedulerConcurrentCancelSkipsWaiters(t *testing.T) {
	s := NewScheduler(1)
	ctx, cancel := context.WithCancel(context.Background())

	blocker := &fakeRunner{
		node: &Node{Key: "blocker"},
		onRun: func(ctx context.Context) {
			cancel()
			time.Sleep(20 * time.Millisecond)
		},
	}
	waiter := &fakeRunner{node: &Node{Key: "waiter"}}

	s.RunConcurrently(ctx, []Runner{blocker, waiter})

	// The waiter either ran before the cancel or was skipped at the gate;
	// it must never be dropped without a terminal hook.
	calls := waiter.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Contains(t, []string{"after", "skipped"}, last)
}

func TestSchedulerSequentialIsNotGated(t *testing.T) {
	// Capacity 1 with a nested sequential chain must not deadlock.
	s := NewScheduler(1)
	inner := &fakeRunner{node: &Node{Key: "inner"}}
	outer := &fakeRunner{
		node: &Node{Key: "outer"},
		onRun: func(ctx context.Context) {
			s.RunSequentially(ctx, []Runner{inner})
		},
	}

	done := make(chan struct{})
	go func() {
		s.Execute(context.Background(), outer)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sequential execution deadlocked on the semaphore")
	}
	assert.Equal(t, []string{"before", "run", "after"}, inner.Calls())
}
