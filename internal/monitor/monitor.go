// Package monitor guards a running executor process: it polls the resident
// set size against the configured limit, escalates through SIGUSR1 to a hard
// kill, and maps the resource signals onto typed cancellation causes the
// runtime reports as system errors.
package monitor

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/asynctest/asynctest/internal/logger"
)

// ErrMemoryLimit and ErrTimeout are the cancellation causes installed when
// the corresponding resource signal arrives.
var (
	ErrMemoryLimit = errors.New("task aborted: memory limit exceeded")
	ErrTimeout     = errors.New("task aborted: execution timed out")
)

const pollInterval = time.Second

// Monitor watches one process's memory. When usage crosses the limit it
// sends SIGUSR1 so the run can end gracefully; if usage is still over the
// limit after the grace window the process is killed.
type Monitor struct {
	proc    *process.Process
	limitMB float64
	grace   time.Duration
}

// New builds a monitor for the given pid; limitMB <= 0 disables the watch.
func New(pid int32, limitMB int, grace time.Duration) (*Monitor, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	return &Monitor{proc: proc, limitMB: float64(limitMB), grace: grace}, nil
}

// Self builds a monitor for the current process.
func Self(limitMB int, grace time.Duration) (*Monitor, error) {
	return New(int32(os.Getpid()), limitMB, grace)
}

// Watch polls until the context ends. It returns after the escalation
// completed or the context was cancelled.
func (m *Monitor) Watch(ctx context.Context) {
	if m.limitMB <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			used, err := m.residentMB()
			if err != nil {
				continue
			}
			if used <= m.limitMB {
				continue
			}
			logger.Warnf(ctx, "memory limit exceeded: used=%.2fMB limit=%.0fMB", used, m.limitMB)
			m.escalate(ctx)
			return
		}
	}
}

// escalate signals the process and kills it when the grace window passes with
// usage still over the limit.
func (m *Monitor) escalate(ctx context.Context) {
	if err := m.signal(syscall.SIGUSR1); err != nil {
		logger.Errorf(ctx, "send SIGUSR1 failed: %v", err)
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.grace):
	}
	used, err := m.residentMB()
	if err == nil && used <= m.limitMB {
		return
	}
	logger.Errorf(ctx, "process still over limit after %s, killing", m.grace)
	if err := m.signal(syscall.SIGKILL); err != nil {
		logger.Errorf(ctx, "kill failed: %v", err)
	}
}

func (m *Monitor) signal(sig syscall.Signal) error {
	proc, err := os.FindProcess(int(m.proc.Pid))
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

func (m *Monitor) residentMB() (float64, error) {
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / 1024 / 1024, nil
}

// WithSignalCancel derives a context cancelled with ErrMemoryLimit on SIGUSR1
// and ErrTimeout on SIGUSR2. The returned stop releases the signal handlers.
func WithSignalCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		for sig := range ch {
			switch sig {
			case syscall.SIGUSR1:
				cancel(ErrMemoryLimit)
			case syscall.SIGUSR2:
				cancel(ErrTimeout)
			}
		}
	}()

	stop := func() {
		signal.Stop(ch)
		close(ch)
		cancel(context.Canceled)
	}
	return ctx, stop
}

// MemoryStats is the machine-level snapshot served by the health endpoint,
// all values in megabytes.
type MemoryStats struct {
	Total     float64 `json:"memory_total"`
	Available float64 `json:"memory_available"`
	Used      float64 `json:"memory_used"`
}

// Memory reads the current machine memory snapshot, rounded to two decimals.
func Memory() (MemoryStats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemoryStats{}, err
	}
	return MemoryStats{
		Total:     roundMB(vm.Total),
		Available: roundMB(vm.Available),
		Used:      roundMB(vm.Used),
	}, nil
}

func roundMB(bytes uint64) float64 {
	mb := float64(bytes) / 1024 / 1024
	return float64(int64(mb*100+0.5)) / 100
}
