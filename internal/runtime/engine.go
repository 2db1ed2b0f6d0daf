package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/spec"
)

// Engine is the lifecycle-scoped root of one run: the static model, the
// shared resources, the dynamic tree and the scheduler. It is passed
// explicitly through every runner; nothing in the package is ambient.
type Engine struct {
	Task       *spec.TaskInfo
	Cases      []*spec.Case
	ChildCases []*spec.ChildCase
	Steps      spec.StepMapping
	Cache      *spec.GlobalCache
	Record     *spec.Record

	Emitter   record.Emitter
	Tree      *Tree
	Scheduler *Scheduler
	Scripts   ScriptEngine
	Session   *resty.Client
	Databases *DatabaseController

	MaxGenerateLength int

	mu        sync.Mutex
	firstErr  string
	taskErred bool
}

// Options collects everything an Engine needs. Zero-value optional fields
// get safe defaults.
type Options struct {
	Exec              *spec.ExecPayload
	Record            *spec.Record
	Emitter           record.Emitter
	Scripts           ScriptEngine
	Session           *resty.Client
	Databases         *DatabaseController
	MaxConcurrency    int
	MaxGenerateLength int
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Exec == nil || opts.Exec.TaskInfo == nil {
		return nil, fmt.Errorf("engine: missing exec payload")
	}
	if opts.Record == nil {
		return nil, fmt.Errorf("engine: missing record")
	}
	if opts.Emitter == nil {
		return nil, fmt.Errorf("engine: missing emitter")
	}
	if opts.Scripts == nil {
		opts.Scripts = noScripts{}
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.MaxGenerateLength < 1 {
		opts.MaxGenerateLength = 100
	}
	if opts.Databases == nil {
		opts.Databases = NewDatabaseController(opts.Exec.GlobalCache)
	}
	return &Engine{
		Task:              opts.Exec.TaskInfo,
		Cases:             opts.Exec.CaseList,
		ChildCases:        opts.Exec.ChildCaseList,
		Steps:             opts.Exec.StepMapping,
		Cache:             opts.Exec.GlobalCache,
		Record:            opts.Record,
		Emitter:           opts.Emitter,
		Tree:              NewTree(),
		Scheduler:         NewScheduler(opts.MaxConcurrency),
		Scripts:           opts.Scripts,
		Session:           opts.Session,
		Databases:         opts.Databases,
		MaxGenerateLength: opts.MaxGenerateLength,
	}, nil
}

// RunTask drives the whole tree to completion. It never returns an error:
// failures end up in task status telemetry.
func (e *Engine) RunTask(ctx context.Context) {
	e.Scheduler.Execute(ctx, newTaskRunner(e))
}

// NoteError records the first failure message for the final task report.
func (e *Engine) NoteError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.firstErr == "" {
		e.firstErr = msg
	}
	e.taskErred = true
}

// FirstError returns the first recorded failure message.
func (e *Engine) FirstError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstErr
}

// Erred reports whether any step failed during the run.
func (e *Engine) Erred() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.taskErred
}

// StepFor resolves a step id within a case of the static mapping.
func (e *Engine) StepFor(caseID, stepID string) (*spec.Step, error) {
	step := e.Steps.Lookup(caseID, stepID)
	if step == nil {
		return nil, fmt.Errorf("step %s not found in case %s", stepID, caseID)
	}
	return step, nil
}
