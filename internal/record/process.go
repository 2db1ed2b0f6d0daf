// Package record implements the telemetry pipeline: typed process events,
// the Redis-backed writer with Lua-scripted atomic updates, backup files, and
// the read operations user-facing services invoke over RPC.
package record

import (
	"time"
)

// ProcessType classifies a process event. The set is closed; the writer and
// the user-facing services dispatch on it.
type ProcessType string

const (
	TypeSystem          ProcessType = "system"
	TypeSystemException ProcessType = "system_exception"

	TypeStepRunning ProcessType = "step_running"
	TypeStepSkipped ProcessType = "step_skipped"

	TypeAssertionSuccess   ProcessType = "assertion_success"
	TypeAssertionFailed    ProcessType = "assertion_failed"
	TypeAssertionException ProcessType = "assertion_exception"

	TypeInterfaceSuccessFinished ProcessType = "interface_success_finished"
	TypeInterfaceErrorFinished   ProcessType = "interface_error_finished"
	TypeInterfaceWarning         ProcessType = "interface_warning"
	TypeInterfaceException       ProcessType = "interface_exception"
	// TypeInterfaceInfo is reserved: referenced by readers, produced only by
	// scripting paths.
	TypeInterfaceInfo ProcessType = "interface_info"

	TypeIfSuccess ProcessType = "if_success"
	TypeIfFailed  ProcessType = "if_failed"

	TypeErrorFailed ProcessType = "error_failed"

	TypeDelayWarning ProcessType = "delay_warning"
	TypeDelaySuccess ProcessType = "delay_success"

	TypeVariableGet       ProcessType = "variable_get"
	TypeVariableSet       ProcessType = "variable_set"
	TypeVariableWarning   ProcessType = "variable_warning"
	TypeVariableException ProcessType = "variable_exception"

	TypeActionScriptPrint ProcessType = "action_script_print"
	TypeActionScript      ProcessType = "action_script"
	TypeActionSleep       ProcessType = "action_sleep"
	TypeActionExtract     ProcessType = "action_extract"
	TypeActionWarning     ProcessType = "action_warning"

	TypeCaseDrive        ProcessType = "case_drive"
	TypeMultitaskerDrive ProcessType = "multitasker_drive"

	TypeDatabaseException ProcessType = "database_exception"
)

// DetailRef points a process event at its detail blob.
type DetailRef struct {
	Type  string `json:"type"`
	Index string `json:"index"`
}

// DetailTypeInterfaceSuccess and DetailTypeInterfaceError name the two detail
// blob families.
const (
	DetailTypeInterfaceSuccess = "interface_success"
	DetailTypeInterfaceError   = "interface_error"
)

// StepDetail is a detail blob before it is written: the per-field payloads of
// one interface send (request, response, timing, process, result).
type StepDetail struct {
	Type  string
	Index string
	Data  map[string]string
}

// Ref returns the reference embedded into process events.
func (d *StepDetail) Ref() *DetailRef {
	return &DetailRef{Type: d.Type, Index: d.Index}
}

// ProcessObject is one telemetry event as appended to process streams.
type ProcessObject struct {
	Type         ProcessType `json:"type"`
	Desc         string      `json:"desc"`
	Detail       *DetailRef  `json:"detail"`
	PositionList []string    `json:"position_list"`
	Times        int         `json:"times"`
	Time         int64       `json:"time"`
}

// NewProcess builds an event stamped with the current time in milliseconds.
// The position breadcrumb is attached by the emitting runner.
func NewProcess(t ProcessType, desc string) *ProcessObject {
	return &ProcessObject{
		Type: t,
		Desc: desc,
		Time: time.Now().UnixMilli(),
	}
}

// WithDetail attaches a detail reference.
func (p *ProcessObject) WithDetail(d *StepDetail) *ProcessObject {
	if d != nil {
		p.Detail = d.Ref()
	}
	return p
}

// WithPosition attaches the position breadcrumb.
func (p *ProcessObject) WithPosition(positionList []string) *ProcessObject {
	p.PositionList = positionList
	return p
}

// CoreExecReturn is what a node executor hands back: process events to fan
// out to the parent-step, child-case and summary streams, plus an optional
// typed result.
type CoreExecReturn struct {
	Parent    []*ProcessObject
	ChildCase []*ProcessObject
	Summary   []*ProcessObject
	Result    any
}

// Fanout builds a CoreExecReturn carrying the same events on all three
// streams, the common case for simple executors.
func Fanout(events ...*ProcessObject) *CoreExecReturn {
	return &CoreExecReturn{Parent: events, ChildCase: events, Summary: events}
}

// ProcessError carries a classified failure out of a node executor. The
// scheduler emits the object once and then consults the error strategy; the
// error never crosses node boundaries.
type ProcessError struct {
	Object *ProcessObject
}

func (e *ProcessError) Error() string {
	if e.Object == nil {
		return "process error"
	}
	return e.Object.Desc
}

// NewProcessError wraps a fresh event of the given type as an error.
func NewProcessError(t ProcessType, desc string) *ProcessError {
	return &ProcessError{Object: NewProcess(t, desc)}
}
