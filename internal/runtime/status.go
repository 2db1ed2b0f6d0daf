// Package runtime drives the dynamic execution tree: it mirrors the static
// spec into runtime nodes, schedules them with bounded parallelism, applies
// error strategies by mutating ancestor status, and projects every event into
// the telemetry pipeline.
package runtime

import "encoding/json"

// Status is the lifecycle state of a dynamic node. Serialized with the wire
// strings user-facing services expect.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSkipped
	StatusSkippedChild
	StatusEnd
	StatusError
	StatusErrorChild
	StatusConditional
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "mid_pending"
	case StatusRunning:
		return "mid_running"
	case StatusSkipped:
		return "end_skipped"
	case StatusSkippedChild:
		return "end_skipped_child"
	case StatusEnd:
		return "end_normal"
	case StatusError:
		return "end_error"
	case StatusErrorChild:
		return "end_error_child"
	case StatusConditional:
		return "end_conditional"
	default:
		return "mid_pending"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSkipped, StatusSkippedChild, StatusEnd, StatusError,
		StatusErrorChild, StatusConditional:
		return true
	}
	return false
}

// Blocking reports whether a descendant observing this status on an ancestor
// must take the skipped path.
func (s Status) Blocking() bool {
	return s == StatusSkipped || s == StatusConditional || s == StatusError
}

// Result is the composed outcome of a node, derived at finalization.
type Result int

const (
	ResultUnknown Result = iota
	ResultSuccess
	ResultErrorSelf
	ResultErrorChild
	ResultSkippedSelf
	ResultSkippedChild
)

func (r Result) String() string {
	switch r {
	case ResultUnknown:
		return "mid_unknown"
	case ResultSuccess:
		return "end_success"
	case ResultErrorSelf:
		return "end_error_self"
	case ResultErrorChild:
		return "end_error_child"
	case ResultSkippedSelf:
		return "end_skipped_self"
	case ResultSkippedChild:
		return "end_skipped_child"
	default:
		return "mid_unknown"
	}
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// IsError reports whether the result counts as a failure for ancestor
// composition.
func (r Result) IsError() bool {
	return r == ResultErrorSelf || r == ResultErrorChild
}

// IsSkipped reports whether the result counts as skipped for ancestor
// composition.
func (r Result) IsSkipped() bool {
	return r == ResultSkippedSelf || r == ResultSkippedChild
}
