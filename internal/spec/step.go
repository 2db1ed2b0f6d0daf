package spec

import "encoding/json"

// StepType tags every entry of the step mapping. The set is closed; the node
// executor registry enumerates the same tags.
type StepType string

const (
	StepTypeInterface   StepType = "interface"
	StepTypeAssertion   StepType = "assertion"
	StepTypeScript      StepType = "script"
	StepTypeDatabase    StepType = "database"
	StepTypeDelay       StepType = "delay"
	StepTypeIf          StepType = "if"
	StepTypeError       StepType = "error"
	StepTypeGroup       StepType = "group"
	StepTypeCase        StepType = "case"
	StepTypeMultitasker StepType = "multitasker"
	StepTypeEmpty       StepType = "empty"

	// Virtual types synthesized by loop expansion; never present in a
	// submitted step mapping.
	StepTypeChildStepCase    StepType = "child_step_case"
	StepTypeChildMultitasker StepType = "child_multitasker"
)

// HasChildren reports whether steps of this type carry a child step list.
func (t StepType) HasChildren() bool {
	switch t {
	case StepTypeGroup, StepTypeIf, StepTypeCase, StepTypeMultitasker,
		StepTypeChildStepCase, StepTypeChildMultitasker:
		return true
	}
	return false
}

// IsVirtual reports whether the type is synthesized by loop expansion.
func (t StepType) IsVirtual() bool {
	return t == StepTypeChildStepCase || t == StepTypeChildMultitasker
}

// IsLoopDriven reports whether the type expands into virtual children.
func (t StepType) IsLoopDriven() bool {
	return t == StepTypeCase || t == StepTypeMultitasker
}

// Step is one entry of the step mapping. Engine-level fields are typed;
// everything else stays in the raw options map and is decoded by the node
// executor that owns the type.
type Step struct {
	ID                string   `json:"id"`
	Label             string   `json:"label"`
	Type              StepType `json:"type"`
	Check             string   `json:"check"`
	IsRaiseStep       bool     `json:"is_raise_step,omitempty"`
	ErrorStrategy     string   `json:"error_strategy,omitempty"`
	CaseErrorStrategy string   `json:"case_error_strategy,omitempty"`
	Children          []string `json:"children,omitempty"`

	// Loop drive fields, meaningful for case/multitasker steps.
	DriveStrategy  string `json:"drive_strategy,omitempty"`
	LoopTimes      any    `json:"loop_times,omitempty"`
	LoopStrategy   string `json:"loop_strategy,omitempty"`
	DataSet        string `json:"data_set,omitempty"`
	LoadLoopScript string `json:"load_loop_script,omitempty"`
	EnvStrategy    string `json:"env_strategy,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	Env            string `json:"env,omitempty"`

	// Interface raise fields, read by the scheduler-visible part of the
	// interface executor contract.
	ShouldRaise bool   `json:"should_raise,omitempty"`
	RaiseCode   string `json:"raise_code,omitempty"`

	// TempVariables is populated on virtual steps only.
	TempVariables map[string]any `json:"temp_variables,omitempty"`

	raw map[string]any
}

// CheckNone is the check value that pre-marks a step as skipped.
const CheckNone = "none"

func (s *Step) UnmarshalJSON(b []byte) error {
	type alias Step
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Step(a)
	s.raw = raw
	return nil
}

// Options returns the raw step object for executor-specific decoding.
func (s *Step) Options() map[string]any {
	if s.raw == nil {
		return map[string]any{}
	}
	return s.raw
}

// Virtual builds a virtual child step of the given type, inheriting the
// parent's children so that the virtual node replays the same step sequence
// bound to a fresh temp scope.
func (s *Step) Virtual(t StepType, index int, tempVariables map[string]any) *Step {
	if tempVariables == nil {
		tempVariables = map[string]any{}
	}
	check := s.Check
	children := make([]string, len(s.Children))
	copy(children, s.Children)
	return &Step{
		ID:                s.ID,
		Label:             s.Label,
		Type:              t,
		Check:             check,
		ErrorStrategy:     s.ErrorStrategy,
		CaseErrorStrategy: s.CaseErrorStrategy,
		Children:          children,
		LoopStrategy:      s.LoopStrategy,
		EnvStrategy:       s.EnvStrategy,
		ProjectID:         s.ProjectID,
		Env:               s.Env,
		TempVariables:     tempVariables,
		raw:               s.raw,
	}
}

// StepMapping resolves case id then step id to a step definition.
type StepMapping map[string]map[string]*Step

// Lookup returns the step for (caseID, stepID), or nil.
func (m StepMapping) Lookup(caseID, stepID string) *Step {
	steps, ok := m[caseID]
	if !ok {
		return nil
	}
	return steps[stepID]
}
