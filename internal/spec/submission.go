package spec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidSubmission = errors.New("invalid task submission")

// ExecPayload is the exec half of a submission: the full static model.
type ExecPayload struct {
	TaskInfo          *TaskInfo        `json:"task_info"`
	CaseList          []*Case          `json:"case_list"`
	ChildCaseList     []*ChildCase     `json:"child_case_list"`
	StepMapping       StepMapping      `json:"step_mapping"`
	GlobalCache       *GlobalCache     `json:"global_cache"`
	CaseStepsSnapshot map[string]any   `json:"case_steps_snapshot,omitempty"`
}

// Submission is one POST /execute document.
type Submission struct {
	Exec   *ExecPayload `json:"exec"`
	Record *Record      `json:"record"`
}

// DecodeSubmission parses a submission document; callers validate separately.
func DecodeSubmission(r io.Reader) (*Submission, error) {
	var sub Submission
	if err := json.NewDecoder(r).Decode(&sub); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSubmission, err)
	}
	return &sub, nil
}

// Validate checks the structural invariants a run depends on.
func (s *Submission) Validate() error {
	if s.Exec == nil || s.Record == nil {
		return fmt.Errorf("%w: missing exec or record", ErrInvalidSubmission)
	}
	if s.Exec.TaskInfo == nil {
		return fmt.Errorf("%w: missing task_info", ErrInvalidSubmission)
	}
	if s.Record.RecordBackupIndex == "" {
		return fmt.Errorf("%w: missing record_backup_index", ErrInvalidSubmission)
	}
	if s.Exec.GlobalCache == nil {
		s.Exec.GlobalCache = &GlobalCache{}
	}
	for _, cc := range s.Exec.ChildCaseList {
		if _, ok := s.Exec.StepMapping[cc.CaseID]; !ok {
			return fmt.Errorf("%w: child case references unknown case %q", ErrInvalidSubmission, cc.CaseID)
		}
	}
	return nil
}
