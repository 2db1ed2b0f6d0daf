package spec

import "fmt"

// SPI is the static path index: the immutable coordinates of a runtime node,
// computed top-down as the dynamic tree is built. Every telemetry key and
// every dynamic-mapping key derives from it deterministically.
type SPI struct {
	// Task is the task hex index.
	Task string
	// CaseID and CaseIndex identify the enclosing main case.
	CaseID    string
	CaseIndex int
	// ChildCaseIndex is the global index of the enclosing child case.
	ChildCaseIndex int
	// StepID is empty for task/case/child-case nodes.
	StepID string
	// PositionList is the breadcrumb of labels from the root to this node.
	PositionList []string
}

// ChildStep derives the SPI of a step below this node.
func (s SPI) ChildStep(stepID, label string) SPI {
	next := s
	next.StepID = stepID
	next.PositionList = appendPosition(s.PositionList, label)
	return next
}

// WithPosition derives an SPI with one more breadcrumb entry and no step
// change; used for virtual nodes.
func (s SPI) WithPosition(label string) SPI {
	next := s
	next.PositionList = appendPosition(s.PositionList, label)
	return next
}

func appendPosition(list []string, label string) []string {
	next := make([]string, 0, len(list)+1)
	next = append(next, list...)
	return append(next, label)
}

// Dynamic-mapping key builders. The registry key of a node embeds its whole
// ancestry so that concurrent expansions never collide.

func TaskKey(task string) string {
	return fmt.Sprintf("%s_task", task)
}

func CaseKey(task string, caseIndex int) string {
	return fmt.Sprintf("%s_%d_case", task, caseIndex)
}

func ChildCaseKey(parentKey string, childCaseIndex int) string {
	return fmt.Sprintf("%s_%d_child_case", parentKey, childCaseIndex)
}

func StepKey(parentKey, stepID string) string {
	return fmt.Sprintf("%s_%s_step", parentKey, stepID)
}
