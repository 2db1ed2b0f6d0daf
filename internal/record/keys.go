package record

import (
	"fmt"

	"github.com/asynctest/asynctest/internal/spec"
)

// Keys builds every telemetry key of one run from its record backup index.
// The schema is stable: user-facing services reconstruct the same keys from
// the SPI without any handshake.
type Keys struct {
	Prefix string
}

func NewKeys(recordBackupIndex string) Keys {
	return Keys{Prefix: recordBackupIndex}
}

func (k Keys) TaskInfo() string {
	return k.Prefix + ":task_info"
}

func (k Keys) RecordInfo() string {
	return k.Prefix + ":record_info"
}

func (k Keys) SummaryProcess() string {
	return k.Prefix + ":summary_record:process"
}

func (k Keys) ChildCaseList() string {
	return k.Prefix + ":child_case_record:child_case_list"
}

func (k Keys) ChildCaseProcess(childCaseIndex int) string {
	return fmt.Sprintf("%s:child_case_record:%d:process", k.Prefix, childCaseIndex)
}

func (k Keys) ChildCaseStatus(childCaseIndex int) string {
	return fmt.Sprintf("%s:child_case_record:%d:status", k.Prefix, childCaseIndex)
}

func (k Keys) stepBase(spi spec.SPI) string {
	return fmt.Sprintf("%s:step_record:case:%s:child_case:%d:step:%s",
		k.Prefix, spi.CaseID, spi.ChildCaseIndex, spi.StepID)
}

func (k Keys) StepProcess(spi spec.SPI) string {
	return k.stepBase(spi) + ":process"
}

func (k Keys) StepStatus(spi spec.SPI) string {
	return k.stepBase(spi) + ":status"
}

// DetailBase is the key prefix of one detail blob; the writer appends one of
// the detail fields (request, response, timing, process, result).
func (k Keys) DetailBase(detailType, index string) string {
	return fmt.Sprintf("%s:%s_detail:%s", k.Prefix, detailType, index)
}

func (k Keys) DetailField(detailType, index, field string) string {
	return k.DetailBase(detailType, index) + ":" + field
}
