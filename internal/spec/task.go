// Package spec holds the static task model: the fully serialized description
// of one execution as delivered by the submission API. The model is immutable
// for the duration of a run; all volatile state lives on the runtime tree.
package spec

// TaskInfo is the root of the static model.
type TaskInfo struct {
	Type           string `json:"type"`
	Parent         string `json:"parent,omitempty"`
	ID             string `json:"id"`
	HexIndex       string `json:"hex_index"`
	Name           string `json:"name"`
	ProjectID      string `json:"project_id"`
	ProjectName    string `json:"project_name"`
	RangeType      string `json:"range_type,omitempty"`
	UseSameEnv     bool   `json:"use_same_env,omitempty"`
	Env            string `json:"env"`
	LoopStrategy   string `json:"loop_strategy"`
	ErrorStrategy  string `json:"error_strategy"`
	Status         string `json:"status,omitempty"`
	CronJob        bool   `json:"cron_job,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	RPCMethod      string `json:"rpc_method,omitempty"`
	RecordLevel    string `json:"record_level,omitempty"`
}

// Record is the externally visible identity of one execution.
// RecordBackupIndex is the namespace of every telemetry key the run writes
// and the stem of its backup file.
type Record struct {
	ID                 int64  `json:"id"`
	RecordBackupIndex  string `json:"record_backup_index"`
	RunSource          string `json:"run_source,omitempty"`
	HexIndex           string `json:"hex_index,omitempty"`
	StartAt            int64  `json:"start_at"`
	EndAt              int64  `json:"end_at"`
	Status             string `json:"status,omitempty"`
	CaseCount          int    `json:"case_count"`
	ChildCaseCount     int    `json:"child_case_count"`
	DoneChildCaseCount int    `json:"done_child_case_count"`
	ExecUser           string `json:"exec_user,omitempty"`
	Task               string `json:"task,omitempty"`
}
