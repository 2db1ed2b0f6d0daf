package spec

// Case is a user-defined main case. Loop expansion instantiates it into
// ChildCases before any of its steps run.
type Case struct {
	Type                       string         `json:"type"`
	Parent                     string         `json:"parent,omitempty"`
	ID                         string         `json:"id"`
	Name                       string         `json:"name"`
	BeforeScript               string         `json:"before_script,omitempty"`
	ProjectID                  string         `json:"project_id"`
	ProjectName                string         `json:"project_name,omitempty"`
	Env                        string         `json:"env"`
	DataSet                    string         `json:"data_set,omitempty"`
	DriveStrategy              string         `json:"drive_strategy"`
	LoopTimes                  any            `json:"loop_times,omitempty"`
	LoopStrategy               string         `json:"loop_strategy"`
	RuntimeParametersStrategy  string         `json:"runtime_parameters_strategy,omitempty"`
	ErrorStrategy              string         `json:"error_strategy"`
	Status                     string         `json:"status,omitempty"`
	Index                      int            `json:"index"`
	ChildCase                  []int          `json:"child_case,omitempty"`
	EnvVariables               map[string]any `json:"env_variables,omitempty"`
	Start                      int64          `json:"start,omitempty"`
	End                        int64          `json:"end,omitempty"`
	ChildCaseCount             int            `json:"child_case_count,omitempty"`
}

// ChildCase is one concrete instantiation of a main case bound to one row of
// drive data via TempVariables.
type ChildCase struct {
	Type              string         `json:"type"`
	Parent            string         `json:"parent,omitempty"`
	TempVariables     map[string]any `json:"temp_variables"`
	ErrorStrategy     string         `json:"error_strategy,omitempty"`
	CaseName          string         `json:"case_name"`
	CaseID            string         `json:"case_id"`
	Start             int64          `json:"start,omitempty"`
	End               int64          `json:"end,omitempty"`
	DoneStepCount     int            `json:"done_step_count"`
	FailedStepCount   int            `json:"failed_step_count"`
	SkippedStepCount  int            `json:"skipped_step_count"`
	Status            string         `json:"status,omitempty"`
	OriginChildSteps  []string       `json:"origin_child_steps"`
	ChildCasePrefix   string         `json:"child_case_prefix,omitempty"`
	Index             int            `json:"index"`
	Desc              string         `json:"desc,omitempty"`
	IndexInGlobalList int            `json:"index_in_global_list"`
}
