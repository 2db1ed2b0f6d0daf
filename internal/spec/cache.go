package spec

import (
	"sort"
	"sync"
)

// FileRef is one staged asset: Origin is the remote or local source, ExecPath
// is the task-scoped staged copy filled in by the lifecycle supervisor.
type FileRef struct {
	Name     string `json:"name"`
	Origin   string `json:"origin"`
	ExecPath string `json:"exec_path,omitempty"`
}

// DatasetEnv is the row-set of one dataset under one environment.
type DatasetEnv struct {
	Depend    int              `json:"depend"`
	IsDefault bool             `json:"is_default"`
	Data      []map[string]any `json:"data"`
}

// DatabaseConfig is a named database connection definition.
type DatabaseConfig struct {
	ID       string `json:"id"`
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// GlobalCache is the process-wide read-mostly state shared by every runner of
// a run. Variable maps are the only mutable parts; writes go through the
// locked setters so concurrent runners never race.
type GlobalCache struct {
	OriginInterfaceMapping        map[string]map[string]any            `json:"origin_interface_mapping"`
	OriginFileMapping             map[string]*FileRef                  `json:"origin_file_mapping"`
	OriginProjectEnvServerMapping map[string]map[string]string         `json:"origin_project_env_server_mapping"`
	OriginProjectEnvVarMapping    map[string]map[string]map[string]any `json:"origin_project_env_variable_mapping"`
	OriginDatabaseMapping         map[string]*DatabaseConfig           `json:"origin_database_mapping"`
	OriginDatasetMapping          map[string]map[string]*DatasetEnv    `json:"origin_dataset_mapping"`
	OriginGlobalVariableMapping   map[string]any                       `json:"origin_global_variable_mapping"`
	CaseBeforeScriptPrintMapping  map[string][]string                  `json:"case_before_script_print_mapping,omitempty"`

	mu sync.RWMutex
}

// FilePath returns the staged path of a named file, or "".
func (c *GlobalCache) FilePath(name string) string {
	ref, ok := c.OriginFileMapping[name]
	if !ok {
		return ""
	}
	return ref.ExecPath
}

// GlobalVariable reads one global variable.
func (c *GlobalCache) GlobalVariable(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.OriginGlobalVariableMapping[name]
	return v, ok
}

// SetGlobalVariable writes one global variable for the remainder of the run.
func (c *GlobalCache) SetGlobalVariable(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OriginGlobalVariableMapping == nil {
		c.OriginGlobalVariableMapping = map[string]any{}
	}
	c.OriginGlobalVariableMapping[name] = value
}

// GlobalSnapshot copies the global variable map.
func (c *GlobalCache) GlobalSnapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.OriginGlobalVariableMapping))
	for k, v := range c.OriginGlobalVariableMapping {
		out[k] = v
	}
	return out
}

// EnvVariables returns a copy of the variable map of one (project, env).
func (c *GlobalCache) EnvVariables(projectID, env string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	envs, ok := c.OriginProjectEnvVarMapping[projectID]
	if !ok {
		return nil
	}
	vars := envs[env]
	if vars == nil {
		return nil
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// SetEnvVariable writes one (project, env) variable for the remainder of the run.
func (c *GlobalCache) SetEnvVariable(projectID, env, name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OriginProjectEnvVarMapping == nil {
		c.OriginProjectEnvVarMapping = map[string]map[string]map[string]any{}
	}
	envs, ok := c.OriginProjectEnvVarMapping[projectID]
	if !ok {
		envs = map[string]map[string]any{}
		c.OriginProjectEnvVarMapping[projectID] = envs
	}
	vars, ok := envs[env]
	if !ok {
		vars = map[string]any{}
		envs[env] = vars
	}
	vars[name] = value
}

// BeforeScriptPrints returns the cached print output of a case's before
// script, with ok reporting whether the script ran already.
func (c *GlobalCache) BeforeScriptPrints(caseID string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	prints, ok := c.CaseBeforeScriptPrintMapping[caseID]
	return prints, ok
}

// SetBeforeScriptPrints caches the print output of a case's before script so
// later child cases of the same case replay it instead of re-running.
func (c *GlobalCache) SetBeforeScriptPrints(caseID string, prints []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CaseBeforeScriptPrintMapping == nil {
		c.CaseBeforeScriptPrintMapping = map[string][]string{}
	}
	if prints == nil {
		prints = []string{}
	}
	c.CaseBeforeScriptPrintMapping[caseID] = prints
}

// ServerPrefix resolves the service URL prefix for one (project, env).
func (c *GlobalCache) ServerPrefix(projectID, env string) string {
	envs, ok := c.OriginProjectEnvServerMapping[projectID]
	if !ok {
		return ""
	}
	return envs[env]
}

// Dataset resolves (datasetID, env) to its row-set; when the env row-set has
// a falsy depend it falls back to the first default env, taking environments
// in sorted name order so the fallback is deterministic. Returns nil when
// nothing resolves.
func (c *GlobalCache) Dataset(datasetID, env string) *DatasetEnv {
	byEnv, ok := c.OriginDatasetMapping[datasetID]
	if !ok {
		return nil
	}
	if ds, ok := byEnv[env]; ok && ds != nil && ds.Depend != 0 {
		return ds
	}
	names := make([]string, 0, len(byEnv))
	for name := range byEnv {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ds := byEnv[name]; ds != nil && ds.IsDefault {
			return ds
		}
	}
	if ds, ok := byEnv[env]; ok {
		return ds
	}
	return nil
}
