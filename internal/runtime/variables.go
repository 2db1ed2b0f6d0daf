package runtime

import (
	"errors"

	"github.com/asynctest/asynctest/internal/template"
)

// ErrReadOnlyVariables rejects writes from read-only contexts (assertion,
// if and error scripts); the caller reports it as a variable warning.
var ErrReadOnlyVariables = errors.New("variables are read-only in this context")

// Variable write scopes.
const (
	ScopeTemp   = "temp"
	ScopeCase   = "case"
	ScopeEnv    = "env"
	ScopeGlobal = "global"
)

// Variables is the variable handle of one node: reads follow the
// temp → merged-env → global precedence, writes pick their target from the
// scope argument.
type Variables struct {
	node   *Node
	engine *Engine
}

func NewVariables(engine *Engine, node *Node) *Variables {
	return &Variables{node: node, engine: engine}
}

// Get resolves one name with full precedence.
func (v *Variables) Get(name string) (any, bool) {
	for cur := v.node; cur != nil; cur = cur.Parent() {
		if val, ok := cur.TempGet(name); ok {
			return val, true
		}
		if cur.IsTempBoundary() {
			break
		}
	}
	if env := v.mergedEnv(); env != nil {
		if val, ok := env[name]; ok {
			return val, true
		}
	}
	return v.engine.Cache.GlobalVariable(name)
}

// Set writes one name into the scope's target store. The default scope is
// temp; temp and case both land on the nearest child-case boundary node.
func (v *Variables) Set(scope, name string, value any) error {
	if !v.node.CanSet() {
		return ErrReadOnlyVariables
	}
	switch scope {
	case "", ScopeTemp, ScopeCase:
		target := v.node.Ancestor(func(n *Node) bool { return n.IsTempBoundary() })
		if target == nil {
			target = v.node
		}
		target.TempSet(name, value)
	case ScopeEnv:
		project, env := v.envRef()
		v.engine.Cache.SetEnvVariable(project, env, name, value)
	case ScopeGlobal:
		v.engine.Cache.SetGlobalVariable(name, value)
	default:
		return errors.New("unknown variable scope: " + scope)
	}
	return nil
}

// Mapping flattens the visible variables into one map with closest-scope
// precedence, the shape the template resolver consumes.
func (v *Variables) Mapping() map[string]any {
	out := map[string]any{}
	for cur := v.node; cur != nil; cur = cur.Parent() {
		cur.TempSnapshot(out)
		if cur.IsTempBoundary() {
			break
		}
	}
	for name, val := range v.mergedEnv() {
		if _, ok := out[name]; !ok {
			out[name] = val
		}
	}
	for name, val := range v.engine.Cache.GlobalSnapshot() {
		if _, ok := out[name]; !ok {
			out[name] = val
		}
	}
	return out
}

// EnvRef exposes the resolved (project, env) pair to executors that need the
// environment's server prefix or dataset bindings.
func (v *Variables) EnvRef() (string, string) {
	return v.envRef()
}

// Lookup adapts the handle to the template resolver.
func (v *Variables) Lookup() template.Lookup {
	return func(name string) (any, bool) { return v.Get(name) }
}

// mergedEnv overlays the node-local (project, env) map on the root case's
// map: the root map is the base, node-local entries win.
func (v *Variables) mergedEnv() map[string]any {
	rootProject, rootEnv := v.rootEnvRef()
	localProject, localEnv := v.envRef()

	base := v.engine.Cache.EnvVariables(rootProject, rootEnv)
	if localProject == rootProject && localEnv == rootEnv {
		return copyMap(base)
	}
	merged := copyMap(base)
	for name, val := range v.engine.Cache.EnvVariables(localProject, localEnv) {
		merged[name] = val
	}
	return merged
}

// envRef resolves the (project, env) the node runs under: the nearest env
// carrier, where nested cases with env_strategy current_case defer to their
// caller.
func (v *Variables) envRef() (string, string) {
	for cur := v.node; cur != nil; cur = cur.Parent() {
		if cur.Step != nil && cur.Step.ProjectID != "" {
			if cur.Step.EnvStrategy == "current_case" {
				continue
			}
			return cur.Step.ProjectID, cur.Step.Env
		}
		if cur.Kind == KindCase && cur.Case != nil {
			return cur.Case.ProjectID, cur.Case.Env
		}
	}
	if v.engine.Task != nil {
		return v.engine.Task.ProjectID, v.engine.Task.Env
	}
	return "", ""
}

// rootEnvRef resolves the main case's (project, env).
func (v *Variables) rootEnvRef() (string, string) {
	root := v.node.Ancestor(func(n *Node) bool { return n.Kind == KindCase })
	if root != nil && root.Case != nil {
		return root.Case.ProjectID, root.Case.Env
	}
	if v.engine.Task != nil {
		return v.engine.Task.ProjectID, v.engine.Task.Env
	}
	return "", ""
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
