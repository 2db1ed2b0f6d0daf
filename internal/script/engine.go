// Package script implements the user-script engine on the expr expression
// language. Scripts see a closed helper surface built per run from the
// runtime's capability context; nothing ambient leaks in.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/template"
)

// Engine compiles and runs expr scripts against the capability surface.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

var _ runtime.ScriptEngine = (*Engine)(nil)

func (e *Engine) Run(ctx context.Context, source string, sc *runtime.ScriptContext) (any, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	env := buildEnv(ctx, sc)
	program, err := expr.Compile(source, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("run script: %w", err)
	}
	return out, nil
}

// buildEnv assembles the helper surface. Variable reads go through the node's
// scope chain live, not through a snapshot, so a script observes its own
// writes.
func buildEnv(ctx context.Context, sc *runtime.ScriptContext) map[string]any {
	env := map[string]any{
		"position":        sc.Position,
		"main_case_index": sc.MainCaseIndex,

		"get": func(name string) any {
			v, _ := sc.Vars.Get(name)
			return v
		},
		"has": func(name string) bool {
			_, ok := sc.Vars.Get(name)
			return ok
		},
		"set": func(name string, value any) (any, error) {
			return nil, sc.Vars.Set("", name, value)
		},
		"set_env": func(name string, value any) (any, error) {
			return nil, sc.Vars.Set(runtime.ScopeEnv, name, value)
		},
		"set_global": func(name string, value any) (any, error) {
			return nil, sc.Vars.Set(runtime.ScopeGlobal, name, value)
		},

		"print": func(args ...any) any {
			if sc.Print != nil {
				sc.Print(sprint(args))
			}
			return nil
		},
		"warn": func(args ...any) any {
			if sc.Warn != nil {
				sc.Warn(sprint(args))
			}
			return nil
		},
		"raise": func(args ...any) (any, error) {
			return nil, errors.New(sprint(args))
		},

		"mock": func(name string, args ...string) (any, error) {
			v, ok := template.Mock(name, args...)
			if !ok {
				return nil, fmt.Errorf("unknown mock %q", name)
			}
			return v, nil
		},
		"pipe": func(name string, value any, args ...string) (any, error) {
			v, ok := template.Pipe(name, fmt.Sprint(value), args...)
			if !ok {
				return nil, fmt.Errorf("unknown pipe %q", name)
			}
			return v, nil
		},

		"dataset": func(rows ...map[string]any) *runtime.DataSet {
			return runtime.NewDataSet(rows...)
		},

		"file_path": func(name string) string {
			if sc.Engine == nil || sc.Engine.Cache == nil {
				return ""
			}
			return sc.Engine.Cache.FilePath(name)
		},
	}

	env["query"] = func(databaseID, sql string) (any, error) {
		if sc.Database == nil {
			return nil, errors.New("database access is not available in this step")
		}
		return sc.Database.Query(ctx, databaseID, sql)
	}

	if sc.Request != nil {
		env["set_header"] = func(name, value string) any { sc.Request.SetHeader(name, value); return nil }
		env["set_url"] = func(url string) any { sc.Request.SetURL(url); return nil }
		env["set_query"] = func(name, value string) any { sc.Request.SetQueryParam(name, value); return nil }
		env["set_body"] = func(body any) any { sc.Request.SetBody(body); return nil }
	}
	if sc.Response != nil {
		env["response_status"] = func() int { return sc.Response.StatusCode() }
		env["response_header"] = func(name string) string { return sc.Response.Header(name) }
		env["response_body"] = func() string { return sc.Response.Body() }
		env["response_error"] = func() string { return sc.Response.Err() }
	}
	return env
}

func sprint(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}
