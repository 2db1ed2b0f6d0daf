package runtime

import (
	"context"
	"errors"
)

// ErrNoScriptEngine is returned when a script step runs without an engine.
var ErrNoScriptEngine = errors.New("no script engine configured")

// DataSet is the row collection a loop script may return; each row seeds the
// temp scope of one virtual child.
type DataSet struct {
	Rows []map[string]any
}

// NewDataSet builds a DataSet from rows; exposed to scripts as a constructor.
func NewDataSet(rows ...map[string]any) *DataSet {
	return &DataSet{Rows: rows}
}

// ScriptEngine executes user scripts against the capability surface. The
// script language itself is pluggable; the engine only depends on this
// contract.
type ScriptEngine interface {
	Run(ctx context.Context, source string, sc *ScriptContext) (any, error)
}

// ScriptContext is the closed capability surface a script sees. Nil optional
// accessors mean the capability is absent in the current step kind.
type ScriptContext struct {
	// Vars reads and writes variables with the current node's scope and
	// write permission.
	Vars *Variables

	// Print emits an action_script_print event; Warn an action_warning.
	Print func(desc string)
	Warn  func(desc string)

	// Position and MainCaseIndex expose introspection helpers.
	Position      []string
	MainCaseIndex int

	// Request, Response and Database are present where applicable.
	Request  RequestTools
	Response ResponseAccessor
	Database DatabaseAccessor

	// Engine gives helpers access to shared resources (files, datasets).
	Engine *Engine
	// Node is the step node the script runs under.
	Node *Node
}

// RequestTools mutates an outgoing interface request from a pre-action
// script.
type RequestTools interface {
	SetHeader(name, value string)
	SetURL(url string)
	SetQueryParam(name, value string)
	SetBody(body any)
}

// ResponseAccessor lazily exposes the last response to a post-action script.
type ResponseAccessor interface {
	StatusCode() int
	Header(name string) string
	Body() string
	Err() string
}

// DatabaseAccessor lets scripts run queries through the shared pools.
type DatabaseAccessor interface {
	Query(ctx context.Context, databaseID, sql string) ([]map[string]any, error)
}

// noScripts rejects every script; installed when no engine is wired.
type noScripts struct{}

func (noScripts) Run(context.Context, string, *ScriptContext) (any, error) {
	return nil, ErrNoScriptEngine
}
