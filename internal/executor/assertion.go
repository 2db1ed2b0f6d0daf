package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/spec"
)

func init() {
	runtime.RegisterExecutor(spec.StepTypeAssertion, func(run *runtime.StepRun) (runtime.NodeExecutor, error) {
		var opts assertionOptions
		if err := decodeOptions(run, &opts); err != nil {
			return nil, err
		}
		return &assertionExecutor{opts: opts}, nil
	})
}

// SourceLastInterface asserts against the most recent interface response of
// the enclosing group.
const SourceLastInterface = "last_interface"

type assertionRule struct {
	Expression string `json:"expression"`
	Comparator string `json:"comparator"`
	Expected   string `json:"expected"`
}

type assertionOptions struct {
	Source   string          `json:"source"`
	Variable string          `json:"variable"`
	Rules    []assertionRule `json:"rules"`

	// Single-rule form, used when Rules is empty.
	Expression string `json:"expression"`
	Comparator string `json:"comparator"`
	Expected   string `json:"expected"`
}

// assertionExecutor extracts values from the assertion source with jq
// expressions and compares them against rendered expectations. Assertions are
// read-only: variable writes from this context are rejected upstream.
type assertionExecutor struct {
	opts assertionOptions
}

func (e *assertionExecutor) Execute(ctx context.Context, run *runtime.StepRun) (*record.CoreExecReturn, error) {
	run.Node.SetCanSet(false)
	defer run.Node.SetCanSet(true)

	doc, detail, err := e.sourceDocument(run)
	if err != nil {
		return nil, record.NewProcessError(record.TypeAssertionException,
			fmt.Sprintf("断言异常：[%s] %s", run.Step.Label, err.Error()))
	}

	rules := e.opts.Rules
	if len(rules) == 0 {
		rules = []assertionRule{{
			Expression: e.opts.Expression,
			Comparator: e.opts.Comparator,
			Expected:   e.opts.Expected,
		}}
	}
	for _, rule := range rules {
		actual, err := evalJQ(doc, rule.Expression)
		if err != nil {
			return nil, record.NewProcessError(record.TypeAssertionException,
				fmt.Sprintf("断言异常：[%s] %s", run.Step.Label, err.Error()))
		}
		expected := run.RenderValue(rule.Expected)
		ok, err := compare(rule.Comparator, actual, expected)
		if err != nil {
			return nil, record.NewProcessError(record.TypeAssertionException,
				fmt.Sprintf("断言异常：[%s] %s", run.Step.Label, err.Error()))
		}
		if !ok {
			desc := fmt.Sprintf("断言失败：[%s] %s %s，实际值：%v，期望值：%v",
				run.Step.Label, rule.Expression, rule.Comparator, actual, expected)
			perr := record.NewProcessError(record.TypeAssertionFailed, desc)
			perr.Object.Detail = detail
			return nil, perr
		}
	}

	ev := record.NewProcess(record.TypeAssertionSuccess, fmt.Sprintf("断言成功：[%s]", run.Step.Label))
	ev.Detail = detail
	run.Emit(ctx, ev)
	return record.Fanout(ev), nil
}

// sourceDocument resolves the value the jq expressions run against: the last
// interface response body of the group, or a named variable.
func (e *assertionExecutor) sourceDocument(run *runtime.StepRun) (any, *record.DetailRef, error) {
	switch e.opts.Source {
	case "", SourceLastInterface:
		parent := run.Node.Parent()
		if parent == nil {
			return nil, nil, fmt.Errorf("无可断言的接口响应")
		}
		last, _ := parent.LastInterface()
		if last == nil {
			return nil, nil, fmt.Errorf("无可断言的接口响应")
		}
		out := last.Outcome()
		if out == nil {
			return nil, nil, fmt.Errorf("无可断言的接口响应")
		}
		detail := &record.DetailRef{Type: out.DetailType, Index: out.DetailIndex + ":response"}
		var doc any
		if err := json.Unmarshal([]byte(out.Body), &doc); err != nil {
			// Non-JSON bodies are asserted as plain strings.
			doc = out.Body
		}
		return doc, detail, nil

	case "variable":
		value, ok := run.Vars().Get(e.opts.Variable)
		if !ok {
			return nil, nil, fmt.Errorf("变量不存在：%s", e.opts.Variable)
		}
		return normalizeJSON(value), nil, nil

	default:
		return nil, nil, fmt.Errorf("未知断言来源：%s", e.opts.Source)
	}
}

// evalJQ runs one jq expression and returns its first result.
func evalJQ(doc any, expression string) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return doc, nil
	}
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("表达式解析失败：%s", err.Error())
	}
	iter := query.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("表达式执行失败：%s", err.Error())
	}
	return v, nil
}

// normalizeJSON re-encodes arbitrary values through JSON so jq sees only the
// types it understands.
func normalizeJSON(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

func compare(comparator string, actual, expected any) (bool, error) {
	switch comparator {
	case "", "eq", "equal":
		return looseEqual(actual, expected), nil
	case "neq", "not_equal":
		return !looseEqual(actual, expected), nil
	case "contains":
		return strings.Contains(stringify(actual), stringify(expected)), nil
	case "not_contains":
		return !strings.Contains(stringify(actual), stringify(expected)), nil
	case "gt", "gte", "lt", "lte":
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false, fmt.Errorf("非数值无法比较大小：%v %v", actual, expected)
		}
		switch comparator {
		case "gt":
			return a > b, nil
		case "gte":
			return a >= b, nil
		case "lt":
			return a < b, nil
		default:
			return a <= b, nil
		}
	case "exists":
		return actual != nil, nil
	case "not_exists":
		return actual == nil, nil
	default:
		return false, fmt.Errorf("未知比较符：%s", comparator)
	}
}

// looseEqual compares across the numeric and string encodings JSON round
// trips produce.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return stringify(a) == stringify(b)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
