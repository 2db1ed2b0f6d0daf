package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/runtime"
	"github.com/asynctest/asynctest/internal/spec"
)

func init() {
	runtime.RegisterExecutor(spec.StepTypeInterface, func(run *runtime.StepRun) (runtime.NodeExecutor, error) {
		var opts interfaceOptions
		if err := decodeOptions(run, &opts); err != nil {
			return nil, err
		}
		return &interfaceExecutor{opts: opts}, nil
	})
}

type interfaceOptions struct {
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Params     map[string]string `json:"params"`
	BodyType   string            `json:"body_type"`
	Body       any               `json:"body"`
	Timeout    int               `json:"timeout"`
	PreScript  string            `json:"pre_script"`
	PostScript string            `json:"post_script"`
}

// interfaceExecutor sends one HTTP request through the shared session, writes
// the full exchange as a detail blob, and publishes the outcome for
// downstream assertions in the same group.
type interfaceExecutor struct {
	opts interfaceOptions
}

func (e *interfaceExecutor) Execute(ctx context.Context, run *runtime.StepRun) (*record.CoreExecReturn, error) {
	if run.Engine.Session == nil {
		return nil, record.NewProcessError(record.TypeInterfaceException,
			fmt.Sprintf("接口发送异常：[%s] 会话未初始化", run.Step.Label))
	}

	req := run.Engine.Session.R().SetContext(ctx)
	url := e.buildURL(run)
	for name, value := range e.opts.Headers {
		req.SetHeader(run.Render(name), run.Render(value))
	}
	for name, value := range e.opts.Params {
		req.SetQueryParam(run.Render(name), run.Render(value))
	}
	e.attachBody(run, req)

	tools := &requestTools{req: req, url: url}
	if e.opts.PreScript != "" {
		if _, err := run.Engine.Scripts.Run(ctx, e.opts.PreScript, &runtime.ScriptContext{
			Vars:     run.Vars(),
			Print:    func(desc string) { run.Warn(ctx, record.TypeActionScriptPrint, desc) },
			Warn:     func(desc string) { run.Warn(ctx, record.TypeActionWarning, desc) },
			Position: run.Node.SPI.PositionList,
			Request:  tools,
			Engine:   run.Engine,
			Node:     run.Node,
		}); err != nil {
			run.Warn(ctx, record.TypeActionWarning, "前置脚本执行异常："+err.Error())
		}
	}

	method := strings.ToUpper(e.opts.Method)
	if method == "" {
		method = "GET"
	}
	start := time.Now()
	resp, sendErr := req.Execute(method, tools.url)
	elapsed := time.Since(start).Milliseconds()

	outcome := e.buildOutcome(resp, sendErr, elapsed)
	if run.Step.ShouldRaise {
		expected, valid := shouldRaiseCode(run.Step.RaiseCode)
		if !valid {
			run.Warn(ctx, record.TypeInterfaceWarning,
				fmt.Sprintf("异常码配置无效：[%s]，已按 500 处理", run.Step.RaiseCode))
		}
		outcome.OK = sendErr == nil && outcome.StatusCode == expected
	}
	detail := e.buildDetail(run, req, tools.url, method, outcome)
	outcome.DetailType = detail.Type
	outcome.DetailIndex = detail.Index
	run.Node.SetOutcome(outcome)
	run.Node.SetDetailIndex(detail.Index)
	if parent := run.Node.Parent(); parent != nil {
		parent.PublishInterface(run.Node, outcome.OK)
	}
	if err := run.Engine.Emitter.AddDetail(ctx, detail); err != nil {
		run.Warn(ctx, record.TypeInterfaceWarning, "接口详情写入失败："+err.Error())
	}

	if e.opts.PostScript != "" {
		if _, err := run.Engine.Scripts.Run(ctx, e.opts.PostScript, &runtime.ScriptContext{
			Vars:     run.Vars(),
			Print:    func(desc string) { run.Warn(ctx, record.TypeActionScriptPrint, desc) },
			Warn:     func(desc string) { run.Warn(ctx, record.TypeActionWarning, desc) },
			Position: run.Node.SPI.PositionList,
			Response: responseAccessor{out: outcome},
			Engine:   run.Engine,
			Node:     run.Node,
		}); err != nil {
			run.Warn(ctx, record.TypeActionWarning, "后置脚本执行异常："+err.Error())
		}
	}

	if !outcome.OK {
		desc := fmt.Sprintf("接口发送异常：[%s]", run.Step.Label)
		perr := record.NewProcessError(record.TypeInterfaceErrorFinished, desc)
		perr.Object.WithDetail(detail)
		return nil, perr
	}
	ev := record.NewProcess(record.TypeInterfaceSuccessFinished,
		fmt.Sprintf("接口发送完成：[%s]", run.Step.Label)).WithDetail(detail)
	run.Emit(ctx, ev)
	return record.Fanout(ev), nil
}

// buildURL joins the environment's server prefix with the rendered path when
// the step carries no absolute URL.
func (e *interfaceExecutor) buildURL(run *runtime.StepRun) string {
	if e.opts.URL != "" {
		return run.Render(e.opts.URL)
	}
	project, env := run.Vars().EnvRef()
	prefix := run.Engine.Cache.ServerPrefix(project, env)
	path := run.Render(e.opts.Path)
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(path, "/")
}

func (e *interfaceExecutor) attachBody(run *runtime.StepRun, req *resty.Request) {
	if e.opts.Body == nil {
		return
	}
	switch e.opts.BodyType {
	case "form":
		form := map[string]string{}
		if m, ok := e.opts.Body.(map[string]any); ok {
			for name, value := range m {
				form[name] = run.Render(fmt.Sprint(value))
			}
		}
		req.SetFormData(form)
	default:
		var text string
		if s, ok := e.opts.Body.(string); ok {
			text = s
		} else {
			raw, _ := json.Marshal(e.opts.Body)
			text = string(raw)
		}
		rendered := run.Render(text)
		if e.opts.BodyType == "" || e.opts.BodyType == "json" {
			req.SetHeader("Content-Type", "application/json")
		}
		req.SetBody(rendered)
	}
}

// buildOutcome classifies the exchange. A should_raise step succeeds only
// when the response carries the expected raise code; an invalid raise code
// degrades to 500 with a warning event from the caller's side.
func (e *interfaceExecutor) buildOutcome(resp *resty.Response, sendErr error, elapsed int64) *runtime.InterfaceOutcome {
	out := &runtime.InterfaceOutcome{DurationMs: elapsed}
	if sendErr != nil {
		out.ErrMsg = sendErr.Error()
		return out
	}
	out.StatusCode = resp.StatusCode()
	out.Body = string(resp.Body())
	out.Headers = map[string]string{}
	for name := range resp.Header() {
		out.Headers[name] = resp.Header().Get(name)
	}
	out.OK = resp.StatusCode() < 400
	return out
}

func (e *interfaceExecutor) buildDetail(run *runtime.StepRun, req *resty.Request, url, method string, out *runtime.InterfaceOutcome) *record.StepDetail {
	detailType := record.DetailTypeInterfaceSuccess
	if !out.OK {
		detailType = record.DetailTypeInterfaceError
	}
	index := strings.ReplaceAll(uuid.NewString(), "-", "")

	requestBlob, _ := json.Marshal(map[string]any{
		"method":  method,
		"url":     url,
		"headers": req.Header,
		"body":    req.Body,
	})
	responseBlob, _ := json.Marshal(map[string]any{
		"status_code": out.StatusCode,
		"headers":     out.Headers,
		"body":        out.Body,
		"error":       out.ErrMsg,
	})
	timingBlob, _ := json.Marshal(map[string]any{
		"total_ms": out.DurationMs,
	})
	resultBlob, _ := json.Marshal(map[string]any{
		"success": out.OK,
	})
	processBlob, _ := json.Marshal(run.Node.SPI.PositionList)

	return &record.StepDetail{
		Type:  detailType,
		Index: index,
		Data: map[string]string{
			"request":  string(requestBlob),
			"response": string(responseBlob),
			"timing":   string(timingBlob),
			"result":   string(resultBlob),
			"process":  string(processBlob),
		},
	}
}

// shouldRaiseCode resolves the expected status of a should_raise step; a
// malformed code falls back to 500.
func shouldRaiseCode(raw string) (int, bool) {
	code, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || code < 100 || code > 599 {
		return 500, false
	}
	return code, true
}

// responseAccessor adapts a stored outcome to the script capability surface.
type responseAccessor struct {
	out *runtime.InterfaceOutcome
}

func (a responseAccessor) StatusCode() int           { return a.out.StatusCode }
func (a responseAccessor) Header(name string) string { return a.out.Headers[name] }
func (a responseAccessor) Body() string              { return a.out.Body }
func (a responseAccessor) Err() string               { return a.out.ErrMsg }

// requestTools adapts a resty request to the script capability surface.
type requestTools struct {
	req *resty.Request
	url string
}

func (t *requestTools) SetHeader(name, value string)     { t.req.SetHeader(name, value) }
func (t *requestTools) SetURL(url string)                { t.url = url }
func (t *requestTools) SetQueryParam(name, value string) { t.req.SetQueryParam(name, value) }
func (t *requestTools) SetBody(body any)                 { t.req.SetBody(body) }
