package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/session"
)

// ToolRegistry holds all available tools and records every execution into
// the session.
type ToolRegistry struct {
	session *session.Session
	tools   map[string]Tool
	order   []string

	// OnProgress, when set, receives the progress note of each successful
	// execution.
	OnProgress func(tool, line string)

	// OnResult, when set, receives every message ExecuteTool records.
	OnResult func(tool, message string)
}

func NewToolRegistry(sess *session.Session) *ToolRegistry {
	return &ToolRegistry{
		session: sess,
		tools:   make(map[string]Tool),
	}
}

// Register adds a tool after checking its declaration.
func (r *ToolRegistry) Register(t Tool) error {
	if t == nil {
		return errors.New("tool is nil")
	}
	if err := checkContract(t); err != nil {
		return errors.Wrapf(err, "cannot register tool")
	}
	if _, exists := r.tools[t.Name()]; exists {
		return errors.New("tool %s already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions exports every tool in registration order.
func (r *ToolRegistry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// ExecuteTool validates and runs the named tool and appends exactly one user
// message describing the outcome. Failures never escape: an unknown tool,
// invalid arguments or a failing tool are all recorded for the provider to
// see on its next turn.
func (r *ToolRegistry) ExecuteTool(ctx context.Context, name string, args map[string]any) {
	t, ok := r.GetTool(name)
	if !ok {
		slog.Warn("Unknown tool", "tool", name)
		r.record(name, fmt.Sprintf("Unknown tool: %s", name))
		return
	}

	params := t.Parameters()
	if err := CheckArgs(args, params); err != nil {
		slog.Warn("Invalid tool arguments", "tool", name, "err", err)
		r.record(name, fmt.Sprintf("Invalid arguments for '%s': %v", name, err))
		return
	}

	res := r.run(ctx, t, bindArgs(args, params))
	if res.Err == nil {
		var data []byte
		data, res.Err = json.Marshal(res.Value)
		if res.Err == nil {
			if res.Progress != "" {
				slog.Debug("Tool progress", "tool", name, "progress", res.Progress)
				if r.OnProgress != nil {
					r.OnProgress(name, res.Progress)
				}
			}
			r.record(name, fmt.Sprintf("%s RESULT: %s", name, data))
			return
		}
	}

	slog.Warn("Tool error", "tool", name, "err", res.Err)
	r.record(name, fmt.Sprintf("%s ERROR: %v", name, res.Err))
}

func (r *ToolRegistry) record(name, message string) {
	r.session.AddMessage(session.RoleUser, message)
	if r.OnResult != nil {
		r.OnResult(name, message)
	}
}

// run executes and formats, turning a panic into an error result.
func (r *ToolRegistry) run(ctx context.Context, t Tool, args Args) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Err: fmt.Errorf("tool panicked: %v", p)}
		}
	}()

	raw, err := t.Execute(ctx, args)
	if err != nil {
		return Result{Err: err}
	}
	value, progress := t.Format(raw)
	return Result{Value: value, Progress: progress}
}
