package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/llm"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
)

// State is a phase of a run.
type State int

const (
	StatePlanning State = iota
	StateExecuting
	StateSummarizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateSummarizing:
		return "summarizing"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ParseToolVerbosity accepts none, info or all.
func ParseToolVerbosity(s string) (ToolVerbosity, error) {
	switch v := ToolVerbosity(s); v {
	case ToolVerbosityNone, ToolVerbosityInfo, ToolVerbosityAll:
		return v, nil
	}
	return "", errors.New("invalid tool verbosity %q (want none, info or all)", s)
}

// Options bound a run. MaxSteps limits the number of function-call requests;
// zero means no limit.
type Options struct {
	MaxTokens        int
	MaxSteps         int
	SummaryMaxTokens int
}

// Callbacks let a front-end observe and steer a run. All are optional.
type Callbacks struct {
	OnState    func(State)
	OnPlan     func(plan string)
	OnStep     func(n int)
	OnToolCall func(call tools.Call)

	// ShouldExecuteTool returns false to decline a call. The provider is told
	// and the run continues.
	ShouldExecuteTool func(call tools.Call) bool
	OnStepLimit       func(limit int)
	OnSummary         func(summary string)
}

// Agent drives one plan-execute-observe run over a shared session.
type Agent struct {
	Session  *session.Session
	Provider llm.Provider
	Registry *tools.ToolRegistry
	opts     Options
}

func New(sess *session.Session, provider llm.Provider, registry *tools.ToolRegistry, opts Options) *Agent {
	if opts.MaxSteps < 0 {
		opts.MaxSteps = 0
	}
	return &Agent{
		Session:  sess,
		Provider: provider,
		Registry: registry,
		opts:     opts,
	}
}

// Run plans the query, executes provider-selected tools one at a time until
// the provider stops asking for them or the step limit is hit, and returns the
// summary. Plan and function-call failures end the run with an error; the
// summary step always produces text.
func (a *Agent) Run(ctx context.Context, query string, cb Callbacks) (string, error) {
	setState(cb, StatePlanning)
	plan, err := a.Provider.GetPlan(ctx, query)
	if err != nil {
		return "", errors.Wrapf(err, "planning failed")
	}
	a.Session.SetPlan(plan)
	a.Session.AddMessage(session.RoleUser, plan)
	if cb.OnPlan != nil {
		cb.OnPlan(plan)
	}

	setState(cb, StateExecuting)
	if err := a.execute(ctx, cb); err != nil {
		return "", err
	}

	setState(cb, StateSummarizing)
	summary := a.Provider.GetSummary(ctx, a.opts.SummaryMaxTokens)
	if cb.OnSummary != nil {
		cb.OnSummary(summary)
	}
	setState(cb, StateDone)
	return summary, nil
}

func (a *Agent) execute(ctx context.Context, cb Callbacks) error {
	defs := a.Registry.Definitions()
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.opts.MaxSteps > 0 && step > a.opts.MaxSteps {
			slog.Warn("Step limit reached", "limit", a.opts.MaxSteps)
			a.Session.AddMessage(a.Session.NextRole(), fmt.Sprintf(
				"Step limit of %d reached. No more tools will be run; summarize what was found so far.", a.opts.MaxSteps))
			if cb.OnStepLimit != nil {
				cb.OnStepLimit(a.opts.MaxSteps)
			}
			return nil
		}

		if cb.OnStep != nil {
			cb.OnStep(step)
		}
		call, err := a.Provider.GetFunctionCall(ctx, llm.FunctionCallRequest{
			MaxTokens: a.opts.MaxTokens,
			Functions: defs,
		})
		if err != nil {
			return errors.Wrapf(err, "step %d failed", step)
		}
		if call == nil {
			slog.Debug("Provider finished", "steps", step-1, "messages", a.Session.Len())
			return nil
		}

		if cb.OnToolCall != nil {
			cb.OnToolCall(*call)
		}
		if cb.ShouldExecuteTool != nil && !cb.ShouldExecuteTool(*call) {
			a.Session.AddMessage(session.RoleUser, fmt.Sprintf("%s SKIPPED: declined by user", call.Name))
			continue
		}
		slog.Debug("Executing tool", "step", step, "tool", call.Name)
		a.Registry.ExecuteTool(ctx, call.Name, call.Arguments)
	}
}

func setState(cb Callbacks, s State) {
	if cb.OnState != nil {
		cb.OnState(s)
	}
}
