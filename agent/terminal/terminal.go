package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/m4xw311/codeprobe/agent"
	"github.com/m4xw311/codeprobe/tools"
)

// Options configure the terminal. Nil streams default to stdout and stdin.
type Options struct {
	Out       io.Writer
	In        io.Reader
	Confirm   bool
	Verbosity agent.ToolVerbosity
}

type styles struct {
	status  lipgloss.Style
	plan    lipgloss.Style
	step    lipgloss.Style
	tool    lipgloss.Style
	detail  lipgloss.Style
	warn    lipgloss.Style
	summary lipgloss.Style
}

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent  *agent.Agent
	opts   Options
	in     *bufio.Reader
	styles styles
}

// New creates a new Terminal instance
func New(a *agent.Agent, opts Options) *Terminal {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Verbosity == "" {
		opts.Verbosity = agent.ToolVerbosityInfo
	}
	r := lipgloss.NewRenderer(opts.Out)
	return &Terminal{
		agent: a,
		opts:  opts,
		in:    bufio.NewReader(opts.In),
		styles: styles{
			status:  r.NewStyle().Faint(true),
			plan:    r.NewStyle().Foreground(lipgloss.Color("12")),
			step:    r.NewStyle().Bold(true),
			tool:    r.NewStyle().Foreground(lipgloss.Color("10")),
			detail:  r.NewStyle().Faint(true),
			warn:    r.NewStyle().Foreground(lipgloss.Color("11")),
			summary: r.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).PaddingLeft(1),
		},
	}
}

// Run executes one query and prints its progress. The summary is returned as
// well as printed.
func (t *Terminal) Run(ctx context.Context, query string) (string, error) {
	reg := t.agent.Registry
	if t.opts.Verbosity != agent.ToolVerbosityNone {
		reg.OnProgress = func(_, line string) {
			t.println(t.styles.detail.Render(line))
		}
		defer func() { reg.OnProgress = nil }()
	}
	if t.opts.Verbosity == agent.ToolVerbosityAll {
		reg.OnResult = func(_, message string) {
			t.println(t.styles.detail.Render(message))
		}
		defer func() { reg.OnResult = nil }()
	}
	return t.agent.Run(ctx, query, t.callbacks())
}

func (t *Terminal) callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnState: func(s agent.State) {
			if s == agent.StatePlanning {
				t.println(t.styles.status.Render("Generating plan..."))
			}
		},
		OnPlan: func(plan string) {
			t.println("\n" + t.styles.plan.Render(plan))
		},
		OnStep: func(n int) {
			t.println("\n" + t.styles.step.Render(fmt.Sprintf("Executing step %d...", n)))
		},
		OnToolCall: func(call tools.Call) {
			if t.opts.Verbosity == agent.ToolVerbosityNone {
				return
			}
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				args = []byte(fmt.Sprint(call.Arguments))
			}
			t.println(t.styles.tool.Render("Tool: " + call.Name))
			t.println(t.styles.detail.Render("Arguments: " + string(args)))
		},
		ShouldExecuteTool: t.confirm,
		OnStepLimit: func(limit int) {
			t.println(t.styles.warn.Render(fmt.Sprintf("Step limit of %d reached, summarizing.", limit)))
		},
		OnSummary: func(summary string) {
			t.println("\n" + t.styles.summary.Render(summary))
		},
	}
}

// confirm asks before each tool call when confirmation is on. EOF declines.
func (t *Terminal) confirm(call tools.Call) bool {
	if !t.opts.Confirm {
		return true
	}
	fmt.Fprintf(t.opts.Out, "Allow tool %s? (y/n): ", call.Name)
	answer, err := t.in.ReadString('\n')
	if err != nil && answer == "" {
		t.println("")
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func (t *Terminal) println(s string) {
	fmt.Fprintln(t.opts.Out, s)
}
