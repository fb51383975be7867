package agent

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/llm"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
)

type echoTool struct {
	calls []string
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echo the text back" }
func (e *echoTool) Parameters() []tools.Parameter {
	return []tools.Parameter{{Name: "text", Type: tools.TypeString, Required: true}}
}
func (e *echoTool) Execute(ctx context.Context, args tools.Args) (any, error) {
	e.calls = append(e.calls, args.String(0))
	return args.String(0), nil
}
func (e *echoTool) Format(result any) (any, string) { return result, "" }

type failTool struct{}

func (failTool) Name() string                    { return "fail" }
func (failTool) Description() string             { return "Always fails" }
func (failTool) Parameters() []tools.Parameter   { return nil }
func (failTool) Format(result any) (any, string) { return result, "" }
func (failTool) Execute(context.Context, tools.Args) (any, error) {
	return nil, fmt.Errorf("disk on fire")
}

type fixture struct {
	agent  *Agent
	client *llm.MockLLMClient
	sess   *session.Session
	echo   *echoTool
}

func newFixture(t *testing.T, opts Options, script ...llm.MockResponse) *fixture {
	t.Helper()
	sess := session.New()
	registry := tools.NewToolRegistry(sess)
	echo := &echoTool{}
	if err := registry.RegisterAll([]tools.Tool{echo, failTool{}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	client := llm.NewMockLLMClient(script...)
	provider := llm.NewAdapter(client, sess, registry.Definitions())
	return &fixture{
		agent:  New(sess, provider, registry, opts),
		client: client,
		sess:   sess,
		echo:   echo,
	}
}

func contents(msgs []session.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ": " + m.Content
	}
	return out
}

func TestRunSingleStep(t *testing.T) {
	f := newFixture(t, Options{MaxTokens: 4000},
		llm.Text("1. Echo hi"),
		llm.Call("echo", map[string]any{"text": "hi"}),
		llm.Text(""),
		llm.Text("Echoed hi."),
	)

	var states []State
	var steps []int
	var plan, summary string
	got, err := f.agent.Run(context.Background(), "say hi", Callbacks{
		OnState:   func(s State) { states = append(states, s) },
		OnPlan:    func(p string) { plan = p },
		OnStep:    func(n int) { steps = append(steps, n) },
		OnSummary: func(s string) { summary = s },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "Echoed hi." || summary != got {
		t.Errorf("unexpected summary %q / %q", got, summary)
	}
	if plan != "1. Echo hi" || f.sess.Plan() != plan {
		t.Errorf("unexpected plan %q", plan)
	}
	if !reflect.DeepEqual(states, []State{StatePlanning, StateExecuting, StateSummarizing, StateDone}) {
		t.Errorf("unexpected states %v", states)
	}
	if !reflect.DeepEqual(steps, []int{1, 2}) {
		t.Errorf("unexpected steps %v", steps)
	}

	want := []string{
		"user: 1. Echo hi",
		`assistant: Calling echo with arguments {"text":"hi"}`,
		`user: echo RESULT: "hi"`,
		"assistant: Echoed hi.",
	}
	if got := contents(f.sess.Messages()); !reflect.DeepEqual(got, want) {
		t.Errorf("messages =\n%v\nwant\n%v", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	reqs := f.client.Requests()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 provider requests, got %d", len(reqs))
	}
	if len(reqs[2].Messages) != 3 {
		t.Errorf("step 2 should see the tool result, got %d messages", len(reqs[2].Messages))
	}
	if len(reqs[1].Functions) != 2 || reqs[1].MaxTokens != 4000 {
		t.Errorf("unexpected function-call request %+v", reqs[1])
	}
}

func TestRunThreeSteps(t *testing.T) {
	f := newFixture(t, Options{},
		llm.Text("plan"),
		llm.Call("echo", map[string]any{"text": "a"}),
		llm.Call("echo", map[string]any{"text": "b"}),
		llm.Call("echo", map[string]any{"text": "c"}),
		llm.Text("Finished."),
		llm.Text("a, b and c were echoed."),
	)
	if _, err := f.agent.Run(context.Background(), "q", Callbacks{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(f.echo.calls, []string{"a", "b", "c"}) {
		t.Errorf("unexpected tool calls %v", f.echo.calls)
	}
	// plan, 3 x (call, result), final text, summary
	if f.sess.Len() != 9 {
		t.Errorf("expected 9 messages, got %d: %v", f.sess.Len(), contents(f.sess.Messages()))
	}
	msgs := f.sess.Messages()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Role == msgs[i-1].Role {
			t.Errorf("roles do not alternate at %d: %v", i, contents(msgs))
			break
		}
	}
}

func TestRunToolErrorContinues(t *testing.T) {
	f := newFixture(t, Options{},
		llm.Text("plan"),
		llm.Call("fail", nil),
		llm.Call("missing", map[string]any{}),
		llm.Call("echo", map[string]any{"text": 42}),
		llm.Call("echo", map[string]any{"text": "recovered"}),
		llm.Text(""),
		llm.Text("done"),
	)
	summary, err := f.agent.Run(context.Background(), "q", Callbacks{})
	if err != nil {
		t.Fatalf("tool failures must not end the run: %v", err)
	}
	if summary != "done" {
		t.Errorf("unexpected summary %q", summary)
	}
	joined := strings.Join(contents(f.sess.Messages()), "\n")
	for _, want := range []string{
		"user: fail ERROR: disk on fire",
		"user: Unknown tool: missing",
		"user: Invalid arguments for 'echo': ",
		`user: echo RESULT: "recovered"`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("log is missing %q:\n%s", want, joined)
		}
	}
	if !reflect.DeepEqual(f.echo.calls, []string{"recovered"}) {
		t.Errorf("invalid call must not execute, got %v", f.echo.calls)
	}
}

func TestRunStepLimit(t *testing.T) {
	f := newFixture(t, Options{MaxSteps: 2},
		llm.Text("plan"),
		llm.Call("echo", map[string]any{"text": "1"}),
		llm.Call("echo", map[string]any{"text": "2"}),
		llm.Text("partial summary"),
	)
	limit := 0
	summary, err := f.agent.Run(context.Background(), "q", Callbacks{
		OnStepLimit: func(n int) { limit = n },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if limit != 2 {
		t.Errorf("expected OnStepLimit(2), got %d", limit)
	}
	if summary != "partial summary" {
		t.Errorf("unexpected summary %q", summary)
	}
	if got := len(f.client.Requests()); got != 4 {
		t.Errorf("expected plan + 2 steps + summary requests, got %d", got)
	}
	msgs := f.sess.Messages()
	note := msgs[len(msgs)-2]
	if note.Role != session.RoleAssistant || !strings.Contains(note.Content, "Step limit of 2 reached") {
		t.Errorf("unexpected limit note %+v", note)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Role == msgs[i-1].Role {
			t.Errorf("messages %d and %d share role %s: %v", i-1, i, msgs[i].Role, contents(msgs))
		}
	}
}

func TestRunStepLimitOneStep(t *testing.T) {
	f := newFixture(t, Options{MaxSteps: 1},
		llm.Text("plan"),
		llm.Call("echo", map[string]any{"text": "1"}),
		llm.Text("summary"),
	)
	if _, err := f.agent.Run(context.Background(), "q", Callbacks{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs := f.sess.Messages()
	want := []session.Role{session.RoleUser, session.RoleAssistant, session.RoleUser, session.RoleAssistant, session.RoleUser}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), contents(msgs))
	}
	for i, m := range msgs {
		if m.Role != want[i] {
			t.Errorf("message %d role = %s, want %s", i, m.Role, want[i])
		}
	}
}

func TestRunNoStepLimit(t *testing.T) {
	script := []llm.MockResponse{llm.Text("plan")}
	for i := 0; i < 30; i++ {
		script = append(script, llm.Call("echo", map[string]any{"text": "x"}))
	}
	script = append(script, llm.Text(""), llm.Text("summary"))
	f := newFixture(t, Options{MaxSteps: 0}, script...)
	if _, err := f.agent.Run(context.Background(), "q", Callbacks{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.echo.calls) != 30 {
		t.Errorf("expected 30 executions without a cap, got %d", len(f.echo.calls))
	}
}

func TestRunDeclinedTool(t *testing.T) {
	f := newFixture(t, Options{},
		llm.Text("plan"),
		llm.Call("echo", map[string]any{"text": "secret"}),
		llm.Text(""),
		llm.Text("nothing ran"),
	)
	var seen []tools.Call
	_, err := f.agent.Run(context.Background(), "q", Callbacks{
		OnToolCall:        func(c tools.Call) { seen = append(seen, c) },
		ShouldExecuteTool: func(tools.Call) bool { return false },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.echo.calls) != 0 {
		t.Errorf("declined tool executed: %v", f.echo.calls)
	}
	if len(seen) != 1 || seen[0].Name != "echo" {
		t.Errorf("unexpected OnToolCall events %v", seen)
	}
	if !strings.Contains(strings.Join(contents(f.sess.Messages()), "\n"), "user: echo SKIPPED: declined by user") {
		t.Errorf("skip not recorded: %v", contents(f.sess.Messages()))
	}
}

func TestRunPlanError(t *testing.T) {
	f := newFixture(t, Options{}, llm.Fail("invalid api key"))
	var states []State
	_, err := f.agent.Run(context.Background(), "q", Callbacks{
		OnState: func(s State) { states = append(states, s) },
	})
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("expected plan error, got %v", err)
	}
	if f.sess.Len() != 0 {
		t.Errorf("no messages expected, got %v", contents(f.sess.Messages()))
	}
	if !reflect.DeepEqual(states, []State{StatePlanning}) {
		t.Errorf("unexpected states %v", states)
	}
}

func TestRunFunctionCallError(t *testing.T) {
	f := newFixture(t, Options{},
		llm.Text("plan"),
		llm.Call("echo", map[string]any{"text": "ok"}),
		llm.Fail("rate limited"),
	)
	_, err := f.agent.Run(context.Background(), "q", Callbacks{})
	if err == nil || !strings.Contains(err.Error(), "rate limited") || !strings.Contains(err.Error(), "step 2") {
		t.Fatalf("expected step 2 error, got %v", err)
	}
}

func TestRunSummaryFailureStillReturns(t *testing.T) {
	f := newFixture(t, Options{},
		llm.Text("plan"),
		llm.Text(""),
		llm.Fail("timeout"),
	)
	summary, err := f.agent.Run(context.Background(), "q", Callbacks{})
	if err != nil {
		t.Fatalf("summary failure must not fail the run: %v", err)
	}
	if !strings.HasPrefix(summary, "Error generating summary: ") {
		t.Errorf("unexpected summary %q", summary)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, Options{},
		llm.Text("plan"),
		llm.Call("echo", map[string]any{"text": "first"}),
		llm.Call("echo", map[string]any{"text": "second"}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := f.agent.Run(ctx, "q", Callbacks{
		OnToolCall: func(tools.Call) { cancel() },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(f.echo.calls) != 1 {
		t.Errorf("expected the in-flight step to finish and no more, got %v", f.echo.calls)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StatePlanning:    "planning",
		StateExecuting:   "executing",
		StateSummarizing: "summarizing",
		StateDone:        "done",
		State(9):         "State(9)",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestParseToolVerbosity(t *testing.T) {
	for _, s := range []string{"none", "info", "all"} {
		if v, err := ParseToolVerbosity(s); err != nil || string(v) != s {
			t.Errorf("ParseToolVerbosity(%q) = %q, %v", s, v, err)
		}
	}
	if _, err := ParseToolVerbosity("loud"); err == nil {
		t.Error("expected error for unknown verbosity")
	}
}
