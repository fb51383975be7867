package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m4xw311/codeprobe/session"
)

// recordingTool captures the positional arguments it receives.
type recordingTool struct {
	name     string
	params   []Parameter
	calls    int
	lastArgs Args
	result   any
	err      error
	panicMsg string
}

func (r *recordingTool) Name() string            { return r.name }
func (r *recordingTool) Description() string     { return "records calls" }
func (r *recordingTool) Parameters() []Parameter { return r.params }
func (r *recordingTool) Execute(_ context.Context, args Args) (any, error) {
	r.calls++
	r.lastArgs = args
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	return r.result, r.err
}
func (r *recordingTool) Format(result any) (any, string) {
	return result, "-- recorded"
}

func newTestRegistry(t *testing.T, ts ...Tool) (*ToolRegistry, *session.Session) {
	t.Helper()
	sess := session.New()
	reg := NewToolRegistry(sess)
	if err := reg.RegisterAll(ts); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg, sess
}

func onlyMessage(t *testing.T, sess *session.Session) session.Message {
	t.Helper()
	msgs := sess.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly 1 message, got %d: %v", len(msgs), msgs)
	}
	if msgs[0].Role != session.RoleUser {
		t.Errorf("expected user role, got %q", msgs[0].Role)
	}
	return msgs[0]
}

func TestExecuteUnknownTool(t *testing.T) {
	reg, sess := newTestRegistry(t)
	reg.ExecuteTool(context.Background(), "nonexistent_tool", map[string]any{})

	msg := onlyMessage(t, sess)
	if msg.Content != "Unknown tool: nonexistent_tool" {
		t.Errorf("unexpected message %q", msg.Content)
	}
}

func TestExecuteInvalidArguments(t *testing.T) {
	tool := &recordingTool{
		name:   "read_file_content",
		params: []Parameter{{Name: "path", Type: TypeString, Required: true}},
	}
	reg, sess := newTestRegistry(t, tool)
	reg.ExecuteTool(context.Background(), "read_file_content", map[string]any{"path": 123})

	msg := onlyMessage(t, sess)
	if !strings.HasPrefix(msg.Content, "Invalid arguments for 'read_file_content'") {
		t.Errorf("unexpected message %q", msg.Content)
	}
	if tool.calls != 0 {
		t.Errorf("tool executed %d times despite invalid arguments", tool.calls)
	}
}

func TestExecutePositionalOrder(t *testing.T) {
	tool := &recordingTool{
		name: "create_file",
		params: []Parameter{
			{Name: "path", Type: TypeString, Required: true},
			{Name: "content", Type: TypeString, Required: true},
			{Name: "overwrite", Type: TypeBoolean},
		},
		result: map[string]any{"success": true},
	}
	reg, sess := newTestRegistry(t, tool)

	var progress []string
	reg.OnProgress = func(name, line string) { progress = append(progress, name+" "+line) }

	// Map iteration order must not influence positions.
	reg.ExecuteTool(context.Background(), "create_file", map[string]any{
		"overwrite": true,
		"content":   "hello",
		"path":      "a.txt",
	})

	if tool.calls != 1 {
		t.Fatalf("expected 1 call, got %d", tool.calls)
	}
	if tool.lastArgs.String(0) != "a.txt" || tool.lastArgs.String(1) != "hello" || !tool.lastArgs.Bool(2) {
		t.Errorf("arguments bound out of order: %v", tool.lastArgs)
	}
	msg := onlyMessage(t, sess)
	if msg.Content != `create_file RESULT: {"success":true}` {
		t.Errorf("unexpected message %q", msg.Content)
	}
	if len(progress) != 1 || progress[0] != "create_file -- recorded" {
		t.Errorf("unexpected progress %v", progress)
	}
}

func TestExecuteToolError(t *testing.T) {
	tool := &recordingTool{
		name:   "create_file",
		params: []Parameter{{Name: "path", Type: TypeString, Required: true}},
		err:    errors.New("disk full"),
	}
	reg, sess := newTestRegistry(t, tool)
	reg.ExecuteTool(context.Background(), "create_file", map[string]any{"path": "x"})

	msg := onlyMessage(t, sess)
	if msg.Content != "create_file ERROR: disk full" {
		t.Errorf("unexpected message %q", msg.Content)
	}
}

func TestExecuteReportsEveryOutcome(t *testing.T) {
	tool := &recordingTool{
		name:   "create_file",
		params: []Parameter{{Name: "path", Type: TypeString, Required: true}},
		result: map[string]any{"success": true},
	}
	reg, sess := newTestRegistry(t, tool)
	var seen []string
	reg.OnResult = func(name, message string) { seen = append(seen, message) }

	ctx := context.Background()
	reg.ExecuteTool(ctx, "create_file", map[string]any{"path": "x"})
	reg.ExecuteTool(ctx, "create_file", map[string]any{})
	reg.ExecuteTool(ctx, "missing", nil)

	msgs := sess.Messages()
	if len(seen) != 3 || len(msgs) != 3 {
		t.Fatalf("expected 3 reported messages, got %v / %v", seen, msgs)
	}
	for i, m := range msgs {
		if seen[i] != m.Content {
			t.Errorf("reported %q, recorded %q", seen[i], m.Content)
		}
	}
}

func TestExecuteToolPanic(t *testing.T) {
	tool := &recordingTool{name: "boom", panicMsg: "kaboom"}
	reg, sess := newTestRegistry(t, tool)
	reg.ExecuteTool(context.Background(), "boom", nil)

	msg := onlyMessage(t, sess)
	if !strings.HasPrefix(msg.Content, "boom ERROR: ") || !strings.Contains(msg.Content, "kaboom") {
		t.Errorf("unexpected message %q", msg.Content)
	}
}

func TestExecuteUnserializableResult(t *testing.T) {
	tool := &recordingTool{name: "chan_tool", result: make(chan int)}
	reg, sess := newTestRegistry(t, tool)
	reg.ExecuteTool(context.Background(), "chan_tool", nil)

	msg := onlyMessage(t, sess)
	if !strings.HasPrefix(msg.Content, "chan_tool ERROR: ") {
		t.Errorf("unexpected message %q", msg.Content)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	sess := session.New()
	reg := NewToolRegistry(sess)
	if err := reg.Register(&recordingTool{name: "dup"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(&recordingTool{name: "dup"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := reg.Register(nil); err == nil {
		t.Error("expected nil tool to fail")
	}
}

func TestDefinitionsKeepRegistrationOrder(t *testing.T) {
	reg, _ := newTestRegistry(t,
		&recordingTool{name: "zeta"},
		&recordingTool{name: "alpha"},
		&recordingTool{name: "mid"},
	)
	defs := reg.Definitions()
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "zeta,alpha,mid" {
		t.Errorf("unexpected order %v", names)
	}
	if strings.Join(reg.Names(), ",") != "zeta,alpha,mid" {
		t.Errorf("unexpected Names() %v", reg.Names())
	}
}

func TestBuiltinToolsRegister(t *testing.T) {
	sess := session.New()
	reg := NewToolRegistry(sess)
	if err := reg.RegisterAll(Builtin(testConfig(), t.TempDir())); err != nil {
		t.Fatalf("builtin tools failed contract: %v", err)
	}
	for _, name := range []string{"list_directories", "read_file_content", "grep_search", "find_files", "create_file", "web_search", "fetch_web_page", "git_apply"} {
		if _, ok := reg.GetTool(name); !ok {
			t.Errorf("builtin tool %s not registered", name)
		}
	}
}
