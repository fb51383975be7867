package tools

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/m4xw311/codeprobe/errors"
)

type GitApplyResult struct {
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	CheckOnly bool   `json:"check_only,omitempty"`
}

// GitApplyTool applies a unified diff with git apply in the workspace root.
type GitApplyTool struct {
	ws *workspace
}

func (t *GitApplyTool) Name() string { return "git_apply" }
func (t *GitApplyTool) Description() string {
	return "Uses git apply with provided content to make file content changes. The patch must be a unified diff."
}
func (t *GitApplyTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "patch", Type: TypeString, Required: true, Description: "Unified diff to apply"},
		{Name: "check_only", Type: TypeBoolean, Description: "Only check whether the patch applies"},
	}
}

func (t *GitApplyTool) Execute(ctx context.Context, args Args) (any, error) {
	patch := args.String(0)
	if strings.TrimSpace(patch) == "" {
		return nil, errors.New("patch must not be empty")
	}
	if !strings.HasSuffix(patch, "\n") {
		patch += "\n"
	}
	if _, err := exec.LookPath("git"); err != nil {
		return nil, errors.Wrapf(err, "git is not available")
	}

	for _, target := range patchTargets(patch) {
		if _, err := t.ws.checkWrite(target); err != nil {
			return nil, err
		}
	}

	checkOnly := args.Bool(1)
	cmdArgs := []string{"apply"}
	if checkOnly {
		cmdArgs = append(cmdArgs, "--check")
	}
	cmdArgs = append(cmdArgs, "-")

	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	cmd.Dir = t.ws.root
	cmd.Stdin = strings.NewReader(patch)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, errors.Wrapf(err, "failed to run git apply")
	}
	output := strings.TrimSpace(out.String())
	if err == nil && output == "" {
		output = "ok"
	}
	return &GitApplyResult{Success: err == nil, Output: output, CheckOnly: checkOnly}, nil
}

func (t *GitApplyTool) Format(result any) (any, string) {
	r, ok := result.(*GitApplyResult)
	if !ok {
		return result, ""
	}
	switch {
	case r.Success && r.CheckOnly:
		return r.Output, "-- Patch applies cleanly"
	case r.Success:
		return r.Output, "-- Patch applied successfully"
	case r.CheckOnly:
		return r.Output, "-- Patch does not apply"
	}
	return r.Output, "-- Failed to apply patch"
}

// patchTargets returns every path a unified diff touches: the sources and
// targets of each file header plus rename and copy endpoints.
func patchTargets(patch string) []string {
	var targets []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || p == "/dev/null" || seen[p] {
			return
		}
		seen[p] = true
		targets = append(targets, p)
	}
	lines := strings.Split(patch, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ "):
			add(strings.TrimPrefix(headerPath(line[4:]), "a/"))
			add(strings.TrimPrefix(headerPath(lines[i+1][4:]), "b/"))
		case strings.HasPrefix(line, "rename from "):
			add(strings.TrimSpace(line[len("rename from "):]))
		case strings.HasPrefix(line, "rename to "):
			add(strings.TrimSpace(line[len("rename to "):]))
		case strings.HasPrefix(line, "copy from "):
			add(strings.TrimSpace(line[len("copy from "):]))
		case strings.HasPrefix(line, "copy to "):
			add(strings.TrimSpace(line[len("copy to "):]))
		}
	}
	return targets
}

// headerPath strips the optional timestamp from a ---/+++ header path.
func headerPath(p string) string {
	if i := strings.IndexByte(p, '\t'); i >= 0 {
		p = p[:i]
	}
	return strings.TrimSpace(p)
}
