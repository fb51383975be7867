package llm

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/m4xw311/codeprobe/tools"
)

// Environment describes the machine the agent runs on. It is shown to the
// model so paths and commands fit the host.
type Environment struct {
	OS        string
	Arch      string
	HomeDir   string
	Username  string
	Shell     string
	GoVersion string
	Cwd       string
}

// CurrentEnvironment inspects the running process. Lookups that fail are
// left empty.
func CurrentEnvironment() Environment {
	env := Environment{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Shell:     os.Getenv("SHELL"),
		GoVersion: runtime.Version(),
	}
	env.HomeDir, _ = os.UserHomeDir()
	env.Cwd, _ = os.Getwd()
	if u, err := user.Current(); err == nil {
		env.Username = u.Username
	}
	if env.Shell == "" && runtime.GOOS == "windows" {
		env.Shell = os.Getenv("ComSpec")
	}
	return env
}

func toolList(defs []tools.Definition) string {
	var b strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&b, "** %s: %s\n", d.Name, d.Description)
	}
	return b.String()
}

func planPrompt(defs []tools.Definition) string {
	return fmt.Sprintf(`You are a planning assistant for a code analysis agent.

Write a short, numbered execution plan that accomplishes the user's goal using ONLY these tools:
-----------------
%s-----------------

Rules:
1. Each step names the tool to use and what it should look for.
2. Keep the plan as short as the goal allows.
3. Do not execute anything and do not ask the user questions.
4. End with a step that states what the final answer must contain.`, toolList(defs))
}

func functionCallPrompt(env Environment, defs []tools.Definition, plan string, maxTokens int) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant that can use tools to accomplish tasks.\n\n")
	fmt.Fprintf(&b, "** Operating system: %s (%s) **\n", env.OS, env.Arch)
	fmt.Fprintf(&b, "** User home directory (global configurations): %s **\n", env.HomeDir)
	fmt.Fprintf(&b, "** Username: %s **\n", env.Username)
	fmt.Fprintf(&b, "** Shell: %s **\n", env.Shell)
	fmt.Fprintf(&b, "** Go runtime: %s **\n", env.GoVersion)
	fmt.Fprintf(&b, "** Current working directory: %s **\n\n", env.Cwd)

	b.WriteString("-----------------\nYou can ONLY use these tools:\n")
	b.WriteString(toolList(defs))
	b.WriteString("-----------------\n\n")

	if plan != "" {
		fmt.Fprintf(&b, "Execution plan:\n%s\n\n", plan)
	}

	b.WriteString(`IMPORTANT:
1. Respect the user's resources: avoid calls that scan far more files than the goal needs.
2. Call only the tools listed above, one at a time.
3. Learn from earlier errors in the conversation and do not repeat a failing call unchanged.
4. Read a file before creating or patching it so the result keeps its format and structure.
5. When a tool returns content in chunks, read only as many chunks as the plan needs.
6. Use paths and commands that fit the operating system above.
7. Use find_files to locate files by name and grep_search to search inside them.
8. Do not ask the user questions.
9. When the plan is complete, reply without calling a tool.
`)
	if maxTokens > 0 {
		fmt.Fprintf(&b, "10. You have a maximum of %d tokens for each response.\n", maxTokens)
	}
	return b.String()
}

func summaryPrompt(plan string, maxTokens int) string {
	return fmt.Sprintf(`You are a code analysis assistant.

Original execution plan:
%s

Your task is to:
1. Review the conversation history against the original execution plan.
2. Summarize what the executed tools returned and how it relates to the plan.
3. Give a clear and very short summary of what was found or accomplished.
4. Provide the information the plan's goal asked for.

Keep the summary professional. Maximum %d tokens.`, plan, maxTokens)
}
