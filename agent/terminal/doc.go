// Package terminal prints an agent run to the terminal.
//
// Output follows the run: "Generating plan...", the plan, then for every step
// "Executing step N..." and, depending on verbosity, the tool name and its
// JSON arguments. The summary is printed last.
//
// # Usage
//
//	term := terminal.New(a, terminal.Options{Verbosity: agent.ToolVerbosityInfo})
//	summary, err := term.Run(ctx, query)
//
// # Verbosity Levels
//
//   - none: only steps, plan and summary are shown
//   - info: tool names and arguments are shown as well
//   - all: tool progress lines are shown too
//
// # Confirmation
//
// With Options.Confirm set, each tool call waits for "y" on the input stream.
// Anything else, including end of input, declines the call.
package terminal
