// Package agent runs the plan-execute-observe loop.
//
// A run has four states:
//
//   - StatePlanning: the provider turns the query into a plan, which is stored
//     on the session and appended as the first user message.
//   - StateExecuting: the provider is asked for one tool call per step. Each
//     call is executed through the tool registry, which records the outcome in
//     the session before the next step begins.
//   - StateSummarizing: once the provider stops asking for tools (or the step
//     limit is reached) it is asked for a summary.
//   - StateDone.
//
// # Usage
//
//	sess := session.New()
//	registry := tools.NewToolRegistry(sess)
//	registry.RegisterAll(tools.Builtin(cfg, root))
//	provider := llm.NewAdapter(client, sess, registry.Definitions())
//
//	a := agent.New(sess, provider, registry, agent.Options{MaxTokens: 4000, MaxSteps: 25})
//	summary, err := a.Run(ctx, "Which Go version does this module target?", agent.Callbacks{
//	    OnStep: func(n int) { fmt.Printf("Executing step %d...\n", n) },
//	})
//
// # Callbacks
//
// Callbacks let a front-end report progress without the loop knowing how it is
// displayed. ShouldExecuteTool is the confirmation hook: a declined call is
// recorded as skipped and the provider picks the next action.
//
// # Subpackages
//
// agent/terminal prints a run to the terminal and optionally asks before each
// tool call.
package agent
