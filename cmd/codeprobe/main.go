package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/m4xw311/codeprobe/agent"
	"github.com/m4xw311/codeprobe/agent/terminal"
	"github.com/m4xw311/codeprobe/config"
	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/llm"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
	"github.com/m4xw311/codeprobe/tools/mcp"
)

const version = "1.0.0"

// errReported marks failures already printed to stderr.
var errReported = errors.New("reported")

// newClient is replaced in tests.
var newClient = llm.NewClient

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "codeprobe",
		Short:         "AI-powered code analysis from the command line",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(&cobra.Command{
		Use:   "providers",
		Short: "List available AI providers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range llm.Available() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (default model %s)\n", name, llm.DefaultModel(name))
			}
		},
	})
	return root
}

type analyzeFlags struct {
	query         string
	maxTokens     int
	provider      string
	model         string
	maxSteps      int
	confirm       bool
	toolVerbosity string
	verbose       bool
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze your codebase using AI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "Question about your codebase")
	cmd.Flags().IntVarP(&f.maxTokens, "max-tokens", "m", config.DefaultMaxTokens, "Maximum tokens per model response")
	cmd.Flags().StringVarP(&f.provider, "provider", "p", config.DefaultProvider, "AI provider to use ("+strings.Join(llm.Available(), ", ")+")")
	cmd.Flags().StringVar(&f.model, "model", "", "Model name (defaults to the provider's default)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", config.DefaultMaxSteps, "Maximum tool steps, 0 for no limit")
	cmd.Flags().BoolVar(&f.confirm, "confirm", false, "Ask before running each tool")
	cmd.Flags().StringVar(&f.toolVerbosity, "tool-verbosity", string(agent.ToolVerbosityInfo), "Tool output: none, info or all")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.MarkFlagRequired("query")
	return cmd
}

// settings merges flags over configuration.
func settings(cmd *cobra.Command, f analyzeFlags, cfg *config.Config) (provider, model string, opts agent.Options) {
	flags := cmd.Flags()
	provider = cfg.Provider
	if flags.Changed("provider") {
		provider = f.provider
	}
	model = cfg.Model
	if flags.Changed("model") || (flags.Changed("provider") && f.provider != cfg.Provider) {
		model = f.model
	}
	opts = agent.Options{
		MaxTokens:        cfg.MaxTokens,
		MaxSteps:         cfg.StepLimit(),
		SummaryMaxTokens: cfg.SummaryMaxTokens,
	}
	if flags.Changed("max-tokens") {
		opts.MaxTokens = f.maxTokens
	}
	if flags.Changed("max-steps") {
		opts.MaxSteps = f.maxSteps
	}
	return provider, model, opts
}

func runAnalyze(cmd *cobra.Command, f analyzeFlags) error {
	ctx := cmd.Context()
	errOut := cmd.ErrOrStderr()

	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})).With("run", uuid.NewString())
	slog.SetDefault(logger)

	verbosity, err := agent.ParseToolVerbosity(f.toolVerbosity)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "failed to load configuration")
	}
	provider, model, opts := settings(cmd, f, cfg)

	if !llm.Known(provider) {
		fmt.Fprintf(errOut, "Unknown provider: %s. Available providers: %s\n", provider, strings.Join(llm.Available(), ", "))
		return errReported
	}
	client, err := newClient(ctx, provider, model)
	if err != nil {
		return err
	}

	root, err := os.Getwd()
	if err != nil {
		return errors.Wrapf(err, "failed to get working directory")
	}

	sess := session.New()
	registry := tools.NewToolRegistry(sess)
	if err := registry.RegisterAll(tools.Builtin(cfg, root)); err != nil {
		return err
	}
	for _, c := range mcp.StartAll(ctx, cfg.MCPServers) {
		defer c.Stop()
		for _, t := range c.Tools() {
			if err := registry.Register(t); err != nil {
				slog.Warn("Skipping MCP tool", "server", c.Name, "tool", t.Name(), "err", err)
			}
		}
	}
	slog.Debug("Starting analysis", "provider", provider, "model", model, "tools", len(registry.Names()), "max_steps", opts.MaxSteps)

	a := agent.New(sess, llm.NewAdapter(client, sess, registry.Definitions()), registry, opts)
	term := terminal.New(a, terminal.Options{
		Out:       cmd.OutOrStdout(),
		In:        cmd.InOrStdin(),
		Confirm:   f.confirm,
		Verbosity: verbosity,
	})
	if _, err := term.Run(ctx, f.query); err != nil {
		return errors.Wrapf(err, "analysis stopped")
	}
	return nil
}
