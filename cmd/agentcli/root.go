package main

import (
	"time"

	"github.com/spf13/cobra"
)

type cliFlags struct {
	configPath  string
	provider    string
	model       string
	apiKey      string
	effort      string
	output      string
	dir         string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	maxIter     int
	autoApprove bool
	noAgent     bool
	noConfirm   bool
	debug       bool
	trace       bool
}

var flags cliFlags

func newRootCmd() *cobra.Command {
	flags = cliFlags{}
	root := &cobra.Command{
		Use:   "agentcli [prompt]",
		Short: "Ask a language model to work on the current directory",
		Long: `agentcli sends a prompt to Claude, GPT or Gemini, reads the actions the
model describes and carries them out with sandboxed file, shell, network and
code analysis tools. Destructive actions ask for confirmation.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAsk,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default <user config dir>/agentcli/config.yaml)")
	pf.StringVarP(&flags.provider, "provider", "p", "", "LLM provider: claude, gpt or gemini")
	pf.StringVarP(&flags.model, "model", "m", "", "model name")
	pf.StringVar(&flags.apiKey, "api-key", "", "API key (default from config or environment)")
	pf.StringVarP(&flags.effort, "effort", "e", "", "reasoning effort: low, medium, high or maximum")
	pf.StringVarP(&flags.output, "output", "o", "", "output format: text, json or markdown")
	pf.StringVarP(&flags.dir, "dir", "C", "", "working directory (default current directory)")
	pf.IntVar(&flags.maxTokens, "max-tokens", 0, "maximum tokens in the reply")
	pf.Float64Var(&flags.temperature, "temperature", 0, "sampling temperature")
	pf.DurationVar(&flags.timeout, "timeout", 0, "timeout per model call")
	pf.IntVar(&flags.maxIter, "max-iterations", 0, "iteration cap for autonomous runs")
	pf.BoolVarP(&flags.autoApprove, "yes", "y", false, "approve destructive actions without asking")
	pf.BoolVar(&flags.noAgent, "no-agent", false, "chat only; do not execute actions")
	pf.BoolVar(&flags.noConfirm, "no-confirm", false, "disable the confirmation prompt")
	pf.BoolVar(&flags.debug, "debug", false, "verbose logging")
	pf.BoolVar(&flags.trace, "trace", false, "record a trace database for the session")

	root.AddCommand(
		&cobra.Command{
			Use:   "ask <prompt>",
			Short: "Run one prompt (the default command)",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runAsk,
		},
		&cobra.Command{
			Use:   "auto <task>",
			Short: "Work on a task over several iterations until it is complete",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runAuto,
		},
		newConfigCmd(),
		newHistoryCmd(),
		newSearchCmd(),
		newCleanupCmd(),
		&cobra.Command{
			Use:   "test-key [provider]",
			Short: "Check that the configured API key works",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runTestKey,
		},
	)
	return root
}
