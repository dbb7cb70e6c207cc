package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/agentcli/internal/agent"
	"github.com/ChamsBouzaiene/agentcli/internal/config"
	"github.com/ChamsBouzaiene/agentcli/internal/conversation"
	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/reasoning"
)

func loadConfig() (*config.Config, *config.Manager, error) {
	m, err := config.NewManager(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := m.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, m, nil
}

// sessionOptions merges the config file with the flags that were set.
func sessionOptions(cmd *cobra.Command, cfg *config.Config) (agent.Options, error) {
	opts, err := agent.OptionsFromConfig(cfg, flags.provider)
	if err != nil {
		return opts, engine.Wrap(engine.KindInvalidInput, "config", err)
	}
	changed := cmd.Flags().Changed
	if flags.apiKey != "" {
		opts.APIKey = flags.apiKey
	}
	if flags.model != "" {
		opts.Model = flags.model
	}
	if flags.effort != "" {
		e, err := reasoning.ParseEffort(flags.effort)
		if err != nil {
			return opts, engine.Wrap(engine.KindInvalidInput, "effort", err)
		}
		opts.Effort = e
	}
	if changed("max-tokens") {
		opts.MaxTokens = flags.maxTokens
	}
	if changed("temperature") {
		opts.Temperature = flags.temperature
	}
	if changed("timeout") {
		opts.Timeout = flags.timeout
	}
	if changed("max-iterations") {
		opts.MaxIterations = flags.maxIter
	}
	if flags.autoApprove {
		opts.AutoApprove = true
	}
	if flags.noAgent {
		opts.Enabled = false
	}
	if flags.noConfirm {
		opts.ConfirmationEnabled = false
	}
	opts.Debug = opts.Debug || flags.debug
	opts.Trace = opts.Trace || flags.trace

	dir := flags.dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return opts, fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	if opts.Dir, err = filepath.Abs(dir); err != nil {
		return opts, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if info, err := os.Stat(opts.Dir); err != nil || !info.IsDir() {
		return opts, engine.Errorf(engine.KindInvalidInput, "working directory is not a valid directory: %s", opts.Dir)
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return opts, &engine.Error{
			Kind:     engine.KindUpstreamAuth,
			Provider: opts.Provider,
			Reasons:  []string{"no API key configured; set apiKeys." + opts.Provider + " or the provider's environment variable"},
		}
	}
	return opts, nil
}

// ttyConfirmer asks on out and reads y/N from in. A cancelled context
// counts as no.
func ttyConfirmer(in io.Reader, out io.Writer) engine.Confirmer {
	r := bufio.NewReader(in)
	return func(ctx context.Context, req engine.ConfirmationRequest) bool {
		a := req.Action
		fmt.Fprintf(out, "⚠️  %s\n   %s.%s %s\n", req.Reason, a.Tool, a.Method, preview(a))
		for _, w := range a.Warnings {
			fmt.Fprintf(out, "   warning: %s\n", w)
		}
		fmt.Fprint(out, "   proceed? [y/N] ")

		answer := make(chan string, 1)
		go func() {
			line, _ := r.ReadString('\n')
			answer <- line
		}()
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return false
		case line := <-answer:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true
			}
			return false
		}
	}
}

func preview(a engine.Action) string {
	if len(a.Params) == 0 {
		return ""
	}
	p := a.Params[0]
	if len(a.Params) > 1 && a.Params[1] != "" {
		p += fmt.Sprintf(" (%d bytes)", len(a.Params[1]))
	}
	return p
}

// withSession builds an orchestrator, runs fn and always shuts down.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, o *agent.Orchestrator, format string) error) (err error) {
	ctx := cmd.Context()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cmd, cfg)
	if err != nil {
		return err
	}
	opts.Console = os.Stderr
	opts.Confirm = ttyConfirmer(os.Stdin, os.Stderr)
	if opts.Debug {
		opts.ExecOutput = func(stream, line string) { fmt.Fprintf(os.Stderr, "   [%s] %s\n", stream, line) }
	}

	o, err := agent.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		reason := "completed"
		if ctx.Err() != nil {
			reason = conversation.ReasonShutdown
		}
		if serr := o.Shutdown(reason); serr != nil {
			log.Printf("⚠️  shutdown: %v", serr)
		}
		if ctx.Err() != nil {
			err = errInterrupted
		}
	}()
	if opts.Debug {
		log.Printf("🧠 session %s (provider %s, model %s, effort %s)", o.SessionID(), opts.Provider, opts.Model, opts.Effort)
	}

	format := cfg.Output
	if flags.output != "" {
		format = flags.output
	}
	return fn(ctx, o, format)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	prompt := strings.Join(args, " ")
	return withSession(cmd, func(ctx context.Context, o *agent.Orchestrator, format string) error {
		res, err := o.ProcessPrompt(ctx, prompt, agent.PromptOptions{})
		if res != nil {
			if werr := writeResult(os.Stdout, res, format); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
		if !res.Success {
			return engine.Errorf(failureKind(res), "%d action(s) failed", len(res.Errors))
		}
		return nil
	})
}

func runAuto(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")
	return withSession(cmd, func(ctx context.Context, o *agent.Orchestrator, format string) error {
		res, err := o.StartAutonomousSession(ctx, task, agent.AutoOptions{
			OnIteration: func(i int, r *agent.Result) {
				if format == formatText {
					fmt.Fprintf(os.Stderr, "🔁 iteration %d: %d action(s), %d error(s)\n", i, len(r.Actions), r.Summary.Errors)
				}
			},
		})
		if res != nil {
			if werr := writeResult(os.Stdout, res, format); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
		if !res.Success {
			return engine.Errorf(failureKind(res), "autonomous run finished with errors (%s)", res.StopReason)
		}
		return nil
	})
}

// failureKind is the kind of the first failed action.
func failureKind(res *agent.Result) engine.Kind {
	for _, a := range res.Actions {
		if a.Kind != "" {
			return a.Kind
		}
	}
	return engine.KindInternal
}
