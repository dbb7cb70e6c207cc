package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/agent"
	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

const (
	formatText     = "text"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

var statusIcon = map[agent.OutcomeStatus]string{
	agent.OutcomeExecuted: "✅",
	agent.OutcomeFailed:   "❌",
	agent.OutcomeInvalid:  "🚫",
	agent.OutcomeRejected: "✋",
	agent.OutcomeDropped:  "⏭️",
	agent.OutcomeSkipped:  "⏭️",
}

func writeResult(w io.Writer, res *agent.Result, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, res)
	case formatMarkdown:
		writeMarkdown(w, res)
	case "", formatText:
		writeText(w, res)
	default:
		return engine.Errorf(engine.KindInvalidInput, "unknown output format %q (want text, json or markdown)", format)
	}
	return nil
}

func writeText(w io.Writer, res *agent.Result) {
	if res.Reply != "" {
		fmt.Fprintln(w, strings.TrimSpace(res.Reply))
	}
	if len(res.Actions) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, a := range res.Actions {
		fmt.Fprintf(w, "%s %s %s", statusIcon[a.Status], a.Action.Type, a.Action.Param(0))
		if a.Error != "" {
			fmt.Fprintf(w, ": %s", a.Error)
		}
		fmt.Fprintln(w)
	}
	s := res.Summary
	fmt.Fprintf(w, "\n📊 %d/%d executed, %d created, %d modified, %d command(s), %d error(s) in %s\n",
		s.ActionsExecuted, s.ActionsPlanned, s.FilesCreated, s.FilesModified, s.CommandsRun, s.Errors,
		s.ProcessingTime.Round(1e6))
	if res.StopReason != "" {
		fmt.Fprintf(w, "🏁 stopped after %d iteration(s): %s\n", s.Iterations, res.StopReason)
	}
}

func writeMarkdown(w io.Writer, res *agent.Result) {
	if res.Reply != "" {
		fmt.Fprintf(w, "%s\n", strings.TrimSpace(res.Reply))
	}
	if len(res.Actions) > 0 {
		fmt.Fprintln(w, "\n## Actions\n\n| Status | Type | Target | Error |\n|---|---|---|---|")
		for _, a := range res.Actions {
			fmt.Fprintf(w, "| %s | %s | `%s` | %s |\n", a.Status, a.Action.Type, a.Action.Param(0), strings.ReplaceAll(a.Error, "|", `\|`))
		}
	}
	s := res.Summary
	fmt.Fprintf(w, "\n## Summary\n\n- Planned: %d\n- Executed: %d\n- Files created: %d\n- Files modified: %d\n- Commands run: %d\n- Errors: %d\n",
		s.ActionsPlanned, s.ActionsExecuted, s.FilesCreated, s.FilesModified, s.CommandsRun, s.Errors)
	if res.StopReason != "" {
		fmt.Fprintf(w, "- Iterations: %d (%s)\n", s.Iterations, res.StopReason)
	}
}
