package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/agentcli/internal/agent"
	"github.com/ChamsBouzaiene/agentcli/internal/conversation"
	"github.com/ChamsBouzaiene/agentcli/internal/providers"
)

// openStore opens every stored conversation read-mostly. The scratch session
// directory the store creates is removed again on close when still empty.
func openStore() (*conversation.Store, func(), error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	root, err := cfg.DataRoot()
	if err != nil {
		return nil, nil, err
	}
	dir := filepath.Join(root, "sessions")
	store, err := conversation.Open(conversation.Options{Dir: dir, SessionID: "cli"})
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		_ = store.Close()
		_ = os.Remove(filepath.Join(dir, store.SessionID()))
	}, nil
}

func newHistoryCmd() *cobra.Command {
	var (
		opts   conversation.HistoryOptions
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			opts.Status = conversation.Status(status)
			metas, err := store.History(opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), metas)
			}
			writeMetas(cmd.OutOrStdout(), metas)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.Limit, "limit", "n", 20, "maximum conversations to list")
	f.StringVar(&status, "status", "", "only conversations with this status: active, ended or shutdown")
	f.StringVar(&opts.SortBy, "sort", "", "sort by updatedAt (default), createdAt or messages")
	f.StringVar(&opts.SortOrder, "order", "", "asc or desc (default)")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		opts   conversation.SearchOptions
		in     []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search past conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore()
			if err != nil {
				return err
			}
			defer done()
			for _, f := range in {
				opts.In = append(opts.In, conversation.Field(f))
			}
			results, err := store.Search(strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "🔎 %s  %s  %s\n", r.Conversation.ID, r.Conversation.UpdatedAt.Format(time.DateTime), truncate(r.Conversation.Input, 60))
				for _, m := range r.Matches {
					fmt.Fprintf(out, "   %s[%d]: %s\n", m.In, m.Index, m.Snippet)
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&in, "in", nil, "fields to search: input, messages, reasoning, actions")
	f.BoolVar(&opts.FullText, "full-text", false, "rank matches with the full-text index")
	f.BoolVar(&opts.CaseSensitive, "case-sensitive", false, "case-sensitive substring match")
	f.IntVarP(&opts.Limit, "limit", "n", 10, "maximum conversations to return")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete conversations and session logs older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			opts, err := agent.OptionsFromConfig(cfg, flags.provider)
			if err != nil {
				return err
			}
			if days > 0 {
				opts.RetentionDays = days
			}
			if opts.Dir, err = os.Getwd(); err != nil {
				return err
			}
			opts.Console = os.Stderr
			o, err := agent.New(opts)
			if err != nil {
				return err
			}
			removed, err := o.Cleanup()
			if serr := o.Shutdown("completed"); err == nil {
				err = serr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🧹 removed %d conversation(s) older than %d day(s)\n", removed, opts.RetentionDays)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default from config)")
	return cmd
}

func runTestKey(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	name := cfg.DefaultProvider
	if flags.provider != "" {
		name = flags.provider
	}
	if len(args) == 1 {
		name = args[0]
	}
	client, err := providers.New(name, providers.Options{})
	if err != nil {
		return err
	}
	key := flags.apiKey
	if key == "" {
		key = cfg.APIKey(name)
	}
	if !client.TestAPIKey(cmd.Context(), key) {
		return fmt.Errorf("%s: API key rejected or unreachable", name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s key works\n", name)
	return nil
}

func writeMetas(w io.Writer, metas []conversation.Meta) {
	if len(metas) == 0 {
		fmt.Fprintln(w, "no conversations")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUPDATED\tSTATUS\tMESSAGES\tINPUT")
	for _, m := range metas {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", m.ID, m.UpdatedAt.Local().Format(time.DateTime), m.Status, m.Messages, truncate(m.Input, 50))
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
