package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/agentcli/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change the configuration file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a value, e.g. agent.effort",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				v, err := cfg.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), config.FormatValue(v))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change a value; lists are comma separated, an empty API key removes it",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, m, err := loadConfig()
				if err != nil {
					return err
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return err
				}
				if err := m.Save(cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %s updated\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every key and its value",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				for _, k := range cfg.Keys() {
					v, err := cfg.Get(k)
					if err != nil {
						return err
					}
					s := config.FormatValue(v)
					if isSecretKey(k) && s != "" {
						s = "[set]"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, s)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := config.NewManager(flags.configPath)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), m.Path())
				return nil
			},
		},
	)
	return cmd
}

func isSecretKey(k string) bool {
	return strings.HasPrefix(k, "apiKeys.")
}
