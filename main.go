package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chatwoot-dify",
		Short:         "Relay Chatwoot conversations to a Dify assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (json, yaml or toml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the webhook server and relay workers",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(configPath)
			},
		},
		&cobra.Command{
			Use:   "refresh-teams",
			Short: "Load the Chatwoot team directory and print it",
			RunE: func(cmd *cobra.Command, args []string) error {
				return refreshTeams(cmd.Context(), cmd.OutOrStdout(), configPath)
			},
		},
	)
	return root
}
