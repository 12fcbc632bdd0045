package main

import (
	"os"

	"github.com/spf13/cobra"

	"zarz/internal/chat"
	"zarz/internal/config"
	"zarz/internal/ui"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List saved conversations",
		Long:  `List saved conversations, most recent first. Resume one with /resume in the REPL.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := chat.NewStore(config.SessionsDir()).List()
			if err != nil {
				return err
			}
			ui.NewPrinter(os.Stdout).Sessions(list)
			return nil
		},
	}
}
