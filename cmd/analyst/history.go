package main

import (
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Print the turn log of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	turns, err := app.SessionUC.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		cmd.Println("Session has no turns yet.")
		return nil
	}
	for _, turn := range turns {
		cmd.Print(formatTurn(turn))
	}
	return nil
}
