package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askSession string
	askUser    string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the ingested documents",
	Long: `Routes the question to the matching specialists and prints a cited
answer. Pass --session to continue a conversation; a new session is started
otherwise and its id is printed so later questions can refer back to it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "continue an existing session")
	askCmd.Flags().StringVar(&askUser, "user", "", "user id recorded on a new session")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the full response as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext(cmd, app)
	defer cancel()

	sessionID := askSession
	if sessionID == "" {
		session, err := app.SessionUC.Start(ctx, askUser)
		if err != nil {
			return err
		}
		sessionID = session.ID
		if !askJSON {
			cmd.Printf("session %s\n\n", sessionID)
		}
	}

	resp, err := app.PlannerUC.Handle(ctx, sessionID, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if askJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatResponse(resp))
	return nil
}
