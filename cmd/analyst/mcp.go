package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/docs-analyst/internal/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the retrieve_documents tool over MCP stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing
retrieve_documents over the local index. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(_ *cobra.Command, _ []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	slog.Info("mcp_stdio_started", "index_path", app.Config.IndexPath)
	return mcpadapter.NewServer(app.RetrieveUC, nil, serviceName).ServeStdio()
}
