package main

import (
	"github.com/spf13/cobra"
)

var summarizeDocs []string

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize the corpus or selected documents",
	Args:  cobra.NoArgs,
	RunE:  runSummarize,
}

func init() {
	summarizeCmd.Flags().StringSliceVarP(&summarizeDocs, "doc", "d", nil, "document id to include (repeatable); all documents when omitted")
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, _ []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext(cmd, app)
	defer cancel()

	summary, err := app.SummarizeUC.SummarizeCorpus(ctx, summarizeDocs)
	if err != nil {
		return err
	}
	if summary.ChunksProcessed == 0 {
		cmd.Println("No indexed documents to summarize.")
		return nil
	}
	cmd.Println(summary.Text)
	cmd.Printf("\n(%d chunks, %d reduction rounds)\n", summary.ChunksProcessed, summary.Rounds)
	return nil
}
