package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/usecase"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Extract, chunk and index documents",
	Long: `Ingests files and directories. Directories are walked recursively and
files with an unsupported format are ignored. Documents without extractable
text are reported as skipped; the rest of the batch continues.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	paths, err := collectFiles(args, func(path string) bool {
		return app.Extractor.Supports(path, "")
	})
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		cmd.Println("No supported files found.")
		return nil
	}

	sources := make([]usecase.IngestSource, 0, len(paths))
	for _, path := range paths {
		sources = append(sources, usecase.IngestSource{
			Filename: filepath.Base(path),
			Open: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
		})
	}

	report, err := app.IngestUC.IngestBatch(cmd.Context(), sources, func(filename string, doc *domain.Document, err error) {
		cmd.Println(formatIngestProgress(filename, doc, err))
	})
	if err != nil {
		return fmt.Errorf("ingest interrupted: %w", err)
	}

	cmd.Printf("\n%d ingested, %d skipped, %d failed\n", len(report.Ingested), len(report.Skipped), len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d documents failed to ingest", len(report.Failed))
	}
	return nil
}

// collectFiles expands directories and keeps the files accept allows, in the
// order they were given.
func collectFiles(args []string, accept func(path string) bool) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !accept(path) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}
	return files, nil
}
