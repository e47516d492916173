package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/export"
)

var (
	format    string
	outputDir string
	exportAll bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [session-id...]",
	Short: "Export sessions to file",
	Long: `Export chat sessions to various formats (jsonl, md, yaml, json).

Pass one or more session ids, or --all to export every session of the owner.
Use 'chatrelay list' to see available session IDs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !exportAll {
			return fmt.Errorf("pass at least one session id or --all")
		}
		owner, err := ownerFromFlags()
		if err != nil {
			return err
		}

		// Create exporter
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		store, err := loadStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx := cmd.Context()
		var ids []int64
		if exportAll {
			sessions, err := store.ListSessions(ctx, owner)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
		} else {
			for _, arg := range args {
				id, err := parseID("session", arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
		}

		// Ensure output directory exists
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		out := cmd.OutOrStdout()
		exported := 0
		err = internal.ShowProgress(ctx, out, fmt.Sprintf("Exporting %d session(s) to %s", len(ids), outputDir), func() error {
			for _, id := range ids {
				t, err := store.Transcript(ctx, owner, id)
				if err != nil {
					return notFound(err, "session", id)
				}
				path := filepath.Join(outputDir, fmt.Sprintf("session_%d.%s", id, exporter.Extension()))
				if err := writeExport(exporter, t, path, format); err != nil {
					internal.PrintError(cmd.ErrOrStderr(), err.Error())
					continue
				}
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		if skipped := len(ids) - exported; skipped > 0 {
			internal.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf("%d session(s) could not be written", skipped))
		}
		internal.PrintSuccess(out, fmt.Sprintf("Export complete: %d session(s) exported to %s", exported, outputDir))
		return nil
	},
}

func writeExport(exporter export.Exporter, t *internal.Transcript, path, format string) error {
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := exporter.Export(t, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+strings.Join(export.Formats(), ", ")+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every session of the owner")
}
