package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/moussadar/moussadar/internal/portal/export"
	"github.com/moussadar/moussadar/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "maint",
	Short:   "Export and import the server's offline queue",
}

var queueExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write offline queue rows to a JSONL file",
	Long: `Write offline queue rows to a JSONL file, one row per line, in id order.

--since accepts a timestamp (RFC 3339 or YYYY-MM-DD) or a phrase such as
"yesterday" or "last week".

Examples:
  moussadar queue export --out queue.jsonl
  moussadar queue export --out alice.jsonl --user alice --since yesterday`,
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")
		user, _ := cmd.Flags().GetString("user")
		sinceText, _ := cmd.Flags().GetString("since")

		var since time.Time
		if sinceText != "" {
			var err error
			if since, err = parseSince(sinceText, time.Now()); err != nil {
				fatalf("Error: %v", err)
			}
		}

		cfg := loadConfig(cmd)
		database := openDatabase(cfg.Database.Path)
		defer database.Close()

		result, err := export.Export(cmd.Context(), database, export.ExportOptions{
			Out:    out,
			UserID: user,
			Since:  since,
		})
		if err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("%s Exported %d rows to %s\n", ui.RenderPass("✓"), result.Rows, result.Path)
		if !since.IsZero() {
			fmt.Printf("   Since: %s\n", since.UTC().Format(time.RFC3339))
		}
	},
}

var queueImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Append offline queue rows from a JSONL file",
	Long: `Append rows previously written by 'queue export'. Rows get new ids and
keep their timestamps and synced state. Bad lines are reported and skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		in, _ := cmd.Flags().GetString("in")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg := loadConfig(cmd)
		database := openDatabase(cfg.Database.Path)
		defer database.Close()

		result, err := export.Import(cmd.Context(), database, export.ImportOptions{
			In:     in,
			DryRun: dryRun,
		})
		if err != nil {
			fatalf("Error: %v", err)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d of %d rows\n", ui.RenderPass("✓"), verb, result.Imported, result.Read)
		for _, e := range result.Errors {
			fmt.Printf("   %s %s\n", ui.RenderWarn("⚠"), e)
		}
	},
}

// parseSince reads an absolute timestamp or a natural-language phrase
// relative to base.
func parseSince(text string, base time.Time) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized --since value %q", text)
	}
	return r.Time, nil
}

func init() {
	queueCmd.PersistentFlags().String("db", "", "Database path (default: data/moussadar.db)")
	queueExportCmd.Flags().StringP("out", "o", "", "Output JSONL file (required)")
	queueExportCmd.Flags().String("user", "", "Only export this user's rows")
	queueExportCmd.Flags().String("since", "", "Only export rows queued at or after this time")
	_ = queueExportCmd.MarkFlagRequired("out")

	queueImportCmd.Flags().StringP("in", "i", "", "Input JSONL file (required)")
	queueImportCmd.Flags().Bool("dry-run", false, "Validate without writing")
	_ = queueImportCmd.MarkFlagRequired("in")

	queueCmd.AddCommand(queueExportCmd, queueImportCmd)
	rootCmd.AddCommand(queueCmd)
}
