package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/moussadar/moussadar/internal/logging"
	"github.com/moussadar/moussadar/internal/portal/loadtest"
	portalsync "github.com/moussadar/moussadar/internal/portal/sync"
	"github.com/moussadar/moussadar/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "maint",
	Short:   "Submit concurrent offline batches against a scratch database",
	Long: `Run concurrent clients that each submit offline batches through the sync
service, then check that every action was counted exactly once.

The run uses a temporary database, so it never touches the configured one.
With --fail-every N every Nth action is sent without a type and must be
reported as failed without stopping its batch.

Examples:
  moussadar loadtest
  moussadar loadtest --clients 100 --batches 20 --actions 10 --fail-every 7`,
	Run: runLoadtest,
}

func init() {
	loadtestCmd.Flags().Int("clients", 50, "Number of concurrent clients")
	loadtestCmd.Flags().Int("batches", 10, "Batches per client")
	loadtestCmd.Flags().Int("actions", 5, "Actions per batch")
	loadtestCmd.Flags().Int("fail-every", 0, "Make every Nth action invalid (0 disables)")
	loadtestCmd.Flags().Bool("keep", false, "Keep the scratch database")
	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(cmd *cobra.Command, args []string) {
	opts := loadtest.Options{}
	opts.Clients, _ = cmd.Flags().GetInt("clients")
	opts.Batches, _ = cmd.Flags().GetInt("batches")
	opts.Actions, _ = cmd.Flags().GetInt("actions")
	opts.FailEvery, _ = cmd.Flags().GetInt("fail-every")
	keep, _ := cmd.Flags().GetBool("keep")

	if err := opts.Validate(); err != nil {
		fatalf("Error: %v", err)
	}

	dir, err := os.MkdirTemp("", "moussadar-loadtest-")
	if err != nil {
		fatalf("Error creating scratch directory: %v", err)
	}
	if !keep {
		defer os.RemoveAll(dir)
	}

	td, err := loadtest.CreateTestDatabase(filepath.Join(dir, "loadtest.db"), &portalsync.Config{
		Logger: logging.Discard(),
	})
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer td.Close()

	fmt.Printf("%s Running load test...\n", ui.RenderAccent("🔄"))
	fmt.Printf("Configuration: %d clients, %d batches/client, %d actions/batch (%d actions)\n\n",
		opts.Clients, opts.Batches, opts.Actions, opts.Total())

	ctx := cmd.Context()
	result, err := td.RunConcurrentBatches(ctx, opts)
	if err != nil {
		fatalf("Error: %v", err)
	}

	result.Latency.PrintStats(os.Stdout)
	fmt.Println()
	fmt.Print(ui.KeyValue([][2]string{
		{"Submitted", fmt.Sprint(result.Submitted)},
		{"Synced", fmt.Sprint(result.Synced)},
		{"Failed", fmt.Sprint(result.Failed)},
		{"Rows written", fmt.Sprint(result.Rows)},
		{"Elapsed", result.Elapsed.Round(time.Millisecond).String()},
		{"Throughput", fmt.Sprintf("%.0f actions/s", float64(result.Submitted)/result.Elapsed.Seconds())},
	}))
	fmt.Println()

	if !result.Conserved() {
		fatalf("%s synced+failed != submitted or rows != synced", ui.RenderFail("✗ Conservation check failed:"))
	}
	fmt.Printf("%s Conservation check passed\n", ui.RenderPass("✓"))

	if err := td.VerifyPending(ctx, opts.Clients); err != nil {
		fatalf("%s %v", ui.RenderFail("✗ Pending order check failed:"), err)
	}
	fmt.Printf("%s Pending lists ordered\n", ui.RenderPass("✓"))

	if err := td.VerifyMarkSyncedOnce(ctx, opts.Clients, 4); err != nil {
		fatalf("%s %v", ui.RenderFail("✗ Mark-synced check failed:"), err)
	}
	fmt.Printf("%s Concurrent mark-synced counted each row once\n", ui.RenderPass("✓"))

	if keep {
		fmt.Printf("\nScratch database kept at %s\n", dir)
	}
}
