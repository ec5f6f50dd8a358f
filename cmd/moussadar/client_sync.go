package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moussadar/moussadar/internal/offline/driver"
	"github.com/moussadar/moussadar/internal/offline/queue"
	"github.com/moussadar/moussadar/internal/offline/state"
	"github.com/moussadar/moussadar/internal/portal/schema"
	"github.com/moussadar/moussadar/internal/ui"
)

// newDriver wires every action type to a batch-of-one submission.
func (env *clientEnv) newDriver() *driver.Driver {
	d := driver.New(env.queue, &driver.Config{
		Policy:       policyOf(env),
		SingleFlight: env.cfg.Client.SingleFlight,
		Logger:       env.logs.New("driver"),
	})

	submit := driver.ProcessorFunc(func(ctx context.Context, a queue.Action) error {
		return env.api.SubmitAction(ctx, env.userID, a)
	})
	d.Register(schema.ActionSearch, submit)
	d.Register(schema.ActionBookmark, submit)
	d.Register(schema.ActionFeedback, submit)
	d.SetDefault(submit)
	return d
}

func printReport(r *driver.Report, policy driver.ClearPolicy) {
	fmt.Printf("%s Drained %d actions (%s)\n", ui.RenderAccent("🔄"), r.Snapshot, policy)
	fmt.Printf("   Processed: %d\n", r.Processed)
	if r.Unknown > 0 {
		fmt.Printf("   Unknown type: %d\n", r.Unknown)
	}
	if r.Failed > 0 {
		fmt.Printf("   %s %d\n", ui.RenderWarn("Failed:"), r.Failed)
	}
	fmt.Printf("   Removed from queue: %d\n", r.Removed)
}

var clientSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay the local queue against the server now",
	Long: `Send every queued action to the server, oldest first, then clear the queue.

With the default policy the queue is cleared even when some actions fail,
matching the web client. Use --ack to keep failed actions for the next sync.
Nothing is sent while the server is unreachable.`,
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()
		ctx := cmd.Context()

		if env.queue.Len() == 0 {
			fmt.Printf("%s Nothing to sync\n", ui.RenderPass("✓"))
			return
		}
		if err := env.api.Health(ctx); err != nil {
			fatalf("%s server unreachable, %d actions kept: %v",
				ui.RenderFail("✗"), env.queue.Len(), err)
		}

		d := env.newDriver()
		report, err := d.Drain(ctx)
		if err != nil {
			fatalf("Error: %v", err)
		}
		printReport(report, policyOf(env))
		if report.Failed > 0 && env.queue.Len() > 0 {
			fmt.Printf("\n%d actions left in the local queue\n", env.queue.Len())
		}
	},
}

var clientWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch connectivity and sync whenever the server comes back",
	Long: `Poll the server's /health endpoint and drain the local queue on every
offline to online transition, including the first successful probe.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		unsubscribe := env.app.Subscribe(func(s state.State) {
			if s.Online {
				fmt.Printf("%s Online\n", ui.RenderPass("●"))
			} else {
				fmt.Printf("%s Offline, %d actions queued\n", ui.RenderWarn("●"), env.queue.Len())
			}
		})
		defer unsubscribe()

		d := env.newDriver()
		monitor := driver.NewMonitor(env.api.Health, driver.MonitorConfig{
			Interval: env.cfg.Client.PollInterval,
			OnChange: env.app.SetOnline,
			OnReconnect: func(ctx context.Context) {
				if env.queue.Len() == 0 {
					return
				}
				report, err := d.Drain(ctx)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
					return
				}
				printReport(report, policyOf(env))
			},
			Logger: env.logs.New("monitor"),
		})

		fmt.Printf("%s Watching %s every %v (user %s)\n",
			ui.RenderAccent("👀"), env.cfg.Client.ServerURL, env.cfg.Client.PollInterval, env.userID)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")
		monitor.Run(ctx)
		fmt.Println("\nStopped")
	},
}

var clientPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List this user's unsynced actions on the server",
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		items, err := env.api.Pending(cmd.Context(), env.userID)
		if err != nil {
			fatalf("Error: %v", err)
		}
		if len(items) == 0 {
			fmt.Printf("%s No pending actions for %s\n", ui.RenderPass("✓"), env.userID)
			return
		}

		dataWidth := max(ui.TerminalWidth()-55, 20)
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{
				strconv.FormatInt(it.ID, 10),
				it.ActionType,
				it.Timestamp,
				ui.Truncate(string(it.ActionData), dataWidth),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "TYPE", "TIMESTAMP", "DATA"}, rows))
	},
}

var clientStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show this user's server-side queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		stats, err := env.api.Stats(cmd.Context(), env.userID)
		if err != nil {
			fatalf("Error: %v", err)
		}

		s := stats.Stats
		fmt.Print(ui.Header("📊", "Sync Stats for "+env.userID))
		fmt.Println()
		fmt.Print(ui.KeyValue([][2]string{
			{"Total", strconv.Itoa(s.TotalItems)},
			{"Synced", strconv.Itoa(s.SyncedItems)},
			{"Pending", strconv.Itoa(s.PendingItems)},
			{"Sync rate", fmt.Sprintf("%.2f%%", stats.SyncRate)},
			{"Oldest", deref(s.OldestItem)},
			{"Newest", deref(s.NewestItem)},
		}))

		if len(stats.RecentActions) > 0 {
			rows := make([][]string, 0, len(stats.RecentActions))
			for _, c := range stats.RecentActions {
				rows = append(rows, []string{c.ActionType, strconv.Itoa(c.Count)})
			}
			fmt.Println()
			fmt.Println(ui.Table([]string{"LAST 7 DAYS", "COUNT"}, rows))
		}
	},
}

var clientMarkSyncedCmd = &cobra.Command{
	Use:   "mark-synced ID...",
	Short: "Flag server queue items as synced",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				fatalf("Error: invalid id %q", a)
			}
			ids = append(ids, id)
		}

		n, err := env.api.MarkSynced(cmd.Context(), ids)
		if err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("%s %d items marked as synced\n", ui.RenderPass("✓"), n)
	},
}

func policyOf(env *clientEnv) driver.ClearPolicy {
	if env.cfg.Client.AckMode {
		return driver.ClearAcknowledged
	}
	return driver.ClearAll
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func init() {
	for _, c := range []*cobra.Command{clientSyncCmd, clientWatchCmd} {
		c.Flags().Bool("ack", false, "Keep failed actions queued instead of clearing everything")
		c.Flags().Bool("single", false, "Collapse overlapping drains into one")
	}
	clientWatchCmd.Flags().Duration("interval", 0, "Health poll interval (default: 5s)")

	clientCmd.AddCommand(clientSyncCmd, clientWatchCmd, clientPendingCmd, clientStatsCmd, clientMarkSyncedCmd)
}
