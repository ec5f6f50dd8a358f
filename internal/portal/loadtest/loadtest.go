// Package loadtest drives the sync service with concurrent simulated
// clients and checks the queue invariants under load.
//
// Each client submits a number of batches through the same code path the
// HTTP handler uses. Afterwards the run is checked for count conservation
// (every submitted action is either synced or failed, and every synced
// action is a row) and pending ordering.
package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moussadar/moussadar/internal/portal/db"
	portalsync "github.com/moussadar/moussadar/internal/portal/sync"
)

// Options sizes a run.
type Options struct {
	// Clients is the number of concurrent submitters, one user each
	Clients int

	// Batches submitted by each client
	Batches int

	// Actions per batch
	Actions int

	// FailEvery makes every n-th action malformed (no type), so the
	// failure path is exercised too. Zero disables it.
	FailEvery int
}

// Validate checks that the run has work to do.
func (o Options) Validate() error {
	if o.Clients <= 0 || o.Batches <= 0 || o.Actions <= 0 {
		return fmt.Errorf("clients, batches and actions must be positive")
	}
	if o.FailEvery < 0 {
		return fmt.Errorf("fail-every cannot be negative")
	}
	return nil
}

// Total is the number of actions a run submits.
func (o Options) Total() int {
	return o.Clients * o.Batches * o.Actions
}

// TestDatabase is a database and sync service dedicated to a load run.
type TestDatabase struct {
	DB   *db.DB
	Sync portalsync.Service
}

// LatencyStats captures per-batch submit latency.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalBatches int
	Durations    []time.Duration
}

// Result is the outcome of RunConcurrentBatches.
type Result struct {
	Latency   *LatencyStats
	Submitted int
	Synced    int
	Failed    int

	// Rows is the number of queue rows written during the run
	Rows    int
	Elapsed time.Duration
}

// Conserved reports whether every action was accounted for exactly once.
func (r *Result) Conserved() bool {
	return r.Synced+r.Failed == r.Submitted && r.Rows == r.Synced
}

// CreateTestDatabase opens and initializes a database at dbPath.
func CreateTestDatabase(dbPath string, cfg *portalsync.Config) (*TestDatabase, error) {
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &TestDatabase{
		DB:   database,
		Sync: portalsync.New(database, cfg),
	}, nil
}

// Close closes the test database connection.
func (td *TestDatabase) Close() error {
	if td.DB != nil {
		return td.DB.Close()
	}
	return nil
}

// UserID names the simulated user of client i.
func UserID(i int) string {
	return fmt.Sprintf("load-user-%03d", i)
}

// RunConcurrentBatches runs opts.Clients submitters concurrently. A
// service error aborts the whole run; per-action failures do not.
func (td *TestDatabase) RunConcurrentBatches(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	before, err := td.rowCount(ctx)
	if err != nil {
		return nil, err
	}

	type clientResult struct {
		durations      []time.Duration
		synced, failed int
	}
	results := make([]clientResult, opts.Clients)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Clients; i++ {
		g.Go(func() error {
			res := &results[i]
			res.durations = make([]time.Duration, 0, opts.Batches)
			user := UserID(i)

			for b := 0; b < opts.Batches; b++ {
				actions := generateActions(i, b, opts)

				t0 := time.Now()
				out, err := td.Sync.SubmitBatch(gctx, user, actions)
				res.durations = append(res.durations, time.Since(t0))
				if err != nil {
					return fmt.Errorf("client %d batch %d failed: %w", i, b, err)
				}
				res.synced += out.SyncedCount
				res.failed += out.FailedCount
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	after, err := td.rowCount(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Submitted: opts.Total(),
		Rows:      after - before,
		Elapsed:   elapsed,
	}
	var all []time.Duration
	for _, r := range results {
		all = append(all, r.durations...)
		result.Synced += r.synced
		result.Failed += r.failed
	}
	result.Latency = computeLatencyStats(all)
	return result, nil
}

// VerifyPending checks that every simulated user's pending list holds only
// unsynced rows in non-decreasing timestamp order.
func (td *TestDatabase) VerifyPending(ctx context.Context, clients int) error {
	for i := 0; i < clients; i++ {
		items, err := td.Sync.ListPending(ctx, UserID(i))
		if err != nil {
			return err
		}
		for j := 1; j < len(items); j++ {
			prev, cur := items[j-1], items[j]
			if cur.Timestamp < prev.Timestamp || (cur.Timestamp == prev.Timestamp && cur.ID < prev.ID) {
				return fmt.Errorf("%s: pending item %d out of order", UserID(i), cur.ID)
			}
		}
	}
	return nil
}

// VerifyMarkSyncedOnce marks every pending row of the simulated users
// synced from several goroutines at once, all passing the same ids. The
// updates must add up to exactly the number of rows.
func (td *TestDatabase) VerifyMarkSyncedOnce(ctx context.Context, clients, workers int) error {
	var ids []int64
	for i := 0; i < clients; i++ {
		items, err := td.Sync.ListPending(ctx, UserID(i))
		if err != nil {
			return err
		}
		for _, item := range items {
			ids = append(ids, item.ID)
		}
	}

	counts := make([]int, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			n, err := td.Sync.MarkSynced(gctx, ids)
			counts[w] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total != len(ids) {
		return fmt.Errorf("mark-synced updated %d rows across %d workers, want %d", total, workers, len(ids))
	}
	return nil
}

func (td *TestDatabase) rowCount(ctx context.Context) (int, error) {
	counts, err := td.DB.TableCounts(ctx)
	if err != nil {
		return 0, err
	}
	return counts["offline_queue"], nil
}

var actionTypes = []string{"SEARCH", "BOOKMARK", "FEEDBACK"}

// generateActions builds one batch. Content is deterministic per
// client/batch so runs are comparable.
func generateActions(client, batch int, opts Options) []json.RawMessage {
	actions := make([]json.RawMessage, opts.Actions)
	for k := range actions {
		seq := (batch*opts.Actions + k) + 1
		if opts.FailEvery > 0 && seq%opts.FailEvery == 0 {
			actions[k] = json.RawMessage(fmt.Sprintf(`{"data":{"seq":%d}}`, seq))
			continue
		}
		typ := actionTypes[(client+seq)%len(actionTypes)]
		actions[k] = json.RawMessage(fmt.Sprintf(`{"type":%q,"data":{"client":%d,"seq":%d}}`, typ, client, seq))
	}
	return actions
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalBatches: len(durations),
		Durations:    sorted,
	}
}

// PrintStats writes the latency table to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Batches: %d\n", s.TotalBatches)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
