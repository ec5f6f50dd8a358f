package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moussadar/moussadar/internal/config"
	"github.com/moussadar/moussadar/internal/logging"
	"github.com/moussadar/moussadar/internal/portal/api"
	"github.com/moussadar/moussadar/internal/portal/chat"
	"github.com/moussadar/moussadar/internal/portal/daemon"
	"github.com/moussadar/moussadar/internal/portal/dashboard"
	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/portal/schema"
	portalsync "github.com/moussadar/moussadar/internal/portal/sync"
	"github.com/moussadar/moussadar/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Start the portal API server",
	Long: `Start the HTTP API serving the catalogue, the chat assistant and the
offline sync endpoints.

On an empty database the reference data is seeded first, from --seed-dir
when set and from the built-in seed otherwise.

Endpoints:
  /health           liveness and uptime
  /api/...          catalogue, documents, procedures, ai, sync
  /ws               live feed of batches, sync marks and seed reloads

With --watch-seed the seed directory is watched and changed YAML files
are upserted while the server runs.

Example usage:
  moussadar serve
  moussadar serve --port 8080 --env production
  moussadar serve --seed-dir ./seed --watch-seed`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 3001, "Port to listen on")
	serveCmd.Flags().String("env", "development", "Environment (development or production)")
	serveCmd.Flags().String("db", "", "Database path (default: data/moussadar.db)")
	serveCmd.Flags().String("seed-dir", "", "Directory of YAML seed files")
	serveCmd.Flags().Bool("watch-seed", false, "Reload seed files when they change")
	serveCmd.Flags().String("log-file", "", "Write logs to a rotating file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	logs := newLogs(cfg, true)
	defer logs.Close()

	database := openDatabase(cfg.Database.Path)
	defer func() {
		if err := database.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing database: %v\n", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !cfg.Seed.Watch {
		if err := seedIfEmpty(ctx, database, cfg.Seed.Dir, logs); err != nil {
			fatalf("Error seeding database: %v", err)
		}
	}

	hub := dashboard.NewHub(&dashboard.Config{
		OriginPatterns: originPatterns(cfg.CORS.Origins),
		Logger:         logs.New("dashboard"),
	})
	hub.Start()
	defer hub.Stop()
	feed := dashboard.NewHandler(hub, logs.New("dashboard"))

	syncSvc := portalsync.New(database, &portalsync.Config{
		Logger: logs.New("sync"),
		Events: feed,
	})

	responder, err := newResponder(cfg, database, logs)
	if err != nil {
		fatalf("Error configuring chat: %v", err)
	}

	if cfg.Seed.Watch {
		if cfg.Seed.Dir == "" {
			fatalf("Error: --watch-seed requires --seed-dir")
		}
		d, err := daemon.New(database, cfg.Seed.Dir, &daemon.Config{
			DebounceInterval: cfg.Seed.Debounce,
			Events:           feed,
			Logger:           logs.New("seed"),
		})
		if err != nil {
			fatalf("Error creating seed watcher: %v", err)
		}
		// Fail before listening on a bad directory. Start applies it
		// again before watching.
		if err := d.PerformFullSync(ctx); err != nil {
			fatalf("Error seeding from %s: %v", cfg.Seed.Dir, err)
		}
		go func() {
			if err := d.Start(ctx); err != nil {
				logs.New("seed").Printf("ERROR: seed watcher stopped: %v", err)
			}
		}()
		defer d.Stop()
	}

	server := api.New(api.Deps{
		DB:   database,
		Sync: syncSvc,
		Chat: responder,
		Feed: hub,
	}, api.ConfigFrom(cfg, logs.New("api")))

	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("%s Moussadar server running on http://localhost%s (%s)\n", ui.RenderAccent("🚀"), addr, cfg.Environment)
	fmt.Printf("   Health check: http://localhost%s/health\n", addr)
	fmt.Printf("   Live feed: ws://localhost%s/ws\n", addr)
	fmt.Printf("   Database: %s\n", database.Path())
	fmt.Println("\nPress Ctrl+C to stop...")

	if err := server.ListenAndServe(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println("\nServer stopped")
}

// seedIfEmpty loads reference data when the services table has no rows.
func seedIfEmpty(ctx context.Context, database *db.DB, dir string, logs *logging.Factory) error {
	counts, err := database.TableCounts(ctx)
	if err != nil {
		return err
	}
	if counts["services"] > 0 {
		return nil
	}

	seed, source, err := loadSeed(dir)
	if err != nil {
		return err
	}
	if err := database.ApplySeed(ctx, seed); err != nil {
		return err
	}
	logs.New("seed").Printf("Seeded %d records from %s", seed.Len(), source)
	return nil
}

// loadSeed reads dir, or the built-in seed when dir is empty.
func loadSeed(dir string) (*schema.SeedFile, string, error) {
	if dir == "" {
		seed, err := schema.DefaultSeed()
		return seed, "built-in seed", err
	}
	seed, err := schema.ReadSeedDir(dir)
	return seed, dir, err
}

func newResponder(cfg *config.Config, database *db.DB, logs *logging.Factory) (*chat.Responder, error) {
	chatCfg := &chat.Config{
		Delay:  cfg.Chat.Delay,
		Logger: logs.New("chat"),
	}
	if cfg.Chat.RulesFile != "" {
		rules, err := chat.LoadRules(cfg.Chat.RulesFile)
		if err != nil {
			return nil, err
		}
		chatCfg.Rules = rules
	}
	if cfg.Chat.Anthropic.APIKey != "" {
		chatCfg.Generator = chat.NewAnthropicGenerator(cfg.Chat.Anthropic)
	}
	return chat.New(database, chatCfg)
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// upgrade checks against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
