package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/ui"
)

var dbCmd = &cobra.Command{
	Use:     "db",
	GroupID: "maint",
	Short:   "Manage the portal database",
	Long: `Create, seed, inspect and remove the SQLite database holding the
reference catalogue and the offline queue.`,
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the schema and load the reference data",
	Long: `Create every table and upsert the reference data.

Seed data comes from --seed-dir when given and from the built-in seed
otherwise. Existing rows are updated in place; FAQ view and helpful
counters are kept.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		database := openDatabase(cfg.Database.Path)
		defer database.Close()

		applySeed(cmd.Context(), database, cfg.Seed.Dir)
	},
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert reference data from a directory of YAML files",
	Long: `Upsert services, documents, procedures and FAQ entries from every
*.yaml / *.yml file in --seed-dir. Files are read in name order and applied
in one transaction.

Example:
  moussadar db seed --seed-dir ./seed`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		if cfg.Seed.Dir == "" {
			fatalf("Error: --seed-dir is required")
		}
		database := openDatabase(cfg.Database.Path)
		defer database.Close()

		applySeed(cmd.Context(), database, cfg.Seed.Dir)
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the database file",
	Long: `Delete the database file and its WAL side files. The server must not
be running. Run 'moussadar db init' afterwards to recreate it.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fatalf("Error: reset deletes %s and every queued action; pass --force to confirm", cfg.Database.Path)
		}
		if err := db.Remove(cfg.Database.Path); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("%s Removed %s\n", ui.RenderPass("✓"), cfg.Database.Path)
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database location, size and row counts",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		path := cfg.Database.Path

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Database not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'moussadar db init' to create it\n\n")
			return
		}
		if err != nil {
			fatalf("Error checking database: %v", err)
		}

		database, err := db.Open(path)
		if err != nil {
			fatalf("Error opening database: %v", err)
		}
		defer database.Close()

		counts, err := database.TableCounts(cmd.Context())
		if err != nil {
			fatalf("Error reading row counts: %v", err)
		}

		fmt.Print(ui.Header("📊", "Database Status"))
		fmt.Println()
		fmt.Print(ui.KeyValue([][2]string{
			{"Location", path},
			{"Size", ui.FormatBytes(info.Size())},
			{"Modified", info.ModTime().Format("2006-01-02 15:04:05")},
		}))
		fmt.Println()

		tables := []string{"services", "documents", "procedures", "faq", "offline_queue", "user_preferences", "cache"}
		rows := make([][]string, 0, len(tables))
		for _, t := range tables {
			rows = append(rows, []string{t, fmt.Sprint(counts[t])})
		}
		fmt.Println(ui.Table([]string{"TABLE", "ROWS"}, rows))
	},
}

func applySeed(ctx context.Context, database *db.DB, dir string) {
	seed, source, err := loadSeed(dir)
	if err != nil {
		fatalf("Error reading seed: %v", err)
	}

	fmt.Printf("%s Seeding from %s...\n", ui.RenderAccent("🔄"), source)
	start := time.Now()
	if err := database.ApplySeed(ctx, seed); err != nil {
		fatalf("Error applying seed: %v", err)
	}

	fmt.Printf("%s Seed complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Services: %d\n", len(seed.Services))
	fmt.Printf("   Documents: %d\n", len(seed.Documents))
	fmt.Printf("   Procedures: %d\n", len(seed.Procedures))
	fmt.Printf("   FAQ: %d\n", len(seed.FAQ))
	fmt.Printf("   Database: %s\n", database.Path())
}

func init() {
	dbCmd.PersistentFlags().String("db", "", "Database path (default: data/moussadar.db)")
	dbInitCmd.Flags().String("seed-dir", "", "Directory of YAML seed files (default: built-in seed)")
	dbSeedCmd.Flags().String("seed-dir", "", "Directory of YAML seed files")
	dbResetCmd.Flags().Bool("force", false, "Confirm deletion")

	dbCmd.AddCommand(dbInitCmd, dbSeedCmd, dbResetCmd, dbStatusCmd)
	rootCmd.AddCommand(dbCmd)
}
