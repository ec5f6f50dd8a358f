package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/moussadar/moussadar/internal/config"
	"github.com/moussadar/moussadar/internal/logging"
	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/ui"
)

var (
	cfgFile string
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "moussadar",
	Short: "Moussadar public services portal",
	Long: `Moussadar serves the bilingual (French/Arabic) public services catalogue
and the offline action queue clients sync into when they reconnect.

The server side lives under 'serve', 'db', 'queue' and 'loadtest'.
The 'client' commands keep a local queue on disk and replay it against
a running server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColorEnabled(false)
		}
	},
}

// flagKeys binds command flags onto config keys so flags win over the
// config file and the environment.
var flagKeys = map[string]string{
	"db":         "database.path",
	"port":       "port",
	"env":        "environment",
	"seed-dir":   "seed.dir",
	"watch-seed": "seed.watch",
	"log-file":   "log.file",
	"server":     "client.server_url",
	"user-id":    "client.user_id",
	"queue-file": "client.queue_file",
	"state-file": "client.state_file",
	"ack":        "client.ack_mode",
	"single":     "client.single_flight",
	"interval":   "client.poll_interval",
}

// loadConfig resolves .env, the config file, the environment and cmd's
// flags into a Config. Any failure ends the process.
func loadConfig(cmd *cobra.Command) *config.Config {
	if err := config.LoadDotEnv(); err != nil {
		fatalf("Error loading .env: %v", err)
	}

	v, err := config.New(cfgFile)
	if err != nil {
		fatalf("Error: %v", err)
	}
	bindFlags(v, cmd)

	cfg, err := config.Load(v)
	if err != nil {
		fatalf("Error: invalid configuration: %v", err)
	}
	return cfg
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// newLogs builds the logger factory. tee copies file output to stderr.
func newLogs(cfg *config.Config, tee bool) *logging.Factory {
	logs, err := logging.NewFactory(cfg.Log, tee)
	if err != nil {
		fatalf("Error opening log file: %v", err)
	}
	return logs
}

// openDatabase opens the server database and makes sure the schema exists.
func openDatabase(path string) *db.DB {
	database, err := db.Open(path)
	if err != nil {
		fatalf("Error opening database: %v", err)
	}
	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		fatalf("Error initializing schema: %v", err)
	}
	return database
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./moussadar.yaml or ~/.moussadar/moussadar.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
		&cobra.Group{ID: "client", Title: "Offline client:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
