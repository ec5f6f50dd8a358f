package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/moussadar/moussadar/internal/clock"
	"github.com/moussadar/moussadar/internal/config"
	"github.com/moussadar/moussadar/internal/logging"
	"github.com/moussadar/moussadar/internal/offline/apiclient"
	"github.com/moussadar/moussadar/internal/offline/queue"
	"github.com/moussadar/moussadar/internal/offline/state"
	"github.com/moussadar/moussadar/internal/portal/schema"
	"github.com/moussadar/moussadar/internal/ui"
)

var clientCmd = &cobra.Command{
	Use:     "client",
	GroupID: "client",
	Short:   "Offline client: local action queue and sync",
	Long: `Work with the local offline queue the way the web client does.

Actions are queued on disk while the server is unreachable and replayed
against POST /api/sync/offline once it comes back. The queue lives in
client.queue_file; language and preferences in client.state_file.

Examples:
  moussadar client enqueue --type SEARCH --data '{"query":"passeport"}'
  moussadar client enqueue --interactive
  moussadar client sync
  moussadar client watch --interval 10s`,
}

// clientEnv is everything a client command needs.
type clientEnv struct {
	cfg    *config.Config
	logs   *logging.Factory
	queue  *queue.Store
	app    *state.App
	api    *apiclient.Client
	userID string
}

func openClient(cmd *cobra.Command) *clientEnv {
	cfg := loadConfig(cmd)
	logs := newLogs(cfg, false)

	q, err := queue.Open(cfg.Client.QueueFile, clock.NewRealClock())
	if err != nil {
		fatalf("Error opening queue: %v", err)
	}
	app, err := state.Open(cfg.Client.StateFile)
	if err != nil {
		fatalf("Error opening client state: %v", err)
	}

	userID, err := resolveUserID(cfg.Client.UserID, app)
	if err != nil {
		fatalf("Error: %v", err)
	}

	return &clientEnv{
		cfg:    cfg,
		logs:   logs,
		queue:  q,
		app:    app,
		api:    apiclient.New(cfg.Client.ServerURL, cfg.Client.Timeout),
		userID: userID,
	}
}

// resolveUserID prefers the configured id, then the one saved in the
// client preferences. A new id is generated and saved on first use.
func resolveUserID(configured string, app *state.App) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if id, ok := app.Snapshot().Preferences["userId"].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := app.UpdatePreferences(map[string]any{"userId": id}); err != nil {
		return "", fmt.Errorf("failed to save user id: %w", err)
	}
	return id, nil
}

// knownActionTypes are offered by the interactive prompt.
var knownActionTypes = []string{
	schema.ActionSearch,
	schema.ActionBookmark,
	schema.ActionFeedback,
	schema.ActionDocumentRequest,
	schema.ActionProcedureStart,
}

var clientEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue an action for the next sync",
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		actionType, _ := cmd.Flags().GetString("type")
		data, _ := cmd.Flags().GetString("data")
		interactive, _ := cmd.Flags().GetBool("interactive")

		if interactive {
			var err error
			actionType, data, err = promptAction(actionType, data)
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Cancelled")
				return
			}
			if err != nil {
				fatalf("Error: %v", err)
			}
		}

		var raw json.RawMessage
		if data != "" {
			if !json.Valid([]byte(data)) {
				fatalf("Error: --data is not valid JSON")
			}
			raw = json.RawMessage(data)
		}

		action, err := env.queue.Enqueue(actionType, raw)
		if err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("%s Queued %s at %s (%d pending)\n",
			ui.RenderPass("✓"), action.Type, action.Timestamp, env.queue.Len())
	},
}

// promptAction asks for the action type and payload, starting from any
// values already given as flags.
func promptAction(actionType, data string) (string, string, error) {
	if actionType == "" {
		actionType = knownActionTypes[0]
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Action type").
				Options(huh.NewOptions(knownActionTypes...)...).
				Value(&actionType),
			huh.NewText().
				Title("Data (JSON, optional)").
				Value(&data).
				Validate(func(s string) error {
					if strings.TrimSpace(s) != "" && !json.Valid([]byte(s)) {
						return errors.New("not valid JSON")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return actionType, strings.TrimSpace(data), nil
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the local queue",
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		actions := env.queue.DrainAll()
		if len(actions) == 0 {
			fmt.Printf("%s Local queue is empty\n", ui.RenderPass("✓"))
			return
		}

		dataWidth := max(ui.TerminalWidth()-50, 20)
		rows := make([][]string, 0, len(actions))
		for i, a := range actions {
			rows = append(rows, []string{
				fmt.Sprint(i),
				a.Type,
				a.Timestamp,
				ui.Truncate(string(a.Data), dataWidth),
			})
		}
		fmt.Println(ui.Table([]string{"#", "TYPE", "QUEUED AT", "DATA"}, rows))
		fmt.Printf("%d pending, user %s\n", len(actions), env.userID)
	},
}

var clientClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every queued action without sending it",
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		n := env.queue.Len()
		if err := env.queue.Clear(); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("%s Dropped %d queued actions\n", ui.RenderPass("✓"), n)
	},
}

var clientLangCmd = &cobra.Command{
	Use:       "lang [fr|ar]",
	Short:     "Show or set the interface language",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(schema.LangFR), string(schema.LangAR)},
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		if len(args) == 1 {
			lang, err := schema.ParseLang(args[0])
			if err != nil {
				fatalf("Error: %v", err)
			}
			if err := env.app.SetLanguage(lang); err != nil {
				fatalf("Error: %v", err)
			}
		}

		s := env.app.Snapshot()
		dir := "ltr"
		if s.IsRTL() {
			dir = "rtl"
		}
		fmt.Printf("Language: %s (%s)\n", s.Language, dir)
	},
}

var clientPrefsCmd = &cobra.Command{
	Use:   "prefs [key=value...]",
	Short: "Show or merge user preferences",
	Long: `Show the saved preferences, or merge key=value pairs into them.
Values that parse as JSON are stored as such; anything else is a string.

Example:
  moussadar client prefs theme=dark notifications=true`,
	Run: func(cmd *cobra.Command, args []string) {
		env := openClient(cmd)
		defer env.logs.Close()

		if len(args) > 0 {
			prefs, err := parsePrefs(args)
			if err != nil {
				fatalf("Error: %v", err)
			}
			if err := env.app.UpdatePreferences(prefs); err != nil {
				fatalf("Error: %v", err)
			}
		}

		prefs := env.app.Snapshot().Preferences
		keys := make([]string, 0, len(prefs))
		for k := range prefs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([][2]string, 0, len(keys))
		for _, k := range keys {
			v, _ := json.Marshal(prefs[k])
			pairs = append(pairs, [2]string{k, string(v)})
		}
		fmt.Print(ui.KeyValue(pairs))
	},
}

func parsePrefs(args []string) (map[string]any, error) {
	prefs := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		prefs[key] = v
	}
	return prefs, nil
}

func init() {
	pf := clientCmd.PersistentFlags()
	pf.String("server", "", "Server base URL (default: http://localhost:3001)")
	pf.String("user-id", "", "User id sent with synced actions")
	pf.String("queue-file", "", "Local queue file")
	pf.String("state-file", "", "Local state file")

	clientEnqueueCmd.Flags().StringP("type", "t", "", "Action type, e.g. SEARCH")
	clientEnqueueCmd.Flags().StringP("data", "d", "", "Action payload as JSON")
	clientEnqueueCmd.Flags().BoolP("interactive", "i", false, "Prompt for the action")

	clientCmd.AddCommand(clientEnqueueCmd, clientListCmd, clientClearCmd, clientLangCmd, clientPrefsCmd)
	rootCmd.AddCommand(clientCmd)
}
