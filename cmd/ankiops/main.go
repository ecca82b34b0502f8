// Command ankiops is the CLI entry point for the Markdown/card-store
// synchronization engine (§6). Grounded on the teacher's cmd/bd/main.go
// root command: persistent flags bound once in init(), with each
// subcommand resolving shared state through openOrchestrator when it runs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/config"
	"github.com/ankiops/ankiops/internal/orchestrator"
	"github.com/ankiops/ankiops/internal/store"
	"github.com/ankiops/ankiops/internal/store/rpcclient"
)

// Exit codes per §6.
const (
	exitOK          = 0
	exitRunError    = 1
	exitArgsInvalid = 2
)

var (
	flagCollectionDir string
	flagSidecarPath   string
	flagNoteTypesDir  string
	flagMediaDir      string
	flagActor         string
	flagJSON          bool
	flagDebug         bool
	flagDryRun        bool
	flagTimeout       time.Duration
	flagStoreURL      string
	flagStoreToken    string

	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
)

var rootCmd = &cobra.Command{
	Use:           "ankiops",
	Short:         "Synchronize a Markdown collection with a flashcard store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagCollectionDir, "collection", ".", "Markdown collection directory")
	rootCmd.PersistentFlags().StringVar(&flagSidecarPath, "db", "", "Sidecar database path (default: <collection>/.ankiops/sidecar.db)")
	rootCmd.PersistentFlags().StringVar(&flagNoteTypesDir, "note-types", "", "Note-type definition directory (default: <collection>/note-types)")
	rootCmd.PersistentFlags().StringVar(&flagMediaDir, "media-dir", "", "Local media directory (default: <collection>/media)")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "Actor name recorded in the audit trail (default: $ANKIOPS_ACTOR or $USER)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print machine-readable JSON run summaries")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Raise log verbosity to debug")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "Compute the action plan without touching the store, sidecar DB, or files")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "Per-run operation timeout (default: from config.yaml or 10s)")
	rootCmd.PersistentFlags().StringVar(&flagStoreURL, "store-url", "", "Base URL of the card store's RPC endpoint")
	rootCmd.PersistentFlags().StringVar(&flagStoreToken, "store-token", "", "Bearer token for the card store's RPC endpoint")

	rootCmd.AddCommand(
		importCmd,
		exportCmd,
		serializeCmd,
		deserializeCmd,
		mediaSyncCmd,
		aiTaskCmd,
		listTasksCmd,
		listProvidersCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("error: "+err.Error()))
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if ankierr.Is(err, ankierr.ErrConfig) || ankierr.Is(err, ankierr.ErrValidation) {
		return exitArgsInvalid
	}
	return exitRunError
}

// newLogger builds the shared slog.Logger honoring --debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openOrchestrator resolves configuration (flags > env > config.yaml >
// defaults via internal/config) and opens an Orchestrator. Subcommands
// whose operation talks to the card store must also call withStore
// before running; commands that only touch Markdown/JSON (deserialize,
// list-tasks, list-providers) don't need a store client at all.
func openOrchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, context.Context, context.CancelFunc, error) {
	if err := config.Initialize(flagCollectionDir); err != nil {
		return nil, nil, nil, ankierr.Wrap(ankierr.ErrConfig, "initialize config", err)
	}
	v := config.V()
	v.BindPFlag(config.KeySidecarPath, cmd.Flags().Lookup("db"))
	v.BindPFlag(config.KeyNoteTypesDir, cmd.Flags().Lookup("note-types"))
	v.BindPFlag(config.KeyMediaDir, cmd.Flags().Lookup("media-dir"))
	v.BindPFlag(config.KeyActor, cmd.Flags().Lookup("actor"))
	v.BindPFlag(config.KeyJSON, cmd.Flags().Lookup("json"))
	v.BindPFlag(config.KeyDebug, cmd.Flags().Lookup("debug"))
	v.BindPFlag(config.KeyDryRun, cmd.Flags().Lookup("dry-run"))
	v.BindPFlag(config.KeyOperationTimeout, cmd.Flags().Lookup("timeout"))
	v.BindPFlag(config.KeyStoreURL, cmd.Flags().Lookup("store-url"))
	v.BindPFlag(config.KeyStoreToken, cmd.Flags().Lookup("store-token"))

	actor := config.GetString(config.KeyActor)
	if actor == "" {
		actor = os.Getenv("USER")
	}

	sidecarPath := config.GetString(config.KeySidecarPath)
	if sidecarPath == "" {
		sidecarPath = flagCollectionDir + "/.ankiops/sidecar.db"
	}
	noteTypesDir := config.GetString(config.KeyNoteTypesDir)
	if noteTypesDir == "" {
		noteTypesDir = flagCollectionDir + "/note-types"
	}
	mediaDir := config.GetString(config.KeyMediaDir)
	if mediaDir == "" {
		mediaDir = flagCollectionDir + "/media"
	}

	o, err := orchestrator.Open(orchestrator.Config{
		CollectionDir: flagCollectionDir,
		SidecarPath:   sidecarPath,
		NoteTypesDir:  noteTypesDir,
		MediaDir:      mediaDir,
		Actor:         actor,
		DryRun:        config.GetBool(config.KeyDryRun),
		Logger:        newLogger(),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	timeout := config.GetDuration(config.KeyOperationTimeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return o, ctx, cancel, nil
}

// withStore attaches an RPC-backed store client to o, required by every
// subcommand whose operation talks to the card store (import, export,
// serialize, media-sync, ai-task).
func withStore(o *orchestrator.Orchestrator) error {
	storeURL := config.GetString(config.KeyStoreURL)
	if storeURL == "" {
		return ankierr.Wrap(ankierr.ErrConfig, "resolve store client", fmt.Errorf("--store-url (or ANKIOPS_STORE_URL) is required"))
	}
	var cl store.Client = rpcclient.New(storeURL, config.GetString(config.KeyStoreToken), config.GetDuration(config.KeyOperationTimeout))
	o.WithStore(cl)
	return nil
}

func printSummary(label string, v any) {
	if flagJSON {
		printJSON(v)
		return
	}
	fmt.Println(accentStyle.Render(label))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%+v", v)))
}
