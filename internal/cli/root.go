// Package cli provides the command-line interface for chipchip.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"chipchip/internal/chat"
	"chipchip/internal/config"
	"chipchip/internal/events"
	"chipchip/internal/registry"
	"chipchip/internal/storage"
	"chipchip/internal/transport"
	"chipchip/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

var errNeedsAgent = errors.New("this command needs the agent backend (CHIPCHIP_BACKEND=agent)")

// app holds global flags and the components built from them
type app struct {
	// Global flags
	configPath string
	dbPath     string
	backendURL string
	stateless  bool
	ephemeral  bool
	verbose    bool

	cfg      config.Config
	store    storage.Store
	registry *registry.Registry
	bus      *events.Bus
	asker    transport.Asker
	// agent is nil when an OpenAI compatible backend answers questions
	agent    *transport.Client
	ctrl     *chat.Controller
	closeLog func() error
	// errOut receives teardown warnings, after the log file is gone
	errOut io.Writer
}

// rootCmd builds the command tree bound to a
func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chipchip",
		Short: "Chat with the ChipChip data assistant",
		Long: `ChipChip is a terminal chat client for the ChipChip AI agent.

Ask questions about orders, products, group leaders and customers. Every
conversation is kept as a named chat session in a local SQLite database,
and can be renamed, deleted or exported as a PDF transcript.

Run without arguments to open the interactive chat.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd)
		},
		Args: cobra.NoArgs,
		RunE: a.runTUI,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file (default $CHIPCHIP_CONFIG)")
	flags.StringVar(&a.dbPath, "db", "", "chat history database (default ~/.chipchip/history.db)")
	flags.StringVar(&a.backendURL, "backend-url", "", "agent backend origin")
	flags.BoolVar(&a.stateless, "stateless", false, "use the stateless /ask endpoint")
	flags.BoolVar(&a.ephemeral, "ephemeral", false, "keep chat history in memory only")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(a.askCmd())
	rootCmd.AddCommand(a.sessionsCmd())
	rootCmd.AddCommand(a.exportCmd())
	rootCmd.AddCommand(a.examplesCmd())
	rootCmd.AddCommand(a.feedbackCmd())

	return rootCmd
}

// Execute runs the command line and releases everything it opened.
func Execute() error {
	return execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func execute(args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{errOut: errOut}
	defer a.close()

	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.Execute()
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = a.dbPath
	}
	if flags.Changed("backend-url") {
		cfg.BackendURL = a.backendURL
	}
	if flags.Changed("stateless") {
		cfg.Stateless = a.stateless
	}
	if a.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	a.cfg = cfg

	// log lines would corrupt the full screen chat
	console := cmd.ErrOrStderr()
	if cmd == cmd.Root() {
		console = io.Discard
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel, console)
	slog.SetDefault(logger)
	a.closeLog = closeLog

	a.store, err = a.openStore()
	if err != nil {
		return err
	}

	a.registry = registry.New(a.store, registry.Keys{
		History: cfg.HistoryKey,
		Legacy:  cfg.LegacyKey,
	})
	if err := a.registry.Load(); err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}

	a.bus = events.NewBus()
	a.registry.Subscribe(a.bus)

	switch cfg.Backend {
	case config.BackendOpenAI:
		a.asker = transport.NewOpenAI(transport.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Stateless:   cfg.Stateless,
			Timeout:     cfg.Timeout,
			Transcripts: a.registry,
		})
	default:
		a.agent = transport.NewClient(transport.Config{
			BaseURL:   cfg.BackendURL,
			Stateless: cfg.Stateless,
			Timeout:   cfg.Timeout,
		})
		a.asker = a.agent
	}

	a.ctrl = chat.NewController(a.asker, a.registry, a.bus)

	slog.Debug("chipchip ready",
		slog.String("backend", cfg.Backend),
		slog.Bool("stateless", cfg.Stateless),
		slog.Bool("ephemeral", a.ephemeral),
		slog.Int("sessions", a.registry.Len()),
	)
	return nil
}

func (a *app) openStore() (storage.Store, error) {
	if a.ephemeral {
		return storage.NewMemory(), nil
	}

	if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := storage.NewDatabase(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return db, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.warn("failed to close database", err)
		}
		a.store = nil
	}
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			a.warn("failed to close log file", err)
		}
		a.closeLog = nil
	}
}

func (a *app) warn(msg string, err error) {
	if a.errOut == nil {
		return
	}
	fmt.Fprintf(a.errOut, "Warning: %s: %v\n", msg, err)
}

func (a *app) runTUI(cmd *cobra.Command, args []string) error {
	opts := ui.Options{ExportDir: a.cfg.ExportDir}
	if a.agent != nil {
		opts.Examples = a.agent
	}

	model := ui.NewModel(cmd.Context(), a.ctrl, a.registry, opts)
	p := tea.NewProgram(model, tea.WithAltScreen())

	unsubscribe := ui.Forward(a.bus, p)
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run chat: %w", err)
	}
	return nil
}
