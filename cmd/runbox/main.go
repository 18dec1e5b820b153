package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/standardbeagle/runbox/internal/channel"
	"github.com/standardbeagle/runbox/internal/config"
	"github.com/standardbeagle/runbox/internal/flags"
	runkeys "github.com/standardbeagle/runbox/internal/keys"
	"github.com/standardbeagle/runbox/internal/session"
	"github.com/standardbeagle/runbox/internal/tui"
	"github.com/standardbeagle/runbox/internal/workspace"
	"github.com/standardbeagle/runbox/pkg/events"
)

var (
	// Version is set at build time
	Version = "dev"

	serverURL    string
	transport    string
	socketPath   string
	language     string
	embedded     bool
	pageURL      string
	sourceFile   string
	runArgs      string
	runTimeout   time.Duration
	configFile   string
	logFile      string
	logLevel     string
	noTUI        bool
	showVersion  bool
	showSettings bool
)

var rootCmd = &cobra.Command{
	Use:   "runbox [file]",
	Short: "Edit code locally, run it on a remote execution server, watch the output",
	Long: `runbox is a terminal client for a remote code execution service. The editor
and the program output sit side by side; the code, language, compiler options
and program arguments are sent to the server and its output streams back.

Basic Usage:
  runbox                          # Empty editor, default server
  runbox main.c                   # Edit main.c (ctrl+s saves, external edits reload)
  runbox --server http://host:3000
  runbox --embedded               # Terminal-only view on every run
  runbox --no-tui main.c          # Run once, print output, exit with run status
  echo 'int main(){}' | runbox --no-tui

Keys:
  F5 / shift+enter                # Run
  F2 / ctrl+, (cmd+, on macOS)    # Settings sidebar
  F3 / ctrl+e (cmd+e on macOS)    # Editor pane
  F4                              # Split view
  ctrl+k                          # Abort the current run

Configuration:
  ~/.config/runbox/config.toml, then every .runbox.toml from / down to the
  working directory. Flags override files. See --settings.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runApp,
}

func init() {
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")
	rootCmd.Flags().BoolVar(&showSettings, "settings", false, "Show current configuration settings with sources")

	// Server
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "", "Execution server URL")
	rootCmd.Flags().StringVar(&transport, "transport", "", "Session transport: socketio or websocket")
	rootCmd.Flags().StringVar(&socketPath, "socket-path", "", "Endpoint path on the server")

	// Run inputs
	rootCmd.Flags().StringVarP(&sourceFile, "file", "f", "", "Source file to edit and run")
	rootCmd.Flags().StringVarP(&language, "language", "l", "", "Language sent with each run")
	rootCmd.Flags().StringVarP(&runArgs, "args", "a", "", "Program arguments sent with each run")
	rootCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Abort runs after this long (0 disables)")

	// Presentation
	rootCmd.Flags().BoolVar(&embedded, "embedded", false, "Embedded mode: switch to terminal-only output on run")
	rootCmd.Flags().StringVar(&pageURL, "page-url", "", "Embedded page address used by 'open in full view'")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run once in headless mode and exit")

	// Configuration and logging
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Use only this configuration file")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Log file for the interactive mode")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info or error")

	rootCmd.Version = Version
}

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	rootCmd.SetArgs(os.Args[1:])
	err := rootCmd.ExecuteContext(ctx)

	var exit exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	default:
		fmt.Fprintln(os.Stderr, "runbox:", err)
		return 1
	}
}

// exitError carries a non-zero exit status without an error message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func runApp(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("runbox version %s\n", Version)
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if showSettings {
		fmt.Print(cfg.DisplaySettingsWithSources())
		return nil
	}

	if len(args) == 1 {
		sourceFile = args[0]
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := pslog.ContextWithLogger(cmd.Context(), logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	busConfig := events.DefaultWorkerPoolConfig()
	busConfig.Logger = logger
	eventBus := events.NewEventBusWithConfig(busConfig)
	defer eventBus.Shutdown()

	opener, err := channel.NewOpener(channel.Options{
		ServerURL: cfg.GetServerURL(),
		Path:      cfg.GetSocketPath(),
		Transport: cfg.GetTransport(),
	})
	if err != nil {
		return err
	}

	var source *workspace.Source
	if sourceFile != "" {
		source, err = workspace.Open(sourceFile, eventBus)
		if err != nil {
			return err
		}
		defer source.Close()
	}

	panel := flags.PanelFromConfig(cfg.GetFlagControls())

	logger.Info("runbox starting",
		"version", Version,
		"server", cfg.GetServerURL(),
		"transport", cfg.GetTransport(),
		"embedded", cfg.GetEmbedded(),
		"config_files", strings.Join(cfg.SourceFiles(), ","),
	)

	if noTUI {
		return runHeadless(ctx, cfg, opener, panel, source, eventBus)
	}
	return runInteractive(ctx, cfg, opener, panel, source, eventBus)
}

// loadConfig reads the configuration files and applies the flags the user
// set on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		if _, statErr := os.Stat(configFile); statErr != nil {
			return nil, fmt.Errorf("config file: %w", statErr)
		}
		cfg, err = config.LoadFiles(configFile)
	} else {
		cfg, err = config.LoadWithSources()
	}
	if err != nil {
		return nil, err
	}

	var overrides config.Config
	set := func(name string, dst **string, value string) {
		if cmd.Flags().Changed(name) {
			v := value
			*dst = &v
		}
	}
	set("server", &overrides.ServerURL, serverURL)
	set("transport", &overrides.Transport, transport)
	set("socket-path", &overrides.SocketPath, socketPath)
	set("language", &overrides.Language, language)
	set("args", &overrides.RuntimeArgs, runArgs)
	set("page-url", &overrides.PageURL, pageURL)
	set("log-file", &overrides.LogFile, logFile)
	set("log-level", &overrides.LogLevel, logLevel)
	if cmd.Flags().Changed("timeout") {
		d := runTimeout.String()
		overrides.RunTimeout = &d
	}
	if cmd.Flags().Changed("embedded") {
		overrides.Embedded = &embedded
	}

	cfg.Merge(&overrides, "command line")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to stderr in headless mode. The interactive mode owns the
// terminal, so it logs to a file.
func newLogger(cfg *config.Config) (pslog.Logger, func(), error) {
	opts, err := logOptions(cfg.GetLogLevel())
	if err != nil {
		return nil, nil, err
	}

	if noTUI {
		opts.Mode = pslog.ModeConsole
		logger := pslog.LoggerFromEnv(
			pslog.WithEnvWriter(os.Stderr),
			pslog.WithEnvOptions(opts),
		)
		return logger, func() {}, nil
	}

	path := cfg.GetLogFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	opts.Mode = pslog.ModeStructured
	opts.NoColor = true
	return pslog.NewWithOptions(f, opts), func() { _ = f.Close() }, nil
}

func logOptions(level string) (pslog.Options, error) {
	var opts pslog.Options
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		opts.MinLevel = pslog.TraceLevel
	case "debug":
		opts.MinLevel = pslog.DebugLevel
	case "", "info":
		opts.MinLevel = pslog.InfoLevel
	case "error":
		opts.MinLevel = pslog.ErrorLevel
	default:
		return opts, fmt.Errorf("log_level: unknown value %q", level)
	}
	return opts, nil
}

func runInteractive(ctx context.Context, cfg *config.Config, opener channel.Opener, panel *flags.Panel, source *workspace.Source, eventBus *events.EventBus) error {
	logger := pslog.Ctx(ctx)

	if source != nil {
		if err := source.Watch(ctx); err != nil {
			logger.Warn("source watch disabled", "err", err)
		}
	}

	model := tui.NewModel(tui.Options{
		Context:  ctx,
		Config:   cfg,
		Opener:   opener,
		Panel:    panel,
		Source:   source,
		EventBus: eventBus,
		Platform: runkeys.DetectPlatform(),
		Version:  Version,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	eventBus.Publish(events.Event{
		Type: events.SystemMessage,
		Data: map[string]interface{}{
			"level":   "info",
			"context": "server",
			"message": fmt.Sprintf("%s via %s", cfg.GetServerURL(), cfg.GetTransport()),
		},
	})

	// Run TUI in goroutine so we can handle signals
	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	select {
	case err := <-done:
		model.Controller().Abort()
		if err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		p.Quit()
		<-done
		model.Controller().Abort()
	}
	return nil
}

// staticInputs supplies the headless run inputs.
type staticInputs struct {
	text, language, args string
}

func (s staticInputs) Text() string     { return s.text }
func (s staticInputs) Language() string { return s.language }
func (s staticInputs) Args() string     { return s.args }

// stdoutTerminal streams run output straight through.
type stdoutTerminal struct{ io.Writer }

func (stdoutTerminal) Reset() {}

// runHeadless sends one run and waits for it to end. The exit status is 0
// for a completed run, 124 for a timeout, 130 for an abort and 1 otherwise.
func runHeadless(ctx context.Context, cfg *config.Config, opener channel.Opener, panel *flags.Panel, source *workspace.Source, eventBus *events.EventBus) error {
	code, err := headlessSource(source, os.Stdin)
	if err != nil {
		return err
	}

	finished := make(chan events.Event, 1)
	eventBus.Subscribe(events.RunFinished, func(e events.Event) {
		select {
		case finished <- e:
		default:
		}
	})

	inputs := staticInputs{text: code, language: cfg.GetLanguage(), args: cfg.GetRuntimeArgs()}
	ctrl := session.NewController(session.Options{
		Opener:     opener,
		Terminal:   stdoutTerminal{os.Stdout},
		Editor:     inputs,
		Inputs:     inputs,
		Flags:      panel,
		RunTimeout: cfg.GetRunTimeout(),
		EventBus:   eventBus,
	})

	if err := ctrl.StartRun(ctx, code); err != nil {
		return err
	}

	var e events.Event
	select {
	case e = <-finished:
	case <-ctx.Done():
		ctrl.Abort()
		e = <-finished
	}
	return exitForReason(channel.Reason(e.String("reason")))
}

func headlessSource(source *workspace.Source, stdin io.Reader) (string, error) {
	if source != nil {
		return source.Text(), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read source from stdin: %w", err)
	}
	return string(data), nil
}

func exitForReason(reason channel.Reason) error {
	switch reason {
	case channel.ReasonCompleted:
		return nil
	case channel.ReasonTimeout:
		return exitError{code: 124}
	case channel.ReasonAborted:
		return exitError{code: 130}
	default:
		return exitError{code: 1}
	}
}
