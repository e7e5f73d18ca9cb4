package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"valter-dash/internal/client"
	"valter-dash/internal/config"
	"valter-dash/internal/format"
	"valter-dash/internal/hostsignal"
	"valter-dash/internal/logging"
	"valter-dash/internal/model"
	"valter-dash/internal/schema"
	"valter-dash/internal/store"
	"valter-dash/internal/syncloop"
	"valter-dash/internal/tui"
)

type App struct {
	APIURL  string
	Mode    string
	Format  string
	Pretty  bool
	Verbose bool
	LogFile string
	Timeout time.Duration

	log *zap.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "valter",
		Short:         "Valter dashboard (TUI + scriptable CLI)",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Start the interactive dashboard
  valter

  # Scriptable commands
  valter rows cloud/Clients --format table
  valter actions list

  # Direct view lookup (shortcut for: valter rows island/Project)
  valter island/Project
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if len(args) == 0 {
				return runTUI(cmd.Context(), app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app.log != nil {
			_ = app.log.Sync()
		}
	}

	timeout, _ := time.ParseDuration(envOr("VALTER_REQUEST_TIMEOUT", "0s"))
	cmd.PersistentFlags().StringVar(&app.APIURL, "api", envOr("VALTER_API_URL", ""), "Backend base URL (overrides --mode)")
	cmd.PersistentFlags().StringVar(&app.Mode, "mode", envOr("VALTER_MODE", ""), "Backend mode (dev|prod)")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("VALTER_FORMAT", "json"), "Output format (json|table)")
	cmd.PersistentFlags().BoolVar(&app.Pretty, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Debug logging")
	cmd.PersistentFlags().StringVar(&app.LogFile, "log-file", envOr("VALTER_LOG_FILE", ""), "Log file (default: <config dir>/valter.log for the TUI)")
	cmd.PersistentFlags().DurationVar(&app.Timeout, "timeout", timeout, "Per-request timeout (0 uses the configured default)")

	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newRowsCmd(app))
	cmd.AddCommand(newSetCmd(app))
	cmd.AddCommand(newActionsCmd(app))
	cmd.AddCommand(newRescanCmd(app))
	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newOracleCmd(app))
	cmd.AddCommand(newDevServerCmd(app))

	return cmd
}

func runTUI(ctx context.Context, app *App) error {
	s, st, err := loadSettings(app)
	if err != nil {
		return err
	}
	if err := st.Ensure(); err != nil {
		return err
	}
	logFile := s.LogFile
	if logFile == "" {
		logFile = st.LogPath()
	}
	log, err := logging.New(logging.Options{Verbose: app.Verbose, File: logFile})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	c := newClient(s, log)
	signals := hostsignal.Merge(ctx,
		hostsignal.Signals(ctx),
		hostsignal.Events(ctx, hostsignal.EventsURL(s.BaseURL()), log),
	)
	log.Info("starting dashboard", zap.String("endpoint", c.Endpoint()), zap.String("mode", s.Mode))
	return tui.Run(ctx, tui.Options{
		Backend:  c,
		Settings: s,
		Store:    st,
		Logger:   log,
		Signals:  signals,
	})
}

// loadSettings resolves settings from valter.yaml in the config dir, the
// environment and any flags the user set.
func loadSettings(app *App) (config.Settings, store.Store, error) {
	st, err := store.Open()
	if err != nil {
		return config.Settings{}, store.Store{}, err
	}
	overrides := map[string]any{}
	if app.APIURL != "" {
		overrides["api_url"] = app.APIURL
	}
	if app.Mode != "" {
		overrides["mode"] = app.Mode
	}
	if app.Timeout > 0 {
		overrides["request_timeout"] = app.Timeout
	}
	if app.LogFile != "" {
		overrides["log_file"] = app.LogFile
	}
	s, err := config.Load(st.Dir, overrides)
	if err != nil {
		return config.Settings{}, st, err
	}
	return s, st, nil
}

// logger is the stderr logger for one-shot commands.
func (app *App) logger() *zap.Logger {
	if app.log != nil {
		return app.log
	}
	app.log = logging.Quiet()
	if app.Verbose {
		if l, err := logging.New(logging.Options{Verbose: true}); err == nil {
			app.log = l
		}
	}
	return app.log
}

func newClient(s config.Settings, log *zap.Logger) *client.Client {
	return client.New(client.Options{
		BaseURL: s.BaseURL(),
		Timeout: s.RequestTimeout,
		Logger:  log,
	})
}

// connect loads settings and returns a client for one-shot commands.
func connect(app *App) (config.Settings, *client.Client, error) {
	s, _, err := loadSettings(app)
	if err != nil {
		return config.Settings{}, nil, err
	}
	return s, newClient(s, app.logger()), nil
}

func newSyncer(s config.Settings, c *client.Client, log *zap.Logger) *syncloop.Syncer {
	return syncloop.New(c, syncloop.Options{
		PollInterval: s.PollInterval,
		SettleDelay:  s.SettleDelay,
		Capabilities: capabilities(s),
		Logger:       log,
	})
}

func capabilities(s config.Settings) schema.Capabilities {
	caps := schema.DefaultCapabilities()
	caps.CloudWritable = s.CloudsWritable
	return caps
}

// loadIndex fetches the backend config and resolves ref against it.
func loadIndex(ctx context.Context, s config.Settings, c *client.Client, ref model.Ref) (*schema.Index, model.EntitySchema, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, nil, err
	}
	ix := schema.New(cfg, capabilities(s))
	def, err := ix.SchemaOf(ref)
	if err != nil {
		return ix, nil, err
	}
	return ix, def, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.Pretty)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "error: "+err.Error())
	return reportedError{err}
}
