package cli

import (
	"time"

	"github.com/spf13/cobra"

	"valter-dash/internal/devbackend"
	"valter-dash/internal/logging"
)

func newDevServerCmd(app *App) *cobra.Command {
	var (
		root     string
		dbPath   string
		addr     string
		watch    bool
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Serve a local backend from a fixture directory",
		Long: `Serve the dashboard's GraphQL API from a fixture directory: a
valter.dev.config file declaring Clouds and Islands, an optional
clouds.seed.yaml with initial cloud rows, and the island trees the config
points at. Island edits are written back to the fixture files.

Set GEMINI_API_KEY (and optionally GEMINI_MODEL) to answer oracle questions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Request logs are the point of a dev server, so info goes to stderr.
			log, err := logging.New(logging.Options{Verbose: app.Verbose})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = log.Sync() }()

			oracle, err := devbackend.OracleFromEnv(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := devbackend.New(ctx, devbackend.Options{
				Root:     root,
				DBPath:   dbPath,
				Addr:     addr,
				Logger:   log,
				Oracle:   oracle,
				Watch:    watch,
				Debounce: debounce,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()
			if err := s.Run(ctx); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", envOr("VALTER_DEV_ROOT", "."), "Fixture directory")
	cmd.Flags().StringVar(&dbPath, "db", envOr("VALTER_DEV_DB", ""), "SQLite file (default: in memory)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: 127.0.0.1:<GLOBAL.port>)")
	cmd.Flags().BoolVar(&watch, "watch", true, "Rescan when fixture files change")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "Quiet period before a change-triggered rescan")
	return cmd
}
