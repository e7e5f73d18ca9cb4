package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"valter-dash/internal/config"
	"valter-dash/internal/syncloop"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect dashboard settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show resolved settings (defaults < valter.yaml < VALTER_* < flags)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, st, err := loadSettings(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			env := s.EnvStatus()
			data := map[string]any{
				"configDir":        st.Dir,
				"source":           s.Source,
				"apiUrl":           s.BaseURL(),
				"mode":             s.Mode,
				"pollInterval":     s.PollInterval.String(),
				"requestTimeout":   s.RequestTimeout.String(),
				"settleDelay":      s.SettleDelay.String(),
				"cloudsWritable":   s.CloudsWritable,
				"ignoreMissingEnv": s.IgnoreMissingEnv,
				"requiredEnv":      s.RequiredEnv,
				"envStatus":        env.Kind.String(),
				"missingEnv":       env.Missing,
				"theme":            s.Theme,
			}
			rows := [][]string{
				{"config dir", st.Dir},
				{"source", s.Source},
				{"api url", s.BaseURL()},
				{"mode", s.Mode},
				{"poll interval", s.PollInterval.String()},
				{"request timeout", s.RequestTimeout.String()},
				{"settle delay", s.SettleDelay.String()},
				{"clouds writable", strconv.FormatBool(s.CloudsWritable)},
				{"env status", env.Kind.String()},
				{"missing env", strings.Join(env.Missing, ", ")},
			}
			return writeOut(cmd, app, withTable(envelope{Data: data}, []string{"setting", "value"}, rows))
		},
	})
	return cmd
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the backend connection and summarize its contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			env := s.EnvStatus()
			if env.Blocking() {
				return writeErr(cmd, envError(env))
			}

			snap := newSyncer(s, c, app.logger()).Refresh(cmd.Context())
			if snap.Phase == syncloop.PhaseDisconnected {
				return writeErr(cmd, fmt.Errorf("backend unreachable at %s: %w", s.BaseURL(), snap.ConfigErr))
			}

			data := snapshotSummary(snap)
			data["endpoint"] = c.Endpoint()
			data["envStatus"] = env.Kind.String()
			var hints []string
			if snap.ActionsErr != nil {
				data["actionsError"] = snap.ActionsErr.Error()
				hints = append(hints, "pending actions could not be refreshed; counts may be stale")
			}
			if n := len(snap.Actions); n > 0 {
				hints = append(hints, "valter actions list")
			}
			rows := [][]string{
				{"endpoint", c.Endpoint()},
				{"company", snap.Config.Global.CompanyName},
				{"clouds", strconv.Itoa(len(snap.Config.Clouds))},
				{"islands", strconv.Itoa(len(snap.Config.Islands))},
				{"pending actions", strconv.Itoa(len(snap.Actions))},
			}
			return writeOut(cmd, app, withTable(envelope{Data: data, Hints: hints}, []string{"field", "value"}, rows))
		},
	}
}

func snapshotSummary(snap syncloop.Snapshot) map[string]any {
	return map[string]any{
		"phase":          snap.Phase.String(),
		"company":        snap.Config.Global.CompanyName,
		"clouds":         len(snap.Config.Clouds),
		"islands":        len(snap.Config.Islands),
		"pendingActions": len(snap.Actions),
		"at":             snap.At.UTC().Format(time.RFC3339),
	}
}

func envError(st config.Status) error {
	return fmt.Errorf("configuration error: missing environment variables: %s (set them or enable ignore_missing_env)", strings.Join(st.Missing, ", "))
}
