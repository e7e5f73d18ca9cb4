package cli

import (
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"valter-dash/internal/hostsignal"
	"valter-dash/internal/syncloop"
)

func newRescanCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rescan",
		Short: "Ask the backend to rescan island files, then show the refreshed state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			snap, err := newSyncer(s, c, app.logger()).Rescan(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if snap.Phase == syncloop.PhaseDisconnected {
				return writeErr(cmd, snap.ConfigErr)
			}
			return writeOut(cmd, app, snapshotOutput(snap))
		},
	}
}

func newWatchCmd(app *App) *cobra.Command {
	var noEvents bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the backend and print a summary after every refresh",
		Long: `Watch polls the backend at the configured poll interval and prints one
summary per refresh. SIGUSR1 and backend "menu-rescan" events trigger a
rescan. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			log := app.logger()

			inputs := []<-chan struct{}{hostsignal.Signals(ctx)}
			if !noEvents {
				inputs = append(inputs, hostsignal.Events(ctx, hostsignal.EventsURL(s.BaseURL()), log))
			}
			signals := hostsignal.Merge(ctx, inputs...)

			var werr error
			err = newSyncer(s, c, log).Run(ctx, signals, func(snap syncloop.Snapshot) {
				if werr != nil {
					return
				}
				if snap.Phase == syncloop.PhaseDisconnected {
					log.Warn("backend unreachable", zap.Error(snap.ConfigErr))
				}
				werr = writeOut(cmd, app, snapshotOutput(snap))
			})
			if werr != nil {
				return writeErr(cmd, werr)
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noEvents, "no-events", false, "Do not subscribe to the backend /events stream")
	return cmd
}

func snapshotOutput(snap syncloop.Snapshot) tabular {
	data := snapshotSummary(snap)
	if snap.ConfigErr != nil {
		data["error"] = snap.ConfigErr.Error()
	}
	if snap.ActionsErr != nil {
		data["actionsError"] = snap.ActionsErr.Error()
	}
	rows := [][]string{{
		snap.Phase.String(),
		strconv.Itoa(len(snap.Config.Clouds)),
		strconv.Itoa(len(snap.Config.Islands)),
		strconv.Itoa(len(snap.Actions)),
		snap.At.Format("15:04:05"),
	}}
	return withTable(envelope{Data: data}, []string{"phase", "clouds", "islands", "pending", "at"}, rows)
}
