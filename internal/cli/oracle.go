package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

func newOracleCmd(app *App) *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "oracle <question...>",
		Short: "Ask the backend's assistant a question about your data",
		Long: `Ask the backend's assistant a free-form question. With --format table
the markdown answer is rendered for the terminal.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return writeErr(cmd, fmt.Errorf("question is empty"))
			}
			_, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			answer, err := c.AskOracle(cmd.Context(), question)
			if err != nil {
				return writeErr(cmd, err)
			}
			if app.Format == "table" {
				return writeMarkdown(cmd.OutOrStdout(), answer, width)
			}
			return writeOut(cmd, app, envelope{Data: map[string]any{"question": question, "answer": answer}})
		},
	}
	cmd.Flags().IntVar(&width, "width", 80, "Wrap width for rendered answers")
	return cmd
}

// writeMarkdown renders md with glamour. Non-terminal writers get the
// plain "notty" style so piped output carries no escape codes.
func writeMarkdown(w io.Writer, md string, width int) error {
	style := "notty"
	out := termenv.NewOutput(w)
	if out.Profile != termenv.Ascii {
		style = "light"
		if out.HasDarkBackground() {
			style = "dark"
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithColorProfile(out.Profile),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return err
	}
	s, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(s, "\n"))
	return err
}
