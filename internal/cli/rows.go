package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"valter-dash/internal/celledit"
	"valter-dash/internal/model"
	"valter-dash/internal/render"
	"valter-dash/internal/schema"
)

type columnOut struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Editable bool   `json:"editable"`
}

type fieldOut struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Value    string `json:"value"`
	Editable bool   `json:"editable"`
}

func newRowsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rows <cloud|island>/<name>",
		Short: "List the records of a Cloud or Island",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := model.ParseRef(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			s, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			ix, def, err := loadIndex(ctx, s, c, ref)
			if err != nil {
				return writeErr(cmd, err)
			}
			rows, err := c.Rows(ctx, ref)
			if err != nil {
				return writeErr(cmd, err)
			}
			t, err := render.BuildTable(ix.Capabilities(), ref, def, rows, render.NewFormatter(ix.Config().Global))
			if err != nil && !errors.Is(err, render.ErrEmpty) {
				return writeErr(cmd, err)
			}

			cols := make([]columnOut, 0, len(t.Columns))
			headers := make([]string, 0, len(t.Columns))
			for _, col := range t.Columns {
				cols = append(cols, columnOut{Key: col.Key, Title: col.Title, Editable: col.Editable})
				headers = append(headers, col.Title)
			}
			table := make([][]string, 0, len(t.Rows))
			for _, r := range t.Rows {
				line := make([]string, 0, len(r.Cells))
				for _, cell := range r.Cells {
					line = append(line, cell.Display)
				}
				table = append(table, line)
			}
			if rows == nil {
				rows = []model.Row{}
			}
			data := map[string]any{
				"ref":     ref.String(),
				"columns": cols,
				"rows":    rows,
			}
			return writeOut(cmd, app, withTable(envelope{Data: data, Meta: map[string]any{"count": len(rows)}}, headers, table))
		},
	}
	cmd.AddCommand(newRowsShowCmd(app))
	return cmd
}

func newRowsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cloud|island>/<name> <id-or-name>",
		Short: "Show one record as a form",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := model.ParseRef(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			s, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			ix, def, err := loadIndex(ctx, s, c, ref)
			if err != nil {
				return writeErr(cmd, err)
			}
			rows, err := c.Rows(ctx, ref)
			if err != nil {
				return writeErr(cmd, err)
			}
			row, err := schema.FindRow(ref, rows, args[1])
			if err != nil {
				return writeErr(cmd, err)
			}

			fields := render.BuildForm(ix.Capabilities(), def, row, render.NewFormatter(ix.Config().Global))
			out := make([]fieldOut, 0, len(fields))
			table := make([][]string, 0, len(fields))
			for _, f := range fields {
				out = append(out, fieldOut{Key: f.Key, Label: f.Label, Value: f.Value, Editable: f.Editable})
				mode := "read-only"
				if f.Editable {
					mode = "editable"
				}
				table = append(table, []string{f.Label, f.Value, mode})
			}
			data := map[string]any{
				"ref":      ref.String(),
				"identity": args[1],
				"name":     schema.EntityName(row, args[1]),
				"fields":   out,
				"row":      row,
			}
			return writeOut(cmd, app, withTable(envelope{Data: data}, []string{"field", "value", ""}, table))
		},
	}
}

func newSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <cloud|island>/<name> <id-or-name> <field> <value>",
		Short: "Update one field of a record",
		Long: `Update one field of a record. Island fields are written back to the
island's files by the backend; Cloud fields are read-only unless the
backend advertises cloud writes.

Setting a field to its current value sends no request.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := model.ParseRef(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			identity, field, value := args[1], args[2], args[3]

			s, c, err := connect(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			ix, def, err := loadIndex(ctx, s, c, ref)
			if err != nil {
				return writeErr(cmd, err)
			}
			rows, err := c.Rows(ctx, ref)
			if err != nil {
				return writeErr(cmd, err)
			}
			row, err := schema.FindRow(ref, rows, identity)
			if err != nil {
				return writeErr(cmd, err)
			}

			committed := render.CommittedValue(row, field)
			target := celledit.Target{Ref: ref, Entity: schema.EntityName(row, identity)}
			key := celledit.Key{RowID: identity, Field: field}
			changed, err := celledit.New().Submit(ctx, key, committed, value, ix.IsEditable(def, field), celledit.Writer(c, target))
			if err != nil {
				if errors.Is(err, celledit.ErrNotEditable) {
					err = notEditableError{field: field, ref: ref.String()}
				}
				return writeErr(cmd, err)
			}
			app.logger().Debug("field updated", zap.String("ref", ref.String()), zap.String("field", field), zap.Bool("changed", changed))

			var hints []string
			if !changed {
				hints = append(hints, "value unchanged; no update was sent")
			}
			data := map[string]any{
				"ref":      ref.String(),
				"identity": identity,
				"field":    field,
				"previous": committed,
				"value":    value,
				"changed":  changed,
			}
			return writeOut(cmd, app, withTable(envelope{Data: data, Hints: hints},
				[]string{"field", "previous", "value", "changed"},
				[][]string{{field, committed, value, boolWord(changed)}}))
		},
	}
}

func boolWord(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
