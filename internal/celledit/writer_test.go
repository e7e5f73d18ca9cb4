package celledit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valter-dash/internal/model"
)

type recordingWriter struct {
	calls [][4]string
}

func (w *recordingWriter) UpdateIslandField(_ context.Context, kind, name, key, value string) error {
	w.calls = append(w.calls, [4]string{kind, name, key, value})
	return nil
}

func TestWrite_IslandUsesEntityName(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	target := Target{Ref: model.Ref{Kind: model.KindIsland, Name: "Project"}, Entity: "Phoenix"}
	m := New()
	changed, err := m.Submit(context.Background(), Key{RowID: "7", Field: "status"}, "active", "done", true, Writer(w, target))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, [][4]string{{"Project", "Phoenix", "status", "done"}}, w.calls)
}

func TestWrite_CloudIsRefused(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	err := Write(context.Background(), w, Target{Ref: model.Ref{Kind: model.KindCloud, Name: "Clients"}, Entity: "Acme"}, "city", "Zagreb")
	require.ErrorIs(t, err, ErrCloudWrite)
	assert.Empty(t, w.calls)
}
