package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/dispatch"
	"github.com/mattjoyce/beacon/internal/storage"
)

func newRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "beacon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRecorder(db)
}

func TestRecorderStoresTerminalEventsOnly(t *testing.T) {
	r := newRecorder(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r.Report(dispatch.StatusEvent{AttemptID: "a1", Type: dispatch.EventSending, At: base})

	ok := alert.Success("a1", "")
	r.Report(dispatch.StatusEvent{AttemptID: "a1", Type: dispatch.EventSucceeded, At: base, Outcome: &ok})

	failed := alert.Failure("a2", alert.RejectedFailure(500, "server error"))
	r.Report(dispatch.StatusEvent{AttemptID: "a2", Type: dispatch.EventFailed, At: base.Add(time.Minute), Outcome: &failed})

	entries, err := r.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "a2", entries[0].AttemptID)
	assert.False(t, entries[0].Succeeded)
	assert.Equal(t, alert.ServerRejected, entries[0].Kind)
	assert.Equal(t, 500, entries[0].StatusCode)
	assert.Equal(t, "Error: 500 server error", entries[0].Message)

	assert.Equal(t, "a1", entries[1].AttemptID)
	assert.True(t, entries[1].Succeeded)
	assert.Empty(t, entries[1].Kind)
	assert.True(t, base.Equal(entries[1].CompletedAt))
}

func TestRecentLimit(t *testing.T) {
	r := newRecorder(t)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Record(ctx, alert.Failure(id, alert.DeniedFailure(alert.Location)), base.Add(time.Duration(i)*time.Second)))
	}

	entries, err := r.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].AttemptID)
	assert.Equal(t, alert.Location, entries[0].Capability)
}
