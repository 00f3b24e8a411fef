package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/priority-ride/internal/models"
)

func ptr(v int64) *int64 { return &v }

func TestMemoryStoreSaveListCancel(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveRide(ctx, &models.RideLogEntry{ID: "a", AccountKey: "fay", RideID: ptr(10), PrescheduledRideID: ptr(5), RideType: models.RideTypeShuttle, CreatedAt: t0}))
	require.NoError(t, m.SaveRide(ctx, &models.RideLogEntry{ID: "b", AccountKey: "tara", RideID: ptr(11), RideType: models.RideTypePriority, CreatedAt: t0.Add(time.Minute)}))

	all, err := m.ListRides(ctx, RideFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID, "newest first")

	// the fallback id matches too
	require.NoError(t, m.MarkCancelled(ctx, "fay", 5, t0.Add(2*time.Minute)))
	err = m.MarkCancelled(ctx, "fay", 5, t0)
	assert.True(t, errors.Is(err, ErrNotFound), "already cancelled rows do not match")
	assert.True(t, errors.Is(m.MarkCancelled(ctx, "tara", 10, t0), ErrNotFound))

	active, err := m.ListRides(ctx, RideFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "tara", active[0].AccountKey)

	fay, err := m.ListRides(ctx, RideFilter{AccountKey: "fay"})
	require.NoError(t, err)
	require.Len(t, fay, 1)
	assert.True(t, fay[0].Cancelled)
	require.NotNil(t, fay[0].CancelledAt)

	limited, err := m.ListRides(ctx, RideFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStoreRunLines(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, err := m.RunLines(ctx, "r1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, m.AppendRunLine(ctx, "r1", "one"))
	require.NoError(t, m.AppendRunLine(ctx, "r1", "two"))
	lines, err := m.RunLines(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestRecorderFollowsEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	r := NewRecorder(m, nil)
	rec := models.BookingRecord{AccountKey: "fay", RideID: ptr(42), PrescheduledRideID: ptr(7), Role: models.RoleFiller, RideType: models.RideTypeShuttle}

	require.NoError(t, r.Publish(ctx, models.BookingEvent{Type: models.EventBooked, RunID: "run", Source: models.SourceOrchestrator, AccountName: "Fay", PriorityForKey: "tara", Record: rec}))
	rows, _ := m.ListRides(ctx, RideFilter{})
	require.Len(t, rows, 1)
	assert.Equal(t, "tara", rows[0].PriorityForKey)
	assert.NotEmpty(t, rows[0].ID)
	assert.False(t, rows[0].CreatedAt.IsZero())

	require.NoError(t, r.Publish(ctx, models.BookingEvent{Type: models.EventUnwindFailed, Record: rec}))
	rows, _ = m.ListRides(ctx, RideFilter{ActiveOnly: true})
	assert.Len(t, rows, 1)

	require.NoError(t, r.Publish(ctx, models.BookingEvent{Type: models.EventCancelled, Record: rec}))
	rows, _ = m.ListRides(ctx, RideFilter{ActiveOnly: true})
	assert.Empty(t, rows)

	// unknown rides are not an error
	require.NoError(t, r.Publish(ctx, models.BookingEvent{Type: models.EventCancelled, Record: models.BookingRecord{AccountKey: "x", RideID: ptr(1)}}))
}

func TestRecorderRunSink(t *testing.T) {
	m := NewMemoryStore()
	sink := NewRecorder(m, nil).RunSink("r9")
	sink("a")
	sink("b")
	lines, err := m.RunLines(context.Background(), "r9")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
}
