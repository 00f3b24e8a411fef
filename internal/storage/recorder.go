package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/priority-ride/internal/models"
)

// Recorder turns booking events into ride log rows.
type Recorder struct {
	Log    RideLog
	Logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(log RideLog, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{Log: log, Logger: logger, now: time.Now}
}

func (r *Recorder) Publish(ctx context.Context, ev models.BookingEvent) error {
	switch ev.Type {
	case models.EventBooked:
		at := ev.At
		if at.IsZero() {
			at = r.now()
		}
		return r.Log.SaveRide(ctx, &models.RideLogEntry{
			ID:                 uuid.NewString(),
			RunID:              ev.RunID,
			AccountKey:         ev.Record.AccountKey,
			AccountName:        ev.AccountName,
			RideID:             ev.Record.RideID,
			PrescheduledRideID: ev.Record.PrescheduledRideID,
			RideType:           ev.Record.RideType,
			Source:             ev.Source,
			PriorityForKey:     ev.PriorityForKey,
			CreatedAt:          at,
		})
	case models.EventCancelled:
		var lastErr error
		for _, id := range ev.Record.CancelIDs() {
			err := r.Log.MarkCancelled(ctx, ev.Record.AccountKey, id, r.now())
			if err == nil {
				return nil
			}
			lastErr = err
		}
		if errors.Is(lastErr, ErrNotFound) {
			// booked before the log existed, or by hand
			r.Logger.Info("cancelled ride not in ride log", "account", ev.Record.AccountKey, "ride_id", ev.Record.DisplayID())
			return nil
		}
		return lastErr
	default:
		return nil
	}
}

// RunSink persists each orchestrator line for runID. Failures are logged and
// dropped so a slow database never stalls a run.
func (r *Recorder) RunSink(runID string) func(string) {
	return func(line string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.Log.AppendRunLine(ctx, runID, line); err != nil {
			r.Logger.Warn("run log append failed", "run_id", runID, "error", err)
		}
	}
}
