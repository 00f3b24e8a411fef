// Package sweeper retries cancellation of filler bookings that a run could
// not unwind, until the vendor confirms them.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/example/priority-ride/internal/models"
	"github.com/example/priority-ride/internal/storage"
	"github.com/example/priority-ride/internal/vendor"
)

type Canceller interface {
	Cancel(ctx context.Context, rideID int64, creds models.Credentials) vendor.CancelResult
}

type Roster interface {
	Get(key string) (models.Account, bool)
}

type StaleStore interface {
	Put(ctx context.Context, b StaleBooking) error
	Remove(ctx context.Context, field string) error
	List(ctx context.Context) ([]StaleBooking, error)
}

type Stats struct {
	Cleared int
	Failed  int
}

type Sweeper struct {
	Store    StaleStore
	Client   Canceller
	Roster   Roster
	RideLog  storage.RideLog
	Attempts int
	Delay    time.Duration
	Logger   *slog.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

func New(store StaleStore, client Canceller, roster Roster, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sweeper{Store: store, Client: client, Roster: roster, Attempts: 3, Delay: time.Second, Logger: logger, sleep: time.Sleep, now: time.Now}
}

// Handle records unwind failures and forgets bookings cancelled elsewhere.
func (s *Sweeper) Handle(ctx context.Context, ev models.BookingEvent) error {
	switch ev.Type {
	case models.EventUnwindFailed:
		b := FromRecord(ev)
		if len(b.RideIDs) == 0 {
			return errors.New("unwind_failed event without ride ids")
		}
		if b.FirstSeen.IsZero() {
			b.FirstSeen = s.now()
		}
		s.Logger.Warn("stale filler booking recorded", "account", b.AccountKey, "ride_id", b.RideIDs[0], "run_id", b.RunID)
		return s.Store.Put(ctx, b)
	case models.EventCancelled:
		if ev.Record.Role != models.RoleFiller {
			return nil
		}
		return s.Store.Remove(ctx, FromRecord(ev).Field())
	default:
		return nil
	}
}

// Sweep tries every stale booking once, with per-booking retries.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, error) {
	var st Stats
	items, listErr := s.Store.List(ctx)
	if listErr != nil {
		s.Logger.Error("stale list incomplete", "error", listErr)
	}
	for _, b := range items {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		a, ok := s.Roster.Get(b.AccountKey)
		if !ok {
			st.Failed++
			s.Logger.Error("stale booking for unknown account", "account", b.AccountKey)
			continue
		}
		id, err := cancelWithRetry(ctx, s.Client, a.Credentials, b.RideIDs, s.Attempts, s.Delay, s.sleep)
		if err != nil {
			st.Failed++
			b.Attempts++
			b.LastError = err.Error()
			if perr := s.Store.Put(ctx, b); perr != nil {
				s.Logger.Error("stale booking update failed", "account", b.AccountKey, "error", perr)
			}
			s.Logger.Warn("stale booking still active", "account", b.AccountKey, "ride_ids", b.RideIDs, "attempts", b.Attempts, "error", err)
			continue
		}
		st.Cleared++
		if err := s.Store.Remove(ctx, b.Field()); err != nil {
			s.Logger.Error("stale booking remove failed", "account", b.AccountKey, "error", err)
		}
		if s.RideLog != nil {
			if err := s.RideLog.MarkCancelled(ctx, b.AccountKey, id, s.now()); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.Logger.Error("ride log update failed", "account", b.AccountKey, "ride_id", id, "error", err)
			}
		}
		s.Logger.Info("stale booking cancelled", "account", b.AccountKey, "ride_id", id)
	}
	return st, listErr
}

// cancelWithRetry tries each id in order per attempt, doubling the delay
// between attempts. It returns the id whose cancel was confirmed.
func cancelWithRetry(ctx context.Context, c Canceller, creds models.Credentials, ids []int64, attempts int, delay time.Duration, sleep func(time.Duration)) (int64, error) {
	var last string
	for i := 0; i < attempts; i++ {
		for _, id := range ids {
			res := c.Cancel(ctx, id, creds)
			if res.Confirmed {
				return id, nil
			}
			last = res.Reason
		}
		if i == attempts-1 {
			break
		}
		sleep(delay)
		delay *= 2
	}
	return 0, fmt.Errorf("cancel not confirmed after %d attempts: %s", attempts, last)
}
