package orchestrator

import (
	"context"
	"fmt"

	"github.com/example/priority-ride/internal/models"
	"github.com/example/priority-ride/internal/observability"
	"github.com/example/priority-ride/internal/state"
)

// cleanupOnce runs Unwind at most once per run, whichever failure path gets
// there first.
func (o *Orchestrator) cleanupOnce(ctx context.Context) {
	if o.cleanupAttempted {
		return
	}
	o.cleanupAttempted = true
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("cleanup panicked", "run_id", o.runID, "panic", rec)
			o.logf("ERROR during cleanup: %v", rec)
		}
	}()
	o.Unwind(ctx)
}

// Unwind cancels every pending filler booking, repeating the pass with backoff
// while any remain. It returns how many are still pending. With nothing
// pending it makes no vendor calls.
func (o *Orchestrator) Unwind(ctx context.Context) int {
	n := o.PendingCount()
	if n == 0 {
		return 0
	}
	o.setStep(StatusCancelling, "Cancelling filler bookings")
	o.logf("--- Cleanup: cancelling %d filler booking(s) ---", n)

	for attempt := 1; attempt <= o.policy.CleanupAttempts; attempt++ {
		remaining := o.unwindPass(ctx)
		if remaining == 0 {
			o.logf("All filler bookings cancelled")
			return 0
		}
		if attempt < o.policy.CleanupAttempts {
			delay := o.policy.CleanupDelay(attempt)
			o.logf("%d filler booking(s) still active; retrying cleanup in %s", remaining, delay)
			o.sleep(delay)
		}
	}

	left := o.Pending()
	for _, rec := range left {
		name := rec.AccountKey
		if a, ok := o.roster.Get(rec.AccountKey); ok {
			name = a.Name
		}
		o.logf("Could not cancel %s's booking (ride ID: %d) after %d attempts", name, rec.DisplayID(), o.policy.CleanupAttempts)
		o.publish(rec.AccountKey, state.Error, fmt.Sprintf("Shuttle ride %d could not be cancelled", rec.DisplayID()))
		o.emit(ctx, models.EventUnwindFailed, rec)
	}
	return len(left)
}

// unwindPass works on a copy of the pending set and removes only the records
// whose cancel was confirmed.
func (o *Orchestrator) unwindPass(ctx context.Context) int {
	o.mu.Lock()
	batch := append([]pendingBooking(nil), o.pending...)
	o.mu.Unlock()

	done := make(map[int]bool, len(batch))
	for _, p := range batch {
		if p.rec.Role != models.RoleFiller {
			continue
		}
		if o.cancelRecord(ctx, p.rec) {
			done[p.seq] = true
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.pending[:0]
	for _, p := range o.pending {
		if !done[p.seq] {
			kept = append(kept, p)
		}
	}
	removed := len(o.pending) - len(kept)
	o.pending = kept
	if !o.gaugeReleased && removed > 0 {
		observability.PendingUnwind.Sub(float64(removed))
	}
	return len(o.pending)
}

// cancelRecord tries the confirmed id first, then the fallback, and stops at
// the first confirmed cancel.
func (o *Orchestrator) cancelRecord(ctx context.Context, rec models.BookingRecord) bool {
	a, ok := o.roster.Get(rec.AccountKey)
	if !ok {
		o.logf("  Cannot cancel ride for unknown account %q", rec.AccountKey)
		return false
	}
	for _, id := range rec.CancelIDs() {
		o.publish(a.Key, state.Cancelling, fmt.Sprintf("Cancelling ride %d", id))
		o.logf("  Cancelling %s's booking (ride ID: %d)...", a.Name, id)
		res := o.client.Cancel(ctx, id, a.Credentials)
		if !res.Confirmed {
			observability.CancelsTotal.WithLabelValues("failed").Inc()
			o.logf("  Failed to cancel ride %d for %s: %s", id, a.Name, res.Reason)
			continue
		}
		observability.CancelsTotal.WithLabelValues("confirmed").Inc()
		o.logf("  Cancelled %s's booking", a.Name)
		if o.state != nil {
			o.state.RemoveReservation(a.Key, rec.DisplayID())
		}
		o.emit(ctx, models.EventCancelled, rec)
		return true
	}
	return false
}
