package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/priority-ride/internal/models"
	"github.com/example/priority-ride/internal/observability"
	"github.com/example/priority-ride/internal/state"
	"github.com/example/priority-ride/internal/vendor"
)

// view is one account's classified search.
type view struct {
	failed   bool
	priority []models.Proposal
	shuttle  []models.Proposal
}

func (v view) hasPriority() bool { return len(v.priority) > 0 }

// run checks ctx only for stops; every vendor call and event uses callCtx.
func (o *Orchestrator) run(ctx, callCtx context.Context) Result {
	target, ok := o.roster.Get(o.targetKey)
	if !ok {
		o.logf("ERROR: unknown account %q", o.targetKey)
		return Result{RunID: o.runID, Message: fmt.Sprintf("Unknown account %q", o.targetKey)}
	}
	o.target = target
	fillers := o.roster.Fillers(target.Key)

	o.setStep(StatusSearching, "starting")
	o.logf("=== Starting Priority Ride orchestrator ===")
	o.logf("Target account: %s", target.Name)
	o.logf("Route: %s -> %s", o.route.Origin.Label(), o.route.Destination.Label())
	o.logf("Filler accounts: %s", names(fillers))

	if len(fillers) == 0 {
		o.logf("ERROR: No filler accounts available!")
		return Result{RunID: o.runID, Message: "No filler accounts available"}
	}
	o.publish(target.Key, state.Orchestrating, "Waiting for a Priority Ride")

	first := fillers[0]
	o.logf("--- Step 1: Initial check with %s ---", first.Name)
	o.setStep(StatusSearching, "Checking availability with "+first.Name)
	probe := o.search(callCtx, first)
	o.publish(first.Key, state.Idle, "")
	if probe.hasPriority() {
		o.logf("Priority Ride already available!")
		if res, done := o.tryTarget(ctx, callCtx); done {
			return res
		}
	}
	o.logf("Shuttle seats available: %d", len(probe.shuttle))

	o.logf("--- Step 2: Filling Shuttle capacity ---")
	for _, filler := range fillers {
		if o.stopRequested(ctx) {
			return o.stopped(callCtx)
		}
		o.setStep(StatusSearching, "Searching as "+filler.Name)
		o.logf("Searching as %s...", filler.Name)
		v := o.search(callCtx, filler)
		o.logf("  Shuttle available: %d, Priority Ride available: %t", len(v.shuttle), v.hasPriority())

		if v.hasPriority() {
			o.logf("Priority Ride became available!")
			if res, done := o.tryTarget(ctx, callCtx); done {
				return res
			}
		}
		if len(v.shuttle) == 0 {
			o.logf("  No Shuttle rides to book")
			o.publish(filler.Key, state.Idle, "")
			continue
		}
		if res, done := o.fill(ctx, callCtx, filler, v.shuttle[0]); done {
			return res
		}
	}

	if o.stopRequested(ctx) {
		return o.stopped(callCtx)
	}
	o.logf("--- All filler accounts used, checking one more time ---")
	if res, done := o.tryTarget(ctx, callCtx); done {
		return res
	}
	o.logf("FAILED: Could not get a Priority Ride for %s", target.Name)
	return o.fail(callCtx, "Could not get a Priority Ride: not enough filler accounts or Shuttle still has capacity")
}

func (o *Orchestrator) fail(callCtx context.Context, reason string) Result {
	o.cleanupOnce(callCtx)
	return o.failure(reason)
}

func (o *Orchestrator) search(ctx context.Context, a models.Account) view {
	o.publish(a.Key, state.Searching, "Searching for rides")
	res := o.client.Search(ctx, o.route.Origin, o.route.Destination, a.Credentials)
	if res.Failed {
		o.logf("  Search as %s failed: %s", a.Name, res.Reason)
		return view{failed: true}
	}
	priority, shuttle := o.classifier.Split(res.Proposals)
	return view{priority: priority, shuttle: shuttle}
}

// tryTarget searches as the target and books the first Priority Ride it
// sees. done is false only when the target was not offered one; any booking
// attempt is terminal because target bookings are never retried.
func (o *Orchestrator) tryTarget(ctx, callCtx context.Context) (Result, bool) {
	t := o.target
	o.logf("Searching as %s to book the Priority Ride...", t.Name)
	v := o.search(callCtx, t)
	if !v.hasPriority() {
		o.logf("Priority Ride not available when %s searched", t.Name)
		o.publish(t.Key, state.Orchestrating, "Waiting for a Priority Ride")
		return Result{}, false
	}
	if o.stopRequested(ctx) {
		return o.stopped(callCtx), true
	}

	p := v.priority[0]
	o.setStep(StatusBooking, "Booking Priority Ride for "+t.Name)
	o.publish(t.Key, state.Booking, "Booking Priority Ride")
	res := o.client.Book(callCtx, o.bookRequest(p), t.Credentials)
	switch res.Outcome {
	case vendor.Success:
		o.recordTarget(callCtx, p, res.Payload)
		o.logf("SUCCESS! %s booked the Priority Ride!", t.Name)
		o.cleanupOnce(callCtx)
		return o.success(), true
	case vendor.Failure, vendor.Unavailable:
		reason := describe(res)
		o.logf("Failed to book Priority Ride for %s: %s", t.Name, reason)
		return o.fail(callCtx, "Failed to book Priority Ride for "+t.Name+": "+reason), true
	default:
		panic(fmt.Sprintf("unhandled book outcome %v", res.Outcome))
	}
}

// fill books a Shuttle seat for filler, retrying while the vendor says
// capacity is momentarily exhausted. done is true when the run ended while
// retrying (the Priority Ride showed up, or a stop was requested).
func (o *Orchestrator) fill(ctx, callCtx context.Context, filler models.Account, p models.Proposal) (Result, bool) {
	for attempt := 1; ; attempt++ {
		if o.stopRequested(ctx) {
			return o.stopped(callCtx), true
		}
		o.setStep(StatusBooking, "Booking Shuttle with "+filler.Name)
		o.publish(filler.Key, state.Booking, "Booking Shuttle")
		o.logf("  Booking Shuttle with %s...", filler.Name)

		res := o.client.Book(callCtx, o.bookRequest(p), filler.Credentials)
		switch res.Outcome {
		case vendor.Success:
			o.recordFiller(callCtx, filler, p, res.Payload)
			return Result{}, false
		case vendor.Failure, vendor.Unavailable:
			reason := describe(res)
			if res.Outcome != vendor.Failure || !IsRetryable(reason) || attempt >= o.policy.BookAttempts {
				o.logf("  Failed to book Shuttle with %s: %s", filler.Name, reason)
				o.publish(filler.Key, state.Idle, "")
				return Result{}, false
			}
			delay := o.policy.BookDelay(attempt)
			o.logf("  %s: %s; retrying in %s (attempt %d/%d)", filler.Name, reason, delay, attempt+1, o.policy.BookAttempts)
			o.sleep(delay)

			v := o.search(callCtx, filler)
			if v.hasPriority() {
				o.logf("Priority Ride became available while retrying!")
				if r, done := o.tryTarget(ctx, callCtx); done {
					return r, true
				}
			}
			if len(v.shuttle) == 0 {
				o.logf("  No Shuttle rides left for %s", filler.Name)
				o.publish(filler.Key, state.Idle, "")
				return Result{}, false
			}
			p = v.shuttle[0]
		default:
			panic(fmt.Sprintf("unhandled book outcome %v", res.Outcome))
		}
	}
}

func (o *Orchestrator) bookRequest(p models.Proposal) vendor.BookRequest {
	return vendor.BookRequest{
		PrescheduledRideID: p.PrescheduledRideID,
		ProposalUUID:       p.UUID,
		Origin:             o.route.Origin,
		Destination:        o.route.Destination,
	}
}

func (o *Orchestrator) recordFiller(ctx context.Context, filler models.Account, p models.Proposal, payload map[string]any) {
	rec := newRecord(filler.Key, models.RoleFiller, models.RideTypeShuttle, p, payload)
	ids := rec.CancelIDs()
	if len(ids) == 0 {
		o.logf("  %s booked a Shuttle but no ride id was returned; it must be cancelled by hand", filler.Name)
		o.publish(filler.Key, state.Error, "Shuttle booked without ride id")
		o.emit(ctx, models.EventBooked, rec)
		return
	}

	o.seq++
	o.mu.Lock()
	o.pending = append(o.pending, pendingBooking{seq: o.seq, rec: rec})
	o.mu.Unlock()
	observability.FillerBookingsTotal.Inc()
	observability.PendingUnwind.Inc()

	if rec.RideID != nil {
		o.logf("  %s booked Shuttle (ride ID: %d)", filler.Name, *rec.RideID)
	} else {
		o.logf("  %s booked Shuttle (no confirmed id, will cancel prescheduled ride %d)", filler.Name, ids[0])
	}
	if o.state != nil {
		o.state.AddReservation(filler.Key, state.Reservation{RideID: rec.DisplayID(), RideType: models.RideTypeShuttle, Source: models.SourceOrchestrator})
	}
	o.emit(ctx, models.EventBooked, rec)
}

func (o *Orchestrator) recordTarget(ctx context.Context, p models.Proposal, payload map[string]any) {
	rec := newRecord(o.target.Key, models.RoleTarget, models.RideTypePriority, p, payload)
	o.mu.Lock()
	o.targetRecord = &rec
	o.mu.Unlock()
	o.targetPayload = payload
	if o.state != nil {
		o.state.AddReservation(o.target.Key, state.Reservation{RideID: rec.DisplayID(), RideType: models.RideTypePriority, Source: models.SourceOrchestrator})
	}
	o.emit(ctx, models.EventBooked, rec)
}

func newRecord(key string, role models.Role, rt models.RideType, p models.Proposal, payload map[string]any) models.BookingRecord {
	rec := models.BookingRecord{AccountKey: key, Role: role, RideType: rt}
	if id, ok := vendor.ConfirmedRideID(payload); ok {
		rec.RideID = &id
	}
	if p.PrescheduledRideID != 0 {
		id := p.PrescheduledRideID
		rec.PrescheduledRideID = &id
	}
	return rec
}

func describe(res vendor.BookResult) string {
	switch res.Outcome {
	case vendor.Unavailable:
		if res.Message != "" {
			return "no response from vendor: " + res.Message
		}
		return "no response from vendor"
	default:
		if res.Message != "" {
			return res.Message
		}
		return fmt.Sprintf("HTTP %d", res.StatusCode)
	}
}

func names(as []models.Account) string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Name)
	}
	return "[" + strings.Join(out, ", ") + "]"
}
