// Package orchestrator books a Priority Ride for a target account by draining
// Shuttle capacity with filler accounts, then cancels every filler booking it
// made. The target's Priority Ride is never cancelled here.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/example/priority-ride/internal/classify"
	"github.com/example/priority-ride/internal/models"
	"github.com/example/priority-ride/internal/observability"
	"github.com/example/priority-ride/internal/state"
	"github.com/example/priority-ride/internal/vendor"
)

var ErrAlreadyRun = errors.New("orchestrator already run")

// RideClient is the subset of the vendor client a run needs.
type RideClient interface {
	Search(ctx context.Context, origin, destination models.Location, creds models.Credentials) vendor.SearchResult
	Book(ctx context.Context, req vendor.BookRequest, creds models.Credentials) vendor.BookResult
	Cancel(ctx context.Context, rideID int64, creds models.Credentials) vendor.CancelResult
}

type Roster interface {
	Get(key string) (models.Account, bool)
	Fillers(excludeKey string) []models.Account
}

// StatusPublisher receives per-account activity for observers.
type StatusPublisher interface {
	SetStatus(key string, activity state.Activity, message string)
	AddReservation(key string, r state.Reservation)
	RemoveReservation(key string, rideID int64)
}

// EventSink receives booking events. Errors are logged and otherwise ignored.
type EventSink interface {
	Publish(ctx context.Context, ev models.BookingEvent) error
}

// EventSinks fans an event out to several sinks.
type EventSinks []EventSink

func (s EventSinks) Publish(ctx context.Context, ev models.BookingEvent) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Status string

const (
	StatusIdle       Status = "idle"
	StatusSearching  Status = "searching"
	StatusBooking    Status = "booking"
	StatusCancelling Status = "cancelling"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

type Result struct {
	RunID   string         `json:"run_id"`
	Success bool           `json:"success"`
	Booking map[string]any `json:"booking,omitempty"`
	Message string         `json:"message"`
}

// Snapshot is a point-in-time view of a run for diagnostics.
type Snapshot struct {
	RunID        string   `json:"run_id"`
	TargetKey    string   `json:"target_key"`
	Route        string   `json:"route"`
	Status       Status   `json:"status"`
	Step         string   `json:"step"`
	Pending      int      `json:"pending_unwind"`
	TargetBooked bool     `json:"target_booked"`
	Lines        []string `json:"log"`
	Result       *Result  `json:"result,omitempty"`
}

type Options struct {
	Client     RideClient
	Roster     Roster
	Classifier *classify.Classifier
	State      StatusPublisher
	Events     EventSink
	// Sink receives each progress line as it is produced.
	Sink   func(string)
	Policy Policy
	// Sleep blocks between retries. Defaults to time.Sleep.
	Sleep  func(time.Duration)
	Logger *slog.Logger
	RunID  string
	Now    func() time.Time
}

type pendingBooking struct {
	seq int
	rec models.BookingRecord
}

// Orchestrator runs once. Run must be called from a single goroutine; the
// query methods are safe to call from anywhere.
type Orchestrator struct {
	client     RideClient
	roster     Roster
	classifier *classify.Classifier
	state      StatusPublisher
	events     EventSink
	sink       func(string)
	policy     Policy
	sleep      func(time.Duration)
	logger     *slog.Logger
	now        func() time.Time
	runID      string
	targetKey  string
	route      models.Route

	started atomic.Bool
	stop    atomic.Bool

	// owned by the run goroutine
	target           models.Account
	targetPayload    map[string]any
	cleanupAttempted bool
	seq              int

	mu           sync.Mutex
	status       Status
	step         string
	lines        []string
	feeds        map[*feed]struct{}
	pending      []pendingBooking
	targetRecord *models.BookingRecord
	result       *Result

	// set by finish once the gauge no longer counts what is left in pending
	gaugeReleased bool
}

func New(targetKey string, route models.Route, opts Options) *Orchestrator {
	o := &Orchestrator{
		client:     opts.Client,
		roster:     opts.Roster,
		classifier: opts.Classifier,
		state:      opts.State,
		events:     opts.Events,
		sink:       opts.Sink,
		policy:     opts.Policy.withDefaults(),
		sleep:      opts.Sleep,
		logger:     opts.Logger,
		now:        opts.Now,
		runID:      opts.RunID,
		targetKey:  targetKey,
		route:      route,
		status:     StatusIdle,
		feeds:      make(map[*feed]struct{}),
	}
	if o.classifier == nil {
		o.classifier = classify.New(classify.DefaultMarker)
	}
	if o.sleep == nil {
		o.sleep = time.Sleep
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

func (o *Orchestrator) RunID() string     { return o.runID }
func (o *Orchestrator) TargetKey() string { return o.targetKey }

// Stop asks the run to halt at its next checkpoint. Filler bookings are still
// cancelled; a Priority Ride that is already booked stays booked.
func (o *Orchestrator) Stop() {
	if o.stop.CompareAndSwap(false, true) {
		o.logger.Info("stop requested", "run_id", o.runID)
	}
}

// PendingCount is the number of filler bookings not yet confirmed cancelled.
func (o *Orchestrator) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Pending returns a copy of the filler bookings awaiting cancellation.
func (o *Orchestrator) Pending() []models.BookingRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.BookingRecord, 0, len(o.pending))
	for _, p := range o.pending {
		out = append(out, p.rec)
	}
	return out
}

func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		RunID:        o.runID,
		TargetKey:    o.targetKey,
		Route:        o.route.Name,
		Status:       o.status,
		Step:         o.step,
		Pending:      len(o.pending),
		TargetBooked: o.targetRecord != nil,
		Lines:        append([]string(nil), o.lines...),
	}
	if o.result != nil {
		r := *o.result
		snap.Result = &r
	}
	return snap
}

// Run executes the whole drain and blocks until it is terminal. ctx only
// signals a stop, checked between steps like Stop. Vendor calls, events and
// cleanup run on a context detached from it, so a deadline or signal never
// aborts a booking the vendor may already have committed; the client's own
// timeout bounds each call.
func (o *Orchestrator) Run(ctx context.Context) (res Result) {
	if !o.started.CompareAndSwap(false, true) {
		return Result{RunID: o.runID, Message: ErrAlreadyRun.Error()}
	}
	callCtx := context.WithoutCancel(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("orchestrator run panicked", "run_id", o.runID, "panic", rec)
			o.logf("ERROR: %v", rec)
			res = o.afterError(callCtx, fmt.Errorf("%v", rec))
		}
		o.cleanupOnce(callCtx)
		o.finish(res)
	}()
	return o.run(ctx, callCtx)
}

// afterError turns an unexpected failure into a result. A confirmed Priority
// Ride survives the error.
func (o *Orchestrator) afterError(callCtx context.Context, err error) Result {
	o.cleanupOnce(callCtx)
	o.mu.Lock()
	booked := o.targetRecord != nil
	o.mu.Unlock()
	if booked {
		return Result{
			RunID:   o.runID,
			Success: true,
			Booking: o.targetPayload,
			Message: fmt.Sprintf("Error occurred, but Priority Ride booking is preserved: %v", err),
		}
	}
	return o.failure(fmt.Sprintf("Run failed: %v", err))
}

func (o *Orchestrator) finish(res Result) {
	outcome := "failed"
	if res.Success {
		outcome = "success"
	}
	observability.RunsTotal.WithLabelValues(outcome).Inc()
	if o.state != nil && o.target.Key != "" && !res.Success {
		o.state.SetStatus(o.target.Key, state.Idle, res.Message)
	}
	o.logf("=== Finished: %s ===", res.Message)

	o.mu.Lock()
	if res.Success {
		o.status = StatusSuccess
	} else {
		o.status = StatusFailed
	}
	o.step = ""
	remaining := len(o.pending)
	o.gaugeReleased = true
	r := res
	o.result = &r
	o.closeFeedsLocked()
	o.mu.Unlock()

	observability.PendingUnwind.Sub(float64(remaining))
	o.logger.Info("orchestrator run finished", "run_id", o.runID, "success", res.Success, "message", res.Message, "pending_unwind", remaining)
}

func (o *Orchestrator) failure(reason string) Result {
	msg := reason
	if n := o.PendingCount(); n > 0 {
		msg = fmt.Sprintf("%s; %d filler booking(s) could not be cancelled", reason, n)
	} else if o.cleanupAttempted && o.seq > 0 {
		msg = reason + "; filler bookings cleaned up"
	}
	return Result{RunID: o.runID, Message: msg}
}

func (o *Orchestrator) stopRequested(ctx context.Context) bool {
	return o.stop.Load() || ctx.Err() != nil
}

func (o *Orchestrator) stopped(callCtx context.Context) Result {
	o.logf("Stop requested; halting and cleaning up")
	o.cleanupOnce(callCtx)
	o.mu.Lock()
	booked := o.targetRecord != nil
	o.mu.Unlock()
	if booked {
		return o.success()
	}
	r := o.failure("Stopped early")
	if o.seq == 0 {
		r.Message = "Stopped early; no filler bookings to clean up"
	}
	return r
}

func (o *Orchestrator) success() Result {
	return Result{
		RunID:   o.runID,
		Success: true,
		Booking: o.targetPayload,
		Message: fmt.Sprintf("Priority Ride booked successfully for %s", o.target.Name),
	}
}

func (o *Orchestrator) setStep(st Status, step string) {
	o.mu.Lock()
	o.status = st
	o.step = step
	o.mu.Unlock()
}

func (o *Orchestrator) publish(key string, activity state.Activity, message string) {
	if o.state != nil {
		o.state.SetStatus(key, activity, message)
	}
}

func (o *Orchestrator) emit(ctx context.Context, typ models.BookingEventType, rec models.BookingRecord) {
	if o.events == nil {
		return
	}
	ev := models.BookingEvent{
		Type:   typ,
		RunID:  o.runID,
		Source: models.SourceOrchestrator,
		Record: rec,
		At:     o.now(),
	}
	if a, ok := o.roster.Get(rec.AccountKey); ok {
		ev.AccountName = a.Name
	}
	if rec.Role == models.RoleFiller {
		ev.PriorityForKey = o.targetKey
	}
	if err := o.events.Publish(ctx, ev); err != nil {
		o.logger.Warn("booking event publish failed", "run_id", o.runID, "type", typ, "error", err)
	}
}
