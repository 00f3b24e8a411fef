package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/priority-ride/internal/models"
	"github.com/example/priority-ride/internal/storage"
	"github.com/example/priority-ride/internal/vendor"
)

// fakeHash implements HashStore for tests
type fakeHash struct {
	data    map[string]map[string]string
	failGet bool
}

func newFakeHash() *fakeHash { return &fakeHash{data: map[string]map[string]string{}} }

func (f *fakeHash) HSet(_ context.Context, key, field, value string) error {
	if f.data[key] == nil {
		f.data[key] = map[string]string{}
	}
	f.data[key][field] = value
	return nil
}

func (f *fakeHash) HDel(_ context.Context, key, field string) error {
	delete(f.data[key], field)
	return nil
}

func (f *fakeHash) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.failGet {
		return nil, errors.New("redis down")
	}
	out := map[string]string{}
	for k, v := range f.data[key] {
		out[k] = v
	}
	return out, nil
}

// fakeCanceller fails the first failN calls per ride id
type fakeCanceller struct {
	failN map[int64]int
	calls map[int64]int
}

func newFakeCanceller() *fakeCanceller {
	return &fakeCanceller{failN: map[int64]int{}, calls: map[int64]int{}}
}

func (f *fakeCanceller) Cancel(_ context.Context, rideID int64, _ models.Credentials) vendor.CancelResult {
	f.calls[rideID]++
	if f.calls[rideID] <= f.failN[rideID] {
		return vendor.CancelResult{Reason: "HTTP 503"}
	}
	return vendor.CancelResult{Confirmed: true}
}

type roster map[string]models.Account

func (r roster) Get(key string) (models.Account, bool) { a, ok := r[key]; return a, ok }

func unwindFailed(key string, ids ...int64) models.BookingEvent {
	rec := models.BookingRecord{AccountKey: key, Role: models.RoleFiller, RideType: models.RideTypeShuttle}
	if len(ids) > 0 {
		rec.RideID = &ids[0]
	}
	if len(ids) > 1 {
		rec.PrescheduledRideID = &ids[1]
	}
	return models.BookingEvent{Type: models.EventUnwindFailed, RunID: "r1", Record: rec, At: time.Unix(100, 0)}
}

func newTestSweeper(c Canceller) (*Sweeper, *RedisStaleSet, *[]time.Duration) {
	set := NewRedisStaleSet(newFakeHash(), "stale")
	s := New(set, c, roster{"fay": {Key: "fay", Credentials: models.Credentials{UserID: 2}}}, nil)
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }
	s.Delay = 10 * time.Millisecond
	return s, set, &slept
}

func TestCancelWithRetry_SucceedsAfterRetries(t *testing.T) {
	c := newFakeCanceller()
	c.failN[9] = 2
	var slept []time.Duration
	id, err := cancelWithRetry(context.Background(), c, models.Credentials{}, []int64{9}, 3, 10*time.Millisecond, func(d time.Duration) { slept = append(slept, d) })
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if id != 9 || c.calls[9] != 3 {
		t.Fatalf("expected 3 calls on id 9, got id=%d calls=%d", id, c.calls[9])
	}
	if len(slept) != 2 || slept[1] != 2*slept[0] {
		t.Fatalf("expected doubling backoff, got %v", slept)
	}
}

func TestCancelWithRetry_FallbackIDWins(t *testing.T) {
	c := newFakeCanceller()
	c.failN[9] = 100
	id, err := cancelWithRetry(context.Background(), c, models.Credentials{}, []int64{9, 4}, 3, time.Millisecond, func(time.Duration) {})
	if err != nil || id != 4 {
		t.Fatalf("expected fallback id 4, got id=%d err=%v", id, err)
	}
}

func TestCancelWithRetry_FailsWhenExhausted(t *testing.T) {
	c := newFakeCanceller()
	c.failN[9] = 5
	if _, err := cancelWithRetry(context.Background(), c, models.Credentials{}, []int64{9}, 3, time.Millisecond, func(time.Duration) {}); err == nil {
		t.Fatalf("expected error after retries")
	}
	if c.calls[9] != 3 {
		t.Fatalf("expected 3 calls, got %d", c.calls[9])
	}
}

func TestHandleAndSweep(t *testing.T) {
	c := newFakeCanceller()
	s, set, _ := newTestSweeper(c)
	log := storage.NewMemoryStore()
	s.RideLog = log
	ctx := context.Background()
	id := int64(42)
	_ = log.SaveRide(ctx, &models.RideLogEntry{ID: "x", AccountKey: "fay", RideID: &id, RideType: models.RideTypeShuttle})

	if err := s.Handle(ctx, unwindFailed("fay", 42, 7)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	items, err := set.List(ctx)
	if err != nil || len(items) != 1 || items[0].Field() != "fay:42" {
		t.Fatalf("expected one stale entry, got %+v err=%v", items, err)
	}

	st, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if st.Cleared != 1 || st.Failed != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if items, _ := set.List(ctx); len(items) != 0 {
		t.Fatalf("expected stale set emptied, got %+v", items)
	}
	active, _ := log.ListRides(ctx, storage.RideFilter{ActiveOnly: true})
	if len(active) != 0 {
		t.Fatalf("expected ride log marked cancelled, got %+v", active)
	}
}

func TestSweepKeepsFailuresAndCountsAttempts(t *testing.T) {
	c := newFakeCanceller()
	c.failN[42] = 100
	s, set, slept := newTestSweeper(c)
	ctx := context.Background()
	_ = s.Handle(ctx, unwindFailed("fay", 42))
	_ = s.Handle(ctx, unwindFailed("ghost", 5))

	st, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if st.Failed != 2 || st.Cleared != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected two backoffs for the known account, got %v", *slept)
	}
	items, _ := set.List(ctx)
	var fay StaleBooking
	for _, b := range items {
		if b.AccountKey == "fay" {
			fay = b
		}
	}
	if fay.Attempts != 1 || fay.LastError == "" {
		t.Fatalf("expected attempt recorded, got %+v", fay)
	}
}

func TestHandleCancelledRemoves(t *testing.T) {
	s, set, _ := newTestSweeper(newFakeCanceller())
	ctx := context.Background()
	ev := unwindFailed("fay", 42)
	_ = s.Handle(ctx, ev)
	ev.Type = models.EventCancelled
	if err := s.Handle(ctx, ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if items, _ := set.List(ctx); len(items) != 0 {
		t.Fatalf("expected entry removed, got %+v", items)
	}
}

func TestHandleRejectsEventWithoutIDs(t *testing.T) {
	s, _, _ := newTestSweeper(newFakeCanceller())
	if err := s.Handle(context.Background(), unwindFailed("fay")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSweepReportsListError(t *testing.T) {
	h := newFakeHash()
	h.failGet = true
	s := New(NewRedisStaleSet(h, "stale"), newFakeCanceller(), roster{}, nil)
	if _, err := s.Sweep(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
}
