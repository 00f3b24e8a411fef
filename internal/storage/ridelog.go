package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/priority-ride/internal/models"
)

var ErrNotFound = errors.New("not found")

// RideLog defines persistence for reservations and run transcripts.
type RideLog interface {
	SaveRide(ctx context.Context, e *models.RideLogEntry) error
	// MarkCancelled flags the entries for accountKey whose confirmed or
	// prescheduled id equals rideID. ErrNotFound if none matched.
	MarkCancelled(ctx context.Context, accountKey string, rideID int64, at time.Time) error
	ListRides(ctx context.Context, f RideFilter) ([]models.RideLogEntry, error)
	AppendRunLine(ctx context.Context, runID, line string) error
	RunLines(ctx context.Context, runID string) ([]string, error)
}

type RideFilter struct {
	AccountKey string
	ActiveOnly bool
	Limit      int
}

func (f RideFilter) match(e *models.RideLogEntry) bool {
	if f.AccountKey != "" && e.AccountKey != f.AccountKey {
		return false
	}
	if f.ActiveOnly && e.Cancelled {
		return false
	}
	return true
}

func matchesRide(e *models.RideLogEntry, rideID int64) bool {
	return (e.RideID != nil && *e.RideID == rideID) || (e.PrescheduledRideID != nil && *e.PrescheduledRideID == rideID)
}

type MemoryStore struct {
	mu    sync.RWMutex
	rides []*models.RideLogEntry
	runs  map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]string)}
}

func (m *MemoryStore) SaveRide(_ context.Context, e *models.RideLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.rides = append(m.rides, &cp)
	return nil
}

func (m *MemoryStore) MarkCancelled(_ context.Context, accountKey string, rideID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, e := range m.rides {
		if e.AccountKey != accountKey || e.Cancelled || !matchesRide(e, rideID) {
			continue
		}
		t := at
		e.Cancelled = true
		e.CancelledAt = &t
		found = true
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// ListRides returns newest first.
func (m *MemoryStore) ListRides(_ context.Context, f RideFilter) ([]models.RideLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RideLogEntry, 0, len(m.rides))
	for _, e := range m.rides {
		if f.match(e) {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendRunLine(_ context.Context, runID, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = append(m.runs[runID], line)
	return nil
}

func (m *MemoryStore) RunLines(_ context.Context, runID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lines, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), lines...), nil
}
