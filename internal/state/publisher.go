// Package state keeps the process-wide view of what every account is doing
// and pushes a fresh snapshot to subscribers after each change.
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/example/priority-ride/internal/models"
)

type Activity string

const (
	Idle          Activity = "idle"
	Searching     Activity = "searching"
	Booking       Activity = "booking"
	Cancelling    Activity = "cancelling"
	Booked        Activity = "booked"
	Error         Activity = "error"
	Orchestrating Activity = "orchestrating"
)

type Reservation struct {
	RideID    int64           `json:"ride_id"`
	RideType  models.RideType `json:"ride_type"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}

type AccountState struct {
	Key          string        `json:"key"`
	Name         string        `json:"name"`
	Activity     Activity      `json:"activity"`
	Message      string        `json:"message"`
	Reservations []Reservation `json:"reservations"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type Snapshot struct {
	TS       time.Time      `json:"ts"`
	Accounts []AccountState `json:"accounts"`
}

// Find returns the entry for key.
func (s Snapshot) Find(key string) (AccountState, bool) {
	for _, a := range s.Accounts {
		if a.Key == key {
			return a, true
		}
	}
	return AccountState{}, false
}

type subscriber struct {
	ch chan Snapshot
}

// Publisher is safe for concurrent use. Every mutation and the broadcast that
// follows it happen under one lock, so subscribers never see a half-applied
// update.
type Publisher struct {
	mu       sync.Mutex
	accounts map[string]*AccountState
	subs     map[*subscriber]struct{}
	now      func() time.Time
}

func NewPublisher() *Publisher {
	return &Publisher{
		accounts: make(map[string]*AccountState),
		subs:     make(map[*subscriber]struct{}),
		now:      time.Now,
	}
}

// Init registers known accounts. Existing runtime state is kept; names are
// refreshed.
func (p *Publisher) Init(accounts []models.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range accounts {
		st := p.getLocked(a.Key)
		if a.Name != "" {
			st.Name = a.Name
		}
	}
	p.publishLocked()
}

func (p *Publisher) SetStatus(key string, activity Activity, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.getLocked(key)
	st.Activity = activity
	st.Message = message
	st.UpdatedAt = p.now()
	p.publishLocked()
}

// AddReservation records an active ride for key, updating metadata if the
// ride is already known. The account becomes booked.
func (p *Publisher) AddReservation(key string, r Reservation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.getLocked(key)
	st.Activity = Booked
	st.UpdatedAt = p.now()
	for i := range st.Reservations {
		if st.Reservations[i].RideID == r.RideID {
			if r.RideType != "" {
				st.Reservations[i].RideType = r.RideType
			}
			if r.Source != "" {
				st.Reservations[i].Source = r.Source
			}
			p.publishLocked()
			return
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = st.UpdatedAt
	}
	st.Reservations = append(st.Reservations, r)
	p.publishLocked()
}

func (p *Publisher) RemoveReservation(key string, rideID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.getLocked(key)
	kept := st.Reservations[:0]
	for _, r := range st.Reservations {
		if r.RideID != rideID {
			kept = append(kept, r)
		}
	}
	st.Reservations = kept
	st.UpdatedAt = p.now()
	if len(st.Reservations) == 0 && (st.Activity == Booked || st.Activity == Cancelling) {
		st.Activity = Idle
		st.Message = ""
	}
	p.publishLocked()
}

func (p *Publisher) ClearReservations(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.getLocked(key)
	st.Reservations = nil
	st.Activity = Idle
	st.Message = ""
	st.UpdatedAt = p.now()
	p.publishLocked()
}

func (p *Publisher) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Subscribe returns a feed that starts with the current snapshot and then
// receives one snapshot per mutation. A subscriber whose buffer is full is
// dropped and its channel closed. The returned func unsubscribes.
func (p *Publisher) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	s := &subscriber{ch: make(chan Snapshot, buffer)}
	p.mu.Lock()
	p.subs[s] = struct{}{}
	s.ch <- p.snapshotLocked()
	p.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.subs[s]; ok {
				delete(p.subs, s)
				close(s.ch)
			}
		})
	}
}

func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Publisher) publishLocked() {
	if len(p.subs) == 0 {
		return
	}
	snap := p.snapshotLocked()
	for s := range p.subs {
		select {
		case s.ch <- snap:
		default:
			delete(p.subs, s)
			close(s.ch)
		}
	}
}

func (p *Publisher) snapshotLocked() Snapshot {
	keys := make([]string, 0, len(p.accounts))
	for k := range p.accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := Snapshot{TS: p.now(), Accounts: make([]AccountState, 0, len(keys))}
	for _, k := range keys {
		st := *p.accounts[k]
		st.Reservations = append([]Reservation(nil), st.Reservations...)
		out.Accounts = append(out.Accounts, st)
	}
	return out
}

func (p *Publisher) getLocked(key string) *AccountState {
	st, ok := p.accounts[key]
	if !ok {
		st = &AccountState{Key: key, Name: key, Activity: Idle, UpdatedAt: p.now()}
		p.accounts[key] = st
	}
	return st
}
