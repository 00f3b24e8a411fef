package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/priority-ride/internal/models"
)

func TestReservationLifecycle(t *testing.T) {
	p := NewPublisher()
	p.Init([]models.Account{{Key: "b", Name: "Bea"}, {Key: "a", Name: "Al"}})

	snap := p.Snapshot()
	require.Len(t, snap.Accounts, 2)
	assert.Equal(t, "a", snap.Accounts[0].Key)
	assert.Equal(t, Idle, snap.Accounts[0].Activity)

	p.AddReservation("a", Reservation{RideID: 1, RideType: models.RideTypeShuttle, Source: models.SourceOrchestrator})
	p.AddReservation("a", Reservation{RideID: 1, RideType: models.RideTypePriority})
	st, ok := p.Snapshot().Find("a")
	require.True(t, ok)
	assert.Equal(t, Booked, st.Activity)
	require.Len(t, st.Reservations, 1)
	assert.Equal(t, models.RideTypePriority, st.Reservations[0].RideType)
	assert.Equal(t, models.SourceOrchestrator, st.Reservations[0].Source)

	p.SetStatus("a", Cancelling, "cancelling ride 1")
	p.RemoveReservation("a", 1)
	st, _ = p.Snapshot().Find("a")
	assert.Equal(t, Idle, st.Activity)
	assert.Empty(t, st.Message)
	assert.Empty(t, st.Reservations)

	p.AddReservation("b", Reservation{RideID: 2})
	p.ClearReservations("b")
	st, _ = p.Snapshot().Find("b")
	assert.Equal(t, Idle, st.Activity)
	assert.Equal(t, "Bea", st.Name)
}

func TestSnapshotIsACopy(t *testing.T) {
	p := NewPublisher()
	p.AddReservation("a", Reservation{RideID: 1})
	snap := p.Snapshot()
	snap.Accounts[0].Reservations[0].RideID = 99
	st, _ := p.Snapshot().Find("a")
	assert.Equal(t, int64(1), st.Reservations[0].RideID)
}

func TestSubscribeReceivesEveryMutation(t *testing.T) {
	p := NewPublisher()
	feed, cancel := p.Subscribe(8)
	defer cancel()

	first := <-feed
	assert.Empty(t, first.Accounts)

	p.SetStatus("a", Searching, "")
	p.SetStatus("a", Booking, "")
	assert.Equal(t, Searching, (<-feed).Accounts[0].Activity)
	assert.Equal(t, Booking, (<-feed).Accounts[0].Activity)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	p := NewPublisher()
	slow, _ := p.Subscribe(1)
	fast, cancelFast := p.Subscribe(16)
	defer cancelFast()

	for i := 0; i < 5; i++ {
		p.SetStatus("a", Searching, "")
	}
	assert.Equal(t, 1, p.Subscribers())

	// slow got its initial snapshot, then was closed
	<-slow
	_, open := <-slow
	assert.False(t, open)

	n := 0
	for len(fast) > 0 {
		<-fast
		n++
	}
	assert.Equal(t, 6, n)
}

func TestUnsubscribeTwice(t *testing.T) {
	p := NewPublisher()
	_, cancel := p.Subscribe(1)
	cancel()
	cancel()
	assert.Equal(t, 0, p.Subscribers())
}

func TestConcurrentMutations(t *testing.T) {
	p := NewPublisher()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.AddReservation("a", Reservation{RideID: int64(i)})
			_ = p.Snapshot()
		}(i)
	}
	wg.Wait()
	st, _ := p.Snapshot().Find("a")
	assert.Len(t, st.Reservations, 20)
}
