package models

import "time"

type LatLng struct {
	Lat float64 `json:"lat" mapstructure:"lat"`
	Lng float64 `json:"lng" mapstructure:"lng"`
}

// Location is used as both ride origin and destination. The JSON shape is the
// one the vendor expects inside booking and search payloads.
type Location struct {
	LatLng           LatLng `json:"latlng" mapstructure:"latlng"`
	GeocodedAddr     string `json:"geocoded_addr" mapstructure:"geocoded_addr"`
	FullGeocodedAddr string `json:"full_geocoded_addr" mapstructure:"full_geocoded_addr"`
}

// Label returns the short address, falling back to the full one.
func (l Location) Label() string {
	if l.GeocodedAddr != "" {
		return l.GeocodedAddr
	}
	return l.FullGeocodedAddr
}

type Route struct {
	Name        string   `json:"name"`
	Origin      Location `json:"origin"`
	Destination Location `json:"destination"`
}

type Credentials struct {
	AuthToken string `json:"-"`
	UserID    int64  `json:"user_id"`
}

type Account struct {
	Key         string      `json:"key"`
	Name        string      `json:"name"`
	Credentials Credentials `json:"-"`
}

type RideType string

const (
	RideTypePriority RideType = "priority"
	RideTypeShuttle  RideType = "shuttle"
)

// Proposal is one offer from a search. It is only valid until the next
// search for the same account.
type Proposal struct {
	UUID               string         `json:"proposal_uuid"`
	ProposalID         string         `json:"proposal_id,omitempty"`
	PrescheduledRideID int64          `json:"prescheduled_ride_id"`
	Provider           string         `json:"provider,omitempty"`
	Pickup             string         `json:"pickup,omitempty"`
	Dropoff            string         `json:"dropoff,omitempty"`
	Cost               float64        `json:"cost"`
	Raw                map[string]any `json:"raw,omitempty"`
}

type Role string

const (
	RoleTarget Role = "target"
	RoleFiller Role = "filler"
)

// BookingRecord is created once a book call succeeds. RideID is the confirmed
// id from the booking response; PrescheduledRideID is the proposal's id kept
// as a fallback for cancellation.
type BookingRecord struct {
	AccountKey         string   `json:"account_key"`
	RideID             *int64   `json:"ride_id,omitempty"`
	PrescheduledRideID *int64   `json:"prescheduled_ride_id,omitempty"`
	Role               Role     `json:"role"`
	RideType           RideType `json:"ride_type"`
}

// CancelIDs lists the ids to try, confirmed first.
func (b BookingRecord) CancelIDs() []int64 {
	ids := make([]int64, 0, 2)
	if b.RideID != nil {
		ids = append(ids, *b.RideID)
	}
	if b.PrescheduledRideID != nil && (b.RideID == nil || *b.PrescheduledRideID != *b.RideID) {
		ids = append(ids, *b.PrescheduledRideID)
	}
	return ids
}

// DisplayID is the id shown in logs and state snapshots.
func (b BookingRecord) DisplayID() int64 {
	if ids := b.CancelIDs(); len(ids) > 0 {
		return ids[0]
	}
	return 0
}

type BookingEventType string

const (
	EventBooked       BookingEventType = "booked"
	EventCancelled    BookingEventType = "cancelled"
	EventUnwindFailed BookingEventType = "unwind_failed"
)

const (
	SourceIndividual   = "individual"
	SourceOrchestrator = "orchestrator"
)

// BookingEvent is emitted by runs and individual operations so collaborators
// (ride log, kafka, sweeper) can follow reservations.
type BookingEvent struct {
	Type           BookingEventType `json:"type"`
	RunID          string           `json:"run_id,omitempty"`
	Source         string           `json:"source"`
	AccountName    string           `json:"account_name,omitempty"`
	PriorityForKey string           `json:"priority_for_key,omitempty"`
	Record         BookingRecord    `json:"record"`
	At             time.Time        `json:"at"`
}

// RideLogEntry is a durable row describing one reservation.
type RideLogEntry struct {
	ID                 string     `json:"id"`
	RunID              string     `json:"run_id,omitempty"`
	AccountKey         string     `json:"account_key"`
	AccountName        string     `json:"account_name"`
	RideID             *int64     `json:"ride_id,omitempty"`
	PrescheduledRideID *int64     `json:"prescheduled_ride_id,omitempty"`
	RideType           RideType   `json:"ride_type"`
	Source             string     `json:"source"`
	PriorityForKey     string     `json:"priority_for_key,omitempty"`
	Cancelled          bool       `json:"cancelled"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
