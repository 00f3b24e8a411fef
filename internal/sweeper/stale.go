package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/priority-ride/internal/models"
)

// StaleBooking is a filler reservation a run gave up on cancelling.
type StaleBooking struct {
	AccountKey  string    `json:"account_key"`
	AccountName string    `json:"account_name,omitempty"`
	RideIDs     []int64   `json:"ride_ids"`
	RunID       string    `json:"run_id,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
}

// Field is the hash field identifying the booking.
func (s StaleBooking) Field() string {
	id := int64(0)
	if len(s.RideIDs) > 0 {
		id = s.RideIDs[0]
	}
	return fmt.Sprintf("%s:%d", s.AccountKey, id)
}

func FromRecord(ev models.BookingEvent) StaleBooking {
	return StaleBooking{
		AccountKey:  ev.Record.AccountKey,
		AccountName: ev.AccountName,
		RideIDs:     ev.Record.CancelIDs(),
		RunID:       ev.RunID,
		FirstSeen:   ev.At,
	}
}

// HashStore defines the small subset of redis operations we need for tests and production.
type HashStore interface {
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key, field string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

type redisAdapter struct{ c *redis.Client }

func NewRedisAdapter(c *redis.Client) HashStore { return &redisAdapter{c: c} }

func (r *redisAdapter) HSet(ctx context.Context, key, field, value string) error {
	return r.c.HSet(ctx, key, field, value).Err()
}

func (r *redisAdapter) HDel(ctx context.Context, key, field string) error {
	return r.c.HDel(ctx, key, field).Err()
}

func (r *redisAdapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.c.HGetAll(ctx, key).Result()
}

// RedisStaleSet keeps stale bookings as JSON values in one redis hash.
type RedisStaleSet struct {
	h   HashStore
	key string
}

func NewRedisStaleSet(h HashStore, key string) *RedisStaleSet {
	return &RedisStaleSet{h: h, key: key}
}

func (s *RedisStaleSet) Put(ctx context.Context, b StaleBooking) error {
	v, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.h.HSet(ctx, s.key, b.Field(), string(v))
}

func (s *RedisStaleSet) Remove(ctx context.Context, field string) error {
	return s.h.HDel(ctx, s.key, field)
}

// List returns every stale booking, oldest first. Undecodable values are
// skipped and reported in the error.
func (s *RedisStaleSet) List(ctx context.Context) ([]StaleBooking, error) {
	all, err := s.h.HGetAll(ctx, s.key)
	if err != nil {
		return nil, err
	}
	out := make([]StaleBooking, 0, len(all))
	var bad []string
	for field, v := range all {
		var b StaleBooking
		if err := json.Unmarshal([]byte(v), &b); err != nil {
			bad = append(bad, field)
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].Field() < out[j].Field()
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	if len(bad) > 0 {
		sort.Strings(bad)
		return out, fmt.Errorf("undecodable stale entries: %v", bad)
	}
	return out, nil
}
