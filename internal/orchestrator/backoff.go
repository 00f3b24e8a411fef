package orchestrator

import (
	"strings"
	"time"
)

// Policy holds the retry knobs for filler bookings and cleanup passes.
// Attempts count every call, including the first.
type Policy struct {
	BookAttempts    int
	BookBase        time.Duration
	BookMax         time.Duration
	CleanupAttempts int
	CleanupBase     time.Duration
	CleanupMax      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BookAttempts:    3,
		BookBase:        2 * time.Second,
		BookMax:         5 * time.Second,
		CleanupAttempts: 3,
		CleanupBase:     2 * time.Second,
		CleanupMax:      5 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.BookAttempts <= 0 {
		p.BookAttempts = def.BookAttempts
	}
	if p.BookBase <= 0 {
		p.BookBase = def.BookBase
	}
	if p.BookMax <= 0 {
		p.BookMax = def.BookMax
	}
	if p.CleanupAttempts <= 0 {
		p.CleanupAttempts = def.CleanupAttempts
	}
	if p.CleanupBase <= 0 {
		p.CleanupBase = def.CleanupBase
	}
	if p.CleanupMax <= 0 {
		p.CleanupMax = def.CleanupMax
	}
	return p
}

// BookDelay is the wait after the given failed booking attempt (1-based).
func (p Policy) BookDelay(attempt int) time.Duration { return Delay(attempt, p.BookBase, p.BookMax) }

// CleanupDelay is the wait after the given incomplete cleanup pass (1-based).
func (p Policy) CleanupDelay(attempt int) time.Duration {
	return Delay(attempt, p.CleanupBase, p.CleanupMax)
}

// Delay grows linearly with attempt and is capped at max.
func Delay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if d > max {
		return max
	}
	return d
}

// The vendor reports exhausted Shuttle capacity only through English prose.
// Matching on it breaks if the wording changes.
var retryablePhrases = []string{"high demand", "seats are filled"}

// IsRetryable reports whether a booking refusal means capacity is momentarily
// exhausted.
func IsRetryable(message string) bool {
	m := strings.ToLower(message)
	for _, p := range retryablePhrases {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}
