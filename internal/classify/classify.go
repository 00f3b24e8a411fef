// Package classify decides whether a vendor proposal is the scarce Priority
// Ride or a regular Shuttle seat.
//
// The vendor marks the provider inconsistently (a numeric supplier id, a
// "type" or "provider" string, an options id, a nested extra_details field),
// so the check scans the whole proposal tree rather than a single field.
package classify

import (
	"fmt"
	"strings"

	"github.com/example/priority-ride/internal/models"
)

// DefaultMarker is the vendor's premium partner name as it appears in
// proposals.
const DefaultMarker = "lyft"

type Classification struct {
	IsPriorityRide bool
}

// Classifier is safe for concurrent use; it holds only the marker.
type Classifier struct {
	marker string
}

func New(marker string) *Classifier {
	if strings.TrimSpace(marker) == "" {
		marker = DefaultMarker
	}
	return &Classifier{marker: strings.ToLower(marker)}
}

func (c *Classifier) Classify(p models.Proposal) Classification {
	return Classification{IsPriorityRide: ContainsMarker(p.Raw, c.marker)}
}

// Split partitions proposals into Priority Rides and Shuttle seats, keeping
// the vendor's order within each group.
func (c *Classifier) Split(proposals []models.Proposal) (priority, shuttle []models.Proposal) {
	for _, p := range proposals {
		if c.Classify(p).IsPriorityRide {
			priority = append(priority, p)
		} else {
			shuttle = append(shuttle, p)
		}
	}
	return priority, shuttle
}

// ContainsMarker walks a decoded JSON tree and reports whether any key or
// leaf contains marker, ignoring case. Non-string leaves are formatted the
// way they would appear in the serialized document.
func ContainsMarker(tree any, marker string) bool {
	marker = strings.ToLower(marker)
	if marker == "" {
		return false
	}
	return walk(tree, marker)
}

func walk(v any, marker string) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return hit(t, marker)
	case map[string]any:
		for k, child := range t {
			if hit(k, marker) || walk(child, marker) {
				return true
			}
		}
		return false
	case []any:
		for _, child := range t {
			if walk(child, marker) {
				return true
			}
		}
		return false
	case []map[string]any:
		for _, child := range t {
			if walk(child, marker) {
				return true
			}
		}
		return false
	default:
		return hit(fmt.Sprint(t), marker)
	}
}

func hit(s, marker string) bool { return strings.Contains(strings.ToLower(s), marker) }
