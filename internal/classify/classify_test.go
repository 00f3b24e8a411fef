package classify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/priority-ride/internal/models"
)

func proposalFromJSON(t *testing.T, doc string) models.Proposal {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	return models.Proposal{Raw: raw}
}

func TestClassifyDetectsMarkerAnywhere(t *testing.T) {
	c := New("")
	cases := map[string]string{
		"top level type":     `{"type":"lyft","proposal_uuid":"a"}`,
		"options id":         `{"proposal_options_id":"THIRD_PARTY_LYFT_1"}`,
		"deeply nested":      `{"ride_info":{"legs":[{"x":{"extra_details":{"external_provider_type":"Lyft"}}}]}}`,
		"inside array value": `{"tags":["pool","LYFT-partner"]}`,
		"map key":            `{"ride_info":{"lyft_details":{}}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, c.Classify(proposalFromJSON(t, doc)).IsPriorityRide)
		})
	}
}

func TestClassifyShuttle(t *testing.T) {
	c := New("lyft")
	p := proposalFromJSON(t, `{"proposal_uuid":"u1","ride_supplier":0,"ride_info":{"ride_cost":0,"pickup":{"location":{"description":"I-House"}}}}`)
	assert.False(t, c.Classify(p).IsPriorityRide)
	assert.False(t, c.Classify(models.Proposal{}).IsPriorityRide)
}

func TestCustomMarkerScansNumbers(t *testing.T) {
	assert.True(t, ContainsMarker(map[string]any{"ride_supplier": float64(17)}, "17"))
	assert.False(t, ContainsMarker(map[string]any{"ride_supplier": float64(1)}, ""))
}

func TestSplitKeepsOrder(t *testing.T) {
	c := New("lyft")
	ps := []models.Proposal{
		{UUID: "s1", Raw: map[string]any{"type": "pool"}},
		{UUID: "p1", Raw: map[string]any{"provider": "lyft"}},
		{UUID: "s2", Raw: map[string]any{"type": "pool"}},
	}
	priority, shuttle := c.Split(ps)
	require.Len(t, priority, 1)
	assert.Equal(t, "p1", priority[0].UUID)
	require.Len(t, shuttle, 2)
	assert.Equal(t, "s1", shuttle[0].UUID)
	assert.Equal(t, "s2", shuttle[1].UUID)
}
