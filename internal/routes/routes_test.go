package routes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/priority-ride/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	assert.Equal(t, DefaultRouteName, c.DefaultName())
	assert.Len(t, c.List(), 3)

	r, err := c.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "I-House.", r.Origin.Label())

	// I-House to Cathey is a bit under a kilometre
	d := Distance(r)
	assert.InDelta(t, 900, d, 150)

	_, err = c.Lookup("nowhere")
	assert.True(t, errors.Is(err, ErrUnknownRoute))
}

func TestNewRejectsBadCatalogs(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("", models.Route{Name: "a"}, models.Route{Name: "a"})
	assert.Error(t, err)

	_, err = New("b", models.Route{Name: "a"})
	assert.True(t, errors.Is(err, ErrUnknownRoute))
}

func TestSummariesMarkDefault(t *testing.T) {
	s := Default().Summaries()
	require.Len(t, s, 3)
	assert.True(t, s[0].Default)
	assert.False(t, s[1].Default)
	assert.Equal(t, "<short address>", s[1].Destination)
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	body := `default: library
routes:
  library:
    origin:
      latlng: {lat: 41.79, lng: -87.60}
      geocoded_addr: Dorm
      full_geocoded_addr: Dorm Hall
    destination:
      latlng: {lat: 41.7925, lng: -87.6}
      geocoded_addr: Library
  gym:
    origin:
      latlng: {lat: 41.78, lng: -87.59}
    destination:
      latlng: {lat: 41.78, lng: -87.58}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "library", c.DefaultName())
	assert.Equal(t, []string{"gym", "library"}, []string{c.List()[0].Name, c.List()[1].Name})

	r, ok := c.Get("library")
	require.True(t, ok)
	assert.Equal(t, "Library", r.Destination.Label())
	assert.Equal(t, 41.7925, r.Destination.LatLng.Lat)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
