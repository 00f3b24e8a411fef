// Package routes holds the named origin/destination pairs a run can target.
package routes

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/example/priority-ride/internal/models"
)

const DefaultRouteName = "i_house_to_cathey"

var ErrUnknownRoute = errors.New("unknown route")

// Catalog is immutable once built.
type Catalog struct {
	order       []string
	byName      map[string]models.Route
	defaultName string
}

// Summary is the listing shape served to clients.
type Summary struct {
	Name           string  `json:"name"`
	Origin         string  `json:"origin"`
	Destination    string  `json:"destination"`
	DistanceMeters float64 `json:"distance_m"`
	Default        bool    `json:"default"`
}

func New(defaultName string, rs ...models.Route) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]models.Route, len(rs))}
	for _, r := range rs {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return nil, errors.New("route name is empty")
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate route %q", r.Name)
		}
		c.byName[r.Name] = r
		c.order = append(c.order, r.Name)
	}
	if len(c.order) == 0 {
		return nil, errors.New("no routes configured")
	}
	if defaultName == "" {
		defaultName = c.order[0]
	}
	if _, ok := c.byName[defaultName]; !ok {
		return nil, fmt.Errorf("default route %q: %w", defaultName, ErrUnknownRoute)
	}
	c.defaultName = defaultName
	return c, nil
}

// Default returns the built-in campus catalog.
func Default() *Catalog {
	c, err := New(DefaultRouteName, builtin...)
	if err != nil {
		panic(err)
	}
	return c
}

type fileRoute struct {
	Origin      models.Location `mapstructure:"origin"`
	Destination models.Location `mapstructure:"destination"`
}

// LoadFile reads a catalog from a yaml, toml or json file:
//
//	default: i_house_to_cathey
//	routes:
//	  i_house_to_cathey:
//	    origin: {latlng: {lat: 41.78, lng: -87.59}, geocoded_addr: I-House.}
//	    destination: ...
func LoadFile(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var raw map[string]fileRoute
	if err := v.UnmarshalKey("routes", &raw); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	rs := make([]models.Route, 0, len(names))
	for _, name := range names {
		rs = append(rs, models.Route{Name: name, Origin: raw[name].Origin, Destination: raw[name].Destination})
	}
	return New(strings.ToLower(v.GetString("default")), rs...)
}

func (c *Catalog) DefaultName() string { return c.defaultName }

func (c *Catalog) List() []models.Route {
	out := make([]models.Route, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

func (c *Catalog) Get(name string) (models.Route, bool) {
	r, ok := c.byName[name]
	return r, ok
}

// Lookup resolves name, with an empty name meaning the default route.
func (c *Catalog) Lookup(name string) (models.Route, error) {
	if name == "" {
		name = c.defaultName
	}
	r, ok := c.byName[name]
	if !ok {
		return models.Route{}, fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return r, nil
}

func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(c.order))
	for _, r := range c.List() {
		out = append(out, Summary{
			Name:           r.Name,
			Origin:         r.Origin.Label(),
			Destination:    r.Destination.Label(),
			DistanceMeters: math.Round(Distance(r)),
			Default:        r.Name == c.defaultName,
		})
	}
	return out
}

// Distance is the great-circle distance of a route in meters.
func Distance(r models.Route) float64 {
	o, d := r.Origin.LatLng, r.Destination.LatLng
	return Haversine(o.Lat, o.Lng, d.Lat, d.Lng)
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
