// Package venue keeps the registry of race circuits. Circuits load from
// an ESRI shapefile of named points and serve two queries: resolving the
// free-text track names race feeds carry, and finding the circuit
// nearest a coordinate for outreach copy.
package venue

import (
	"math"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

const earthRadiusKM = 6371.0

// Circuit is one named track with its point location.
type Circuit struct {
	Name  string
	Point *geom.Point
}

// Lat returns the circuit latitude.
func (c *Circuit) Lat() float64 { return c.Point.Y() }

// Lng returns the circuit longitude.
func (c *Circuit) Lng() float64 { return c.Point.X() }

// Registry answers name and proximity lookups over the loaded circuits.
type Registry struct {
	circuits []Circuit
	byName   map[string]int
}

// NewRegistry builds a registry from circuits directly.
func NewRegistry(circuits []Circuit) *Registry {
	reg := &Registry{
		circuits: circuits,
		byName:   make(map[string]int, len(circuits)),
	}
	for i, c := range circuits {
		key := NormalizeTrack(c.Name)
		if key == "" {
			continue
		}
		if _, ok := reg.byName[key]; !ok {
			reg.byName[key] = i
		}
	}
	return reg
}

// Len reports how many circuits are registered.
func (reg *Registry) Len() int { return len(reg.circuits) }

// Circuits returns the registered circuits in load order.
func (reg *Registry) Circuits() []Circuit { return reg.circuits }

// LoadShapefile reads a point shapefile of circuits. The name attribute
// is taken from a field called "name", or failing that the first field
// whose name contains it; non-point and nameless records are skipped.
func LoadShapefile(path string) (*Registry, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "venue: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx, err := nameField(reader.Fields())
	if err != nil {
		return nil, err
	}

	var circuits []Circuit
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		point, ok := shape.(*shp.Point)
		if !ok {
			skipped++
			continue
		}

		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		if name == "" {
			skipped++
			continue
		}

		circuits = append(circuits, Circuit{
			Name:  name,
			Point: geom.NewPointFlat(geom.XY, []float64{point.X, point.Y}).SetSRID(4326),
		})
	}

	zap.L().Info("venue: circuits loaded",
		zap.String("path", path),
		zap.Int("circuits", len(circuits)),
		zap.Int("skipped", skipped),
	)
	return NewRegistry(circuits), nil
}

func nameField(fields []shp.Field) (int, error) {
	lower := make([]string, len(fields))
	for i, f := range fields {
		lower[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}
	for i, name := range lower {
		if name == "name" {
			return i, nil
		}
	}
	for i, name := range lower {
		if strings.Contains(name, "name") {
			return i, nil
		}
	}
	return 0, eris.New("venue: shapefile has no name field")
}

// Lookup resolves a free-text track name. Exact normalized match first,
// then with layout suffixes stripped ("Brands Hatch GP" finds "Brands
// Hatch").
func (reg *Registry) Lookup(name string) (*Circuit, bool) {
	key := NormalizeTrack(name)
	if key == "" {
		return nil, false
	}
	if i, ok := reg.byName[key]; ok {
		return &reg.circuits[i], true
	}
	if i, ok := reg.byName[stripLayout(key)]; ok {
		return &reg.circuits[i], true
	}
	return nil, false
}

// Nearest returns the circuit closest to the coordinate and its
// great-circle distance in kilometres.
func (reg *Registry) Nearest(lat, lng float64) (*Circuit, float64, bool) {
	if len(reg.circuits) == 0 {
		return nil, 0, false
	}

	best := -1
	bestKM := math.MaxFloat64
	for i := range reg.circuits {
		c := &reg.circuits[i]
		km := haversineKM(lat, lng, c.Lat(), c.Lng())
		if km < bestKM {
			best, bestKM = i, km
		}
	}
	return &reg.circuits[best], bestKM, true
}

// NormalizeTrack lowercases a track name, turns punctuation into spaces
// and drops generic venue words, so "Brands Hatch Circuit" and
// "BRANDS-HATCH" normalize alike.
func NormalizeTrack(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		switch tok {
		case "circuit", "raceway", "racetrack", "autodrome", "the":
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// stripLayout removes trailing layout designators so a feed's "cadwell
// park gp" still resolves.
func stripLayout(key string) string {
	toks := strings.Fields(key)
	for len(toks) > 1 {
		switch toks[len(toks)-1] {
		case "gp", "indy", "national", "international", "full", "short", "club":
			toks = toks[:len(toks)-1]
		default:
			return strings.Join(toks, " ")
		}
	}
	return strings.Join(toks, " ")
}

// haversineKM computes the great-circle distance between two
// coordinates.
func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
