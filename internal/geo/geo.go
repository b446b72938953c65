package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lootquest/arengine/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// LOCAL PROJECTION
// Loot positions are projected onto a flat east/north plane tangent at the session
// reference point. The equirectangular approximation below is only accurate for short
// ranges; MaxAccurateRange is the bound we test against, beyond it error grows with the
// square of the distance and with latitude.

// MaxAccurateRange is the distance in meters within which projected offsets stay under
// roughly 0.1% error at mid latitudes.
const MaxAccurateRange = 500.0

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Projector converts a target coordinate to a metric offset from a reference.
type Projector interface {
	Project(reference, target core.GeoCoord) core.LocalOffset
}

// Equirectangular uses latitude-dependent meters-per-degree series for both axes.
type Equirectangular struct{}

// MetersPerDegree returns the length of one degree of latitude and longitude at lat degrees.
func MetersPerDegree(lat float64) (latMeters, lonMeters float64) {
	phi := lat * math.Pi / 180
	latMeters = 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi)
	lonMeters = 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi)
	return latMeters, lonMeters
}

func (Equirectangular) Project(reference, target core.GeoCoord) core.LocalOffset {
	latM, lonM := MetersPerDegree(reference.Latitude)
	return core.LocalOffset{
		East:  (target.Longitude - reference.Longitude) * lonM,
		North: (target.Latitude - reference.Latitude) * latM,
	}
}

// Mercator projects through EPSG:3857 and rescales by the reference latitude's
// scale factor. Used to cross-check the equirectangular series.
type Mercator struct{}

func (Mercator) Project(reference, target core.GeoCoord) core.LocalOffset {
	f := wgs84.EPSG().Transform(4326, 3857)
	rx, ry, _ := f(reference.Longitude, reference.Latitude, 0)
	tx, ty, _ := f(target.Longitude, target.Latitude, 0)
	k := math.Cos(reference.Latitude * math.Pi / 180)
	return core.LocalOffset{
		East:  (tx - rx) * k,
		North: (ty - ry) * k,
	}
}

// Project converts target to an offset from reference with the equirectangular series.
func Project(reference, target core.GeoCoord) core.LocalOffset {
	return Equirectangular{}.Project(reference, target)
}

// NewProjector returns the projector registered under name.
func NewProjector(name string) (Projector, error) {
	switch strings.ToLower(name) {
	case "", "equirect", "equirectangular":
		return Equirectangular{}, nil
	case "mercator", "3857":
		return Mercator{}, nil
	}
	return nil, fmt.Errorf("unknown projection %q", name)
}

// ToLocal maps an offset onto the engine frame: east to +X, north to -Z, fixed height.
func ToLocal(offset core.LocalOffset, elevation float64) core.Vec3 {
	return core.Vec3{X: offset.East, Y: elevation, Z: -offset.North}
}

// Range is the horizontal length of an offset in meters.
func Range(offset core.LocalOffset) float64 {
	return math.Hypot(offset.East, offset.North)
}

// WithinAccurateRange reports whether an offset is inside MaxAccurateRange.
func WithinAccurateRange(offset core.LocalOffset) bool {
	return Range(offset) <= MaxAccurateRange
}

// Validate checks latitude and longitude bounds.
func Validate(c core.GeoCoord) error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		c.Latitude < -90 || c.Latitude > 90 ||
		c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: lat=%f lng=%f", ErrInvalidCoordinates, c.Latitude, c.Longitude)
	}
	return nil
}

// PointFromString parses "long,lat" into a 2D point, mirroring the hunt API order.
func PointFromString(coords string) (geom.Point, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: long, Y: lat},
		Type: geom.DimXY,
	}), nil
}

// CoordFromString parses "long,lat" into a validated GeoCoord.
func CoordFromString(coords string) (core.GeoCoord, error) {
	p, err := PointFromString(coords)
	if err != nil {
		return core.GeoCoord{}, err
	}
	c, ok := CoordFromPoint(p)
	if !ok {
		return core.GeoCoord{}, ErrInvalidCoordinates
	}
	if err := Validate(c); err != nil {
		return core.GeoCoord{}, err
	}
	return c, nil
}

// CoordFromPoint reads a lon/lat point. Empty points report false.
func CoordFromPoint(p geom.Point) (core.GeoCoord, bool) {
	xy, ok := p.XY()
	if !ok {
		return core.GeoCoord{}, false
	}
	return core.GeoCoord{Latitude: xy.Y, Longitude: xy.X}, true
}

// PointFromCoord builds a lon/lat point.
func PointFromCoord(c core.GeoCoord) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: c.Longitude, Y: c.Latitude},
		Type: geom.DimXY,
	})
}
