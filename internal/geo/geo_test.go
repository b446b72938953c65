package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/lootquest/arengine/pkg/core"
)

func withinPct(got, want, pct float64) bool {
	if want == 0 {
		return math.Abs(got) < 1e-9
	}
	return math.Abs(got-want)/math.Abs(want) <= pct/100
}

func TestProject_SamePointIsOrigin(t *testing.T) {
	ref := core.GeoCoord{Latitude: 47.6062, Longitude: -122.3321}
	off := Project(ref, ref)

	if off.East != 0 || off.North != 0 {
		t.Errorf("expected zero offset, got %+v", off)
	}
}

func TestProject_OneDegreeNorthOfEquator(t *testing.T) {
	ref := core.GeoCoord{}
	off := Project(ref, core.GeoCoord{Latitude: 1})

	if !withinPct(off.North, 111320, 1) {
		t.Errorf("expected north ~111320 within 1%%, got %f", off.North)
	}
	if math.Abs(off.East) > 1e-9 {
		t.Errorf("expected east ~0, got %f", off.East)
	}
}

func TestProject_Antisymmetric(t *testing.T) {
	a := core.GeoCoord{Latitude: 51.5007, Longitude: -0.1246}
	b := core.GeoCoord{Latitude: 51.5010, Longitude: -0.1240}

	ab := Project(a, b)
	ba := Project(b, a).Neg()

	if math.Abs(ab.East-ba.East) > 0.01 {
		t.Errorf("east not antisymmetric: %f vs %f", ab.East, ba.East)
	}
	if math.Abs(ab.North-ba.North) > 0.01 {
		t.Errorf("north not antisymmetric: %f vs %f", ab.North, ba.North)
	}
}

func TestProject_LongitudeShrinksWithLatitude(t *testing.T) {
	eq := Project(core.GeoCoord{}, core.GeoCoord{Longitude: 0.001})
	north := Project(core.GeoCoord{Latitude: 60}, core.GeoCoord{Latitude: 60, Longitude: 0.001})

	if !withinPct(north.East, eq.East*0.5, 1) {
		t.Errorf("expected east at 60N to be about half the equator value, got %f vs %f", north.East, eq.East)
	}
}

func TestMercator_AgreesWithEquirectangularAtShortRange(t *testing.T) {
	ref := core.GeoCoord{Latitude: 45, Longitude: 7}
	target := core.GeoCoord{Latitude: 45.0009, Longitude: 7.0012}

	eq := Equirectangular{}.Project(ref, target)
	me := Mercator{}.Project(ref, target)

	if !withinPct(me.East, eq.East, 1) {
		t.Errorf("east mismatch: mercator %f equirect %f", me.East, eq.East)
	}
	if !withinPct(me.North, eq.North, 1) {
		t.Errorf("north mismatch: mercator %f equirect %f", me.North, eq.North)
	}
}

func TestNewProjector(t *testing.T) {
	p, err := NewProjector("mercator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(Mercator); !ok {
		t.Errorf("expected Mercator, got %T", p)
	}

	p, err = NewProjector("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(Equirectangular); !ok {
		t.Errorf("expected Equirectangular, got %T", p)
	}

	if _, err := NewProjector("utm"); err == nil {
		t.Error("expected error for unknown projection")
	}
}

func TestToLocal_NorthIsNegativeZ(t *testing.T) {
	v := ToLocal(core.LocalOffset{East: 3, North: 4}, -0.5)

	if v.X != 3 || v.Y != -0.5 || v.Z != -4 {
		t.Errorf("unexpected local vector %+v", v)
	}
}

func TestWithinAccurateRange(t *testing.T) {
	if !WithinAccurateRange(core.LocalOffset{East: 300, North: 300}) {
		t.Error("expected 424m to be within range")
	}
	if WithinAccurateRange(core.LocalOffset{East: 400, North: 400}) {
		t.Error("expected 565m to be outside range")
	}
}

func TestCoordFromString_Valid(t *testing.T) {
	c, err := CoordFromString("-122.3321, 47.6062")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Longitude != -122.3321 {
		t.Errorf("expected longitude=-122.3321, got %f", c.Longitude)
	}
	if c.Latitude != 47.6062 {
		t.Errorf("expected latitude=47.6062, got %f", c.Latitude)
	}
}

func TestCoordFromString_Invalid(t *testing.T) {
	inputs := []string{"", "100.5", "abc,1", "1,xyz", "10,95", "200,10"}
	for _, in := range inputs {
		_, err := CoordFromString(in)
		if err == nil {
			t.Errorf("expected error for %q", in)
			continue
		}
		if !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("expected ErrInvalidCoordinates for %q, got %v", in, err)
		}
	}
}

func TestPointFromCoord_RoundTrip(t *testing.T) {
	in := core.GeoCoord{Latitude: 12.5, Longitude: -8.25}
	out, ok := CoordFromPoint(PointFromCoord(in))
	if !ok {
		t.Fatal("expected non-empty point")
	}
	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}
