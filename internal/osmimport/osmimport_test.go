package osmimport

import (
	"testing"

	"github.com/paulmach/osm"
)

func tags(kv ...string) osm.Tags {
	var t osm.Tags
	for i := 0; i+1 < len(kv); i += 2 {
		t = append(t, osm.Tag{Key: kv[i], Value: kv[i+1]})
	}
	return t
}

func TestIsCarAccessible(t *testing.T) {
	cases := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{"residential road", tags("highway", "residential"), true},
		{"footway excluded", tags("highway", "footway"), false},
		{"private access excluded", tags("highway", "residential", "access", "private"), false},
		{"no motor vehicle excluded", tags("highway", "residential", "motor_vehicle", "no"), false},
		{"area excluded", tags("highway", "residential", "area", "yes"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isCarAccessible(c.tags); got != c.want {
				t.Errorf("isCarAccessible(%v) = %v, want %v", c.tags, got, c.want)
			}
		})
	}
}

func TestDirectionFlags(t *testing.T) {
	cases := []struct {
		name         string
		tags         osm.Tags
		fwd, bwd     bool
	}{
		{"two-way default", tags("highway", "residential"), true, true},
		{"motorway implies oneway", tags("highway", "motorway"), true, false},
		{"explicit oneway yes", tags("highway", "residential", "oneway", "yes"), true, false},
		{"explicit oneway reverse", tags("highway", "residential", "oneway", "-1"), false, true},
		{"roundabout implies oneway", tags("highway", "residential", "junction", "roundabout"), true, false},
		{"reversible is neither", tags("highway", "residential", "oneway", "reversible"), false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fwd, bwd := directionFlags(c.tags)
			if fwd != c.fwd || bwd != c.bwd {
				t.Errorf("directionFlags = (%v,%v), want (%v,%v)", fwd, bwd, c.fwd, c.bwd)
			}
		})
	}
}

func TestSpeedForPrefersMaxspeedTag(t *testing.T) {
	got := speedFor(tags("highway", "residential", "maxspeed", "50"))
	want := 50.0 * 1000 / 3600
	if got != want {
		t.Errorf("speedFor = %f, want %f", got, want)
	}
}

func TestSpeedForFallsBackToHighwayDefault(t *testing.T) {
	got := speedFor(tags("highway", "motorway"))
	if got != defaultSpeedMPS["motorway"] {
		t.Errorf("speedFor = %f, want %f", got, defaultSpeedMPS["motorway"])
	}
}

func TestParseMaxSpeedHandlesMph(t *testing.T) {
	mps, ok := parseMaxSpeed("30 mph")
	if !ok {
		t.Fatal("expected parseMaxSpeed to succeed")
	}
	want := 30 * 1.60934 * 1000 / 3600
	if diff := mps - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("parseMaxSpeed(30 mph) = %f, want %f", mps, want)
	}
}

func TestParseMaxSpeedHandlesKmh(t *testing.T) {
	mps, ok := parseMaxSpeed("60 km/h")
	if !ok {
		t.Fatal("expected parseMaxSpeed to succeed")
	}
	want := 60.0 * 1000 / 3600
	if mps != want {
		t.Errorf("parseMaxSpeed(60 km/h) = %f, want %f", mps, want)
	}
}

func TestParseMaxSpeedRejectsGarbage(t *testing.T) {
	if _, ok := parseMaxSpeed("walk"); ok {
		t.Error("expected parseMaxSpeed to reject a non-numeric value")
	}
}

func TestBBoxContains(t *testing.T) {
	b := BBox{MinLat: 1, MaxLat: 2, MinLon: 3, MaxLon: 4}
	if !b.contains(1.5, 3.5) {
		t.Error("expected point inside bbox to be contained")
	}
	if b.contains(0, 0) {
		t.Error("expected point outside bbox to not be contained")
	}
}
