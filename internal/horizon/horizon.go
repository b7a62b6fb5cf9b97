// Package horizon models the azimuth-dependent minimum altitude below which
// a target is obstructed (trees, buildings, terrain). A profile is a series
// of (azimuth, elevation) points with linear interpolation between them.
package horizon

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Point is one obstruction sample: at Azimuth degrees the sky is blocked
// below Elevation degrees.
type Point struct {
	Azimuth   float64 `toml:"azimuth"`
	Elevation float64 `toml:"elevation"`
}

// Profile is an obstruction-aware horizon. The zero value is a flat horizon
// at DefaultMinimum degrees.
type Profile struct {
	// Minimum is the flat minimum altitude applied where no obstruction
	// points cover an azimuth.
	Minimum float64

	points []Point
}

// DefaultMinimum is the flat horizon altitude used when a profile carries
// no explicit minimum.
const DefaultMinimum = 30

// profileFile is the TOML shape of a horizon profile on disk.
type profileFile struct {
	Minimum     *float64 `toml:"minimum"`
	Obstruction []Point  `toml:"obstruction"`
}

// NewProfile builds a profile from obstruction points. Points must have
// strictly increasing azimuths in [0, 360) and elevations in [0, 90).
func NewProfile(minimum float64, points []Point) (*Profile, error) {
	for i, p := range points {
		if p.Azimuth < 0 || p.Azimuth >= 360 {
			return nil, fmt.Errorf("horizon: point %d azimuth %.1f out of range [0, 360)", i, p.Azimuth)
		}
		if p.Elevation < 0 || p.Elevation >= 90 {
			return nil, fmt.Errorf("horizon: point %d elevation %.1f out of range [0, 90)", i, p.Elevation)
		}
		if i > 0 && p.Azimuth <= points[i-1].Azimuth {
			return nil, fmt.Errorf("horizon: azimuths must be strictly increasing, point %d (%.1f) after %.1f",
				i, p.Azimuth, points[i-1].Azimuth)
		}
	}
	return &Profile{Minimum: minimum, points: points}, nil
}

// LoadProfile reads a TOML horizon profile. Validation failures are load
// errors, not dispatch-time surprises.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("horizon: read profile: %w", err)
	}

	var pf profileFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("horizon: parse profile %s: %w", path, err)
	}

	minimum := float64(DefaultMinimum)
	if pf.Minimum != nil {
		minimum = *pf.Minimum
	}
	return NewProfile(minimum, pf.Obstruction)
}

// ElevationAt returns the minimum unobstructed altitude at the given
// azimuth. Azimuths outside any obstruction segment fall back to the flat
// minimum; inside a segment the two bracketing points are interpolated
// linearly and the result is never below the flat minimum.
func (p *Profile) ElevationAt(azimuth float64) float64 {
	for i := 1; i < len(p.points); i++ {
		a, b := p.points[i-1], p.points[i]
		if azimuth < a.Azimuth || azimuth > b.Azimuth {
			continue
		}
		el := interpolate(a, b, azimuth)
		if el < p.Minimum {
			return p.Minimum
		}
		return el
	}
	return p.Minimum
}

// interpolate returns the elevation of the line a-b at the given azimuth.
// A vertical segment takes the higher of the two elevations.
func interpolate(a, b Point, azimuth float64) float64 {
	if a.Azimuth == b.Azimuth {
		if a.Elevation > b.Elevation {
			return a.Elevation
		}
		return b.Elevation
	}
	m := (b.Elevation - a.Elevation) / (b.Azimuth - a.Azimuth)
	return a.Elevation + m*(azimuth-a.Azimuth)
}
