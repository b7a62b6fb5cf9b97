// Package astro wraps the meeus ephemeris library with a site-aware API.
// It answers the handful of questions the control core needs: where are the
// sun and moon, how high is a target, and how long until sunrise. All
// positional math is delegated to meeus; nothing here implements ephemeris
// algorithms.
package astro

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
)

// Site is the geographic location observations are made from.
type Site struct {
	// Latitude in degrees, north positive.
	Latitude float64

	// Longitude in degrees, east positive.
	Longitude float64

	// Elevation above sea level in meters. Carried for FITS headers and
	// status output; the alt/az math here does not refract for it.
	Elevation float64
}

// Equatorial is an ICRS position in degrees.
type Equatorial struct {
	RA  float64
	Dec float64
}

// String renders the position as decimal degrees, dec always signed.
func (e Equatorial) String() string {
	return fmt.Sprintf("%.4f %+.4f", e.RA, e.Dec)
}

// HorizontalCoords is an alt/az position in degrees, azimuth measured
// eastward from north.
type HorizontalCoords struct {
	Altitude float64
	Azimuth  float64
}

// AltAz converts an equatorial position to horizontal coordinates for the
// site at time t.
func (s Site) AltAz(t time.Time, pos Equatorial) HorizontalCoords {
	jd := julian.TimeToJD(t.UTC())
	st := sidereal.Apparent(jd)

	A, h := coord.EqToHz(
		unit.RAFromDeg(pos.RA),
		unit.AngleFromDeg(pos.Dec),
		unit.AngleFromDeg(s.Latitude),
		unit.AngleFromDeg(-s.Longitude), // meeus wants west-positive longitude
		st,
	)

	// Meeus measures azimuth westward from south; convert to the
	// north-referenced convention used everywhere else in this codebase.
	az := math.Mod(A.Deg()+180, 360)
	if az < 0 {
		az += 360
	}
	return HorizontalCoords{Altitude: h.Deg(), Azimuth: az}
}

// SunPosition returns the sun's apparent equatorial position at t.
func SunPosition(t time.Time) Equatorial {
	jd := julian.TimeToJD(t.UTC())
	α, δ := solar.ApparentEquatorial(jd)
	return Equatorial{RA: normalizeRA(unit.Angle(α).Deg()), Dec: δ.Deg()}
}

// MoonPosition returns the moon's apparent equatorial position at t.
func MoonPosition(t time.Time) Equatorial {
	jd := julian.TimeToJD(t.UTC())
	λ, β, _ := moonposition.Position(jd)
	sε, cε := nutation.MeanObliquity(jd).Sincos()
	α, δ := coord.EclToEq(λ, β, sε, cε)
	return Equatorial{RA: normalizeRA(unit.Angle(α).Deg()), Dec: δ.Deg()}
}

// SunAltitude returns the sun's altitude in degrees for the site at t.
func (s Site) SunAltitude(t time.Time) float64 {
	return s.AltAz(t, SunPosition(t)).Altitude
}

// Separation returns the angular separation between two equatorial
// positions in degrees.
func Separation(a, b Equatorial) float64 {
	return angle.Sep(
		unit.AngleFromDeg(a.RA), unit.AngleFromDeg(a.Dec),
		unit.AngleFromDeg(b.RA), unit.AngleFromDeg(b.Dec),
	).Deg()
}

// sunScanStep is the resolution of the forward scan in TimeUntilSunAbove.
// One minute keeps the error well under the safety margins built into the
// horizon angles.
const sunScanStep = time.Minute

// TimeUntilSunAbove scans forward from t for the first moment the sun's
// altitude reaches horizonDeg, up to max. The second return is false when
// the sun does not reach the horizon within max (polar night, or a max
// shorter than the remaining night).
func (s Site) TimeUntilSunAbove(t time.Time, horizonDeg float64, max time.Duration) (time.Duration, bool) {
	for d := time.Duration(0); d <= max; d += sunScanStep {
		if s.SunAltitude(t.Add(d)) >= horizonDeg {
			return d, true
		}
	}
	return 0, false
}

func normalizeRA(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
