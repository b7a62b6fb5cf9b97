package hardware

import (
	"fmt"
	"time"
)

// Cardinal directions for guide pulses.
const (
	DirNorth = "north"
	DirSouth = "south"
	DirEast  = "east"
	DirWest  = "west"
)

// siderealRate is the sky's drift rate in arcseconds per second.
const siderealRate = 360.0 * 3600.0 / 86164.0

// DefaultGuideRate is the guide speed as a fraction of sidereal.
const DefaultGuideRate = 0.9

// Offset is a measured pointing error in arcseconds per equatorial axis.
type Offset struct {
	RA  float64
	Dec float64
}

// Thresholds bound a single guide pulse. Corrections shorter than Min are
// dropped as noise; corrections longer than Max are clamped so one bad
// plate solve cannot run an axis away.
type Thresholds struct {
	Min time.Duration
	Max time.Duration
}

// DefaultThresholds matches the stock pulse bounds.
var DefaultThresholds = Thresholds{
	Min: 100 * time.Millisecond,
	Max: 99999 * time.Millisecond,
}

// AxisCorrection is the guide pulse for one axis. A zero Duration means no
// correction is needed on that axis.
type AxisCorrection struct {
	Offset    float64 // arcseconds
	Duration  time.Duration
	Direction string
}

// TrackingCorrection is a pair of guide pulses derived from one offset
// measurement.
type TrackingCorrection struct {
	RA  AxisCorrection
	Dec AxisCorrection
}

func (c TrackingCorrection) String() string {
	return fmt.Sprintf("ra %v %s, dec %v %s",
		c.RA.Duration, c.RA.Direction, c.Dec.Duration, c.Dec.Direction)
}

// trackingCorrection converts an arcsecond offset into per-axis pulse
// durations at the given guide rate. The RA direction follows the sign of
// the offset. The Dec direction flips once the pointing hour angle passes
// the meridian, because the camera orientation relative to the sky flips
// with the pier side.
func trackingCorrection(offset Offset, pointingHA, guideRate float64, th Thresholds) TrackingCorrection {
	if th == (Thresholds{}) {
		th = DefaultThresholds
	}
	if guideRate == 0 {
		guideRate = DefaultGuideRate
	}

	raDir := DirWest
	if offset.RA < 0 {
		raDir = DirEast
	}

	decDir := DirNorth
	if offset.Dec > 0 {
		decDir = DirSouth
	}
	if pointingHA > 12 {
		if decDir == DirNorth {
			decDir = DirSouth
		} else {
			decDir = DirNorth
		}
	}

	return TrackingCorrection{
		RA:  AxisCorrection{Offset: offset.RA, Duration: pulseDuration(offset.RA, guideRate, th), Direction: raDir},
		Dec: AxisCorrection{Offset: offset.Dec, Duration: pulseDuration(offset.Dec, guideRate, th), Direction: decDir},
	}
}

// pulseDuration converts an arcsecond offset to guide-pulse time, applying
// the noise floor and the clamp.
func pulseDuration(arcsec, guideRate float64, th Thresholds) time.Duration {
	if arcsec < 0 {
		arcsec = -arcsec
	}
	seconds := arcsec / (siderealRate * guideRate)
	d := time.Duration(seconds * float64(time.Second))
	if d < th.Min {
		return 0
	}
	if d > th.Max {
		return th.Max
	}
	return d
}
