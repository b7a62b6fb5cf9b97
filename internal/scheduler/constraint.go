package scheduler

import (
	"time"

	"github.com/astroward/nightwatch/internal/astro"
	"github.com/astroward/nightwatch/internal/horizon"
)

// Env carries the per-selection shared context so each constraint does not
// recompute it: the moon's position, the remaining dark window, and the
// session history. Built once per GetObservation call.
type Env struct {
	Site    astro.Site
	Horizon *horizon.Profile

	// Moon is the moon's equatorial position at the evaluation time.
	Moon astro.Equatorial

	// DarkRemaining is how long until the sun next rises above the
	// configured buffer angle. Zero when DarkKnown is false.
	DarkRemaining time.Duration
	DarkKnown     bool

	// NightLength is the full usable dark span the scheduler measured at
	// start of night; used to normalize duration scores.
	NightLength time.Duration

	// Observed holds the names already selected this session.
	Observed []string

	// CurrentName is the name of the active observation, exempt from the
	// AlreadyVisited veto so an in-progress target can be re-selected.
	CurrentName string
}

// Constraint scores an observation candidate at a given time. A veto is a
// hard exclusion regardless of score; otherwise the returned score is
// multiplied by Weight and accumulated. Implementations are stateless.
type Constraint interface {
	GetScore(t time.Time, o *Observation, env *Env) (veto bool, score float64)
	Weight() float64
	Name() string
}

type baseConstraint struct {
	weight float64
}

func (b baseConstraint) Weight() float64 { return b.weight }

// Altitude vetoes candidates below the obstruction-aware horizon at the
// evaluation time. It is a boolean gate: survivors all score 1.
type Altitude struct {
	baseConstraint
}

// NewAltitude returns an Altitude constraint. Weight must be >= 0.
func NewAltitude(weight float64) (*Altitude, error) {
	if weight < 0 {
		return nil, validationErrorf("weight", "must be >= 0, got %v", weight)
	}
	return &Altitude{baseConstraint{weight}}, nil
}

func (c *Altitude) Name() string { return "altitude" }

func (c *Altitude) GetScore(t time.Time, o *Observation, env *Env) (bool, float64) {
	hz := env.Site.AltAz(t, o.Field.Position)
	if hz.Altitude < env.Horizon.ElevationAt(hz.Azimuth) {
		return true, 0
	}
	return false, 1
}

// Duration vetoes candidates whose minimum campaign duration does not fit
// in the remaining dark window, and scores survivors by how much of the
// night their field stays observable.
type Duration struct {
	baseConstraint
}

// NewDuration returns a Duration constraint. Weight must be >= 0.
func NewDuration(weight float64) (*Duration, error) {
	if weight < 0 {
		return nil, validationErrorf("weight", "must be >= 0, got %v", weight)
	}
	return &Duration{baseConstraint{weight}}, nil
}

func (c *Duration) Name() string { return "duration" }

// targetScanStep trades precision for speed when scanning for the moment a
// field drops below the horizon. Ten minutes is plenty next to multi-hour
// campaigns.
const targetScanStep = 10 * time.Minute

func (c *Duration) GetScore(t time.Time, o *Observation, env *Env) (bool, float64) {
	if !env.DarkKnown {
		// A hand-built Env without a dark window gives nothing to fit
		// against. The scheduler always fills one in.
		return true, 0
	}

	window := observableWindow(t, o, env)
	if window < o.MinimumDuration() {
		return true, 0
	}

	if env.NightLength <= 0 {
		return false, 0
	}
	return false, window.Seconds() / env.NightLength.Seconds()
}

// observableWindow returns how long the field stays above the horizon,
// capped at the end of darkness.
func observableWindow(t time.Time, o *Observation, env *Env) time.Duration {
	for d := time.Duration(0); d < env.DarkRemaining; d += targetScanStep {
		hz := env.Site.AltAz(t.Add(d), o.Field.Position)
		if hz.Altitude < env.Horizon.ElevationAt(hz.Azimuth) {
			return d
		}
	}
	return env.DarkRemaining
}

// MoonAvoidance vetoes candidates closer to the moon than a minimum
// separation and scores survivors proportional to separation.
type MoonAvoidance struct {
	baseConstraint

	// MinSeparation is the hard exclusion radius in degrees.
	MinSeparation float64
}

// DefaultMoonSeparation is the exclusion radius used when none is
// configured: close enough that moonlight would be in the image.
const DefaultMoonSeparation = 15

// NewMoonAvoidance returns a MoonAvoidance constraint. Weight must be >= 0
// and minSeparation must be positive.
func NewMoonAvoidance(weight, minSeparation float64) (*MoonAvoidance, error) {
	if weight < 0 {
		return nil, validationErrorf("weight", "must be >= 0, got %v", weight)
	}
	if minSeparation <= 0 {
		return nil, validationErrorf("min_separation", "must be > 0, got %v", minSeparation)
	}
	return &MoonAvoidance{baseConstraint{weight}, minSeparation}, nil
}

func (c *MoonAvoidance) Name() string { return "moon_avoidance" }

func (c *MoonAvoidance) GetScore(t time.Time, o *Observation, env *Env) (bool, float64) {
	sep := astro.Separation(env.Moon, o.Field.Position)
	if sep < c.MinSeparation {
		return true, 0
	}
	return false, sep / 180
}

// AlreadyVisited vetoes candidates whose name appears in the session
// history, so a target that was started or finished earlier tonight cannot
// be displaced and restarted by a later equal-or-lower scoring pass. The
// active observation itself is exempt.
type AlreadyVisited struct {
	baseConstraint
}

// NewAlreadyVisited returns an AlreadyVisited constraint. Weight must
// be >= 0.
func NewAlreadyVisited(weight float64) (*AlreadyVisited, error) {
	if weight < 0 {
		return nil, validationErrorf("weight", "must be >= 0, got %v", weight)
	}
	return &AlreadyVisited{baseConstraint{weight}}, nil
}

func (c *AlreadyVisited) Name() string { return "already_visited" }

func (c *AlreadyVisited) GetScore(t time.Time, o *Observation, env *Env) (bool, float64) {
	name := o.Name()
	if name == env.CurrentName {
		return false, 0
	}
	for _, visited := range env.Observed {
		if visited == name {
			return true, 0
		}
	}
	return false, 0
}
