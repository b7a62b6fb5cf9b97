package scheduler

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/astroward/nightwatch/internal/astro"
	"github.com/astroward/nightwatch/internal/horizon"
)

// Options configures a Scheduler.
type Options struct {
	Site    astro.Site
	Horizon *horizon.Profile

	// Constraints are evaluated in order for every candidate.
	Constraints []Constraint

	// FieldsFile is the YAML catalog path. Empty means the catalog is
	// populated only through AddObservation.
	FieldsFile string

	// AlwaysCheckFields re-reads the catalog before every selection even
	// without an explicit request or a watcher signal.
	AlwaysCheckFields bool

	// SunHorizon is the sun-altitude buffer in degrees defining the end of
	// usable darkness, e.g. -18 for astronomical twilight.
	SunHorizon float64

	// MaxNight caps the forward scan for sunrise.
	MaxNight time.Duration

	Logger *slog.Logger
}

// observedEntry pairs a selection timestamp with the observation chosen at
// that moment; the slice keeps insertion order.
type observedEntry struct {
	SeqTime     time.Time
	Observation *Observation
}

// Scheduler holds the observation catalog and selection history and picks
// the next target. All methods are called from the single control
// goroutine; only the dirty flag is touched from elsewhere.
type Scheduler struct {
	site        astro.Site
	horizon     *horizon.Profile
	constraints []Constraint
	fieldsFile  string
	alwaysCheck bool
	sunHorizon  float64
	maxNight    time.Duration
	log         *slog.Logger

	observations map[string]*Observation
	observedList []observedEntry
	current      *Observation

	dirty atomic.Bool
}

// New builds a Scheduler and loads the fields file if one is configured.
func New(opts Options) (*Scheduler, error) {
	if opts.Horizon == nil {
		profile, err := horizon.NewProfile(horizon.DefaultMinimum, nil)
		if err != nil {
			return nil, err
		}
		opts.Horizon = profile
	}
	if opts.SunHorizon == 0 {
		opts.SunHorizon = -18
	}
	if opts.MaxNight == 0 {
		opts.MaxNight = 16 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Scheduler{
		site:         opts.Site,
		horizon:      opts.Horizon,
		constraints:  opts.Constraints,
		fieldsFile:   opts.FieldsFile,
		alwaysCheck:  opts.AlwaysCheckFields,
		sunHorizon:   opts.SunHorizon,
		maxNight:     opts.MaxNight,
		log:          opts.Logger,
		observations: make(map[string]*Observation),
	}

	if s.fieldsFile != "" {
		if err := s.ReadFieldsFile(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FieldsFile returns the configured catalog path.
func (s *Scheduler) FieldsFile() string { return s.fieldsFile }

// MarkDirty requests a catalog re-read before the next selection. Safe to
// call from the fields-file watcher goroutine.
func (s *Scheduler) MarkDirty() { s.dirty.Store(true) }

// ReadFieldsFile loads the catalog file, merging records into the catalog
// by name. Invalid records are skipped with a warning; an unreadable or
// unparseable file is an error.
func (s *Scheduler) ReadFieldsFile() error {
	data, err := os.ReadFile(s.fieldsFile)
	if err != nil {
		return fmt.Errorf("scheduler: read fields file: %w", err)
	}

	var configs []ObservationConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return fmt.Errorf("scheduler: parse fields file %s: %w", s.fieldsFile, err)
	}

	for _, cfg := range configs {
		if err := s.AddObservation(cfg); err != nil {
			s.log.Warn("skipping invalid field record", "name", cfg.Name, "err", err)
		}
	}
	return nil
}

// AddObservation validates cfg and merges it into the catalog, overwriting
// any same-named entry. A validation failure leaves the catalog unchanged.
// An entry identical to the existing one is left alone so in-flight session
// bookkeeping survives catalog re-reads.
func (s *Scheduler) AddObservation(cfg ObservationConfig) error {
	obs, err := NewObservation(cfg)
	if err != nil {
		return err
	}

	if existing, ok := s.observations[obs.Name()]; ok {
		if sameConfig(existing, obs) {
			return nil
		}
		s.log.Debug("overriding catalog entry", "name", obs.Name())
	}
	s.observations[obs.Name()] = obs
	return nil
}

func sameConfig(a, b *Observation) bool {
	return a.Field.Position == b.Field.Position &&
		a.ExpTime == b.ExpTime &&
		a.MinNExp == b.MinNExp &&
		a.ExpSetSize == b.ExpSetSize &&
		a.Priority == b.Priority &&
		a.FilterName == b.FilterName &&
		a.Dark == b.Dark
}

// RemoveObservation deletes a catalog entry by field name. Removing the
// current observation clears it.
func (s *Scheduler) RemoveObservation(name string) {
	if _, ok := s.observations[name]; !ok {
		return
	}
	delete(s.observations, name)
	if s.current != nil && s.current.Name() == name {
		s.current = nil
	}
	s.log.Debug("observation removed", "name", name)
}

// Observations returns the catalog keyed by field name. Callers must not
// mutate it.
func (s *Scheduler) Observations() map[string]*Observation {
	return s.observations
}

// HasValidObservations reports whether the catalog has any entries.
func (s *Scheduler) HasValidObservations() bool {
	return len(s.observations) > 0
}

// HasUnfinishedObservations reports whether any catalog entry still needs
// exposures. A catalog holding only completed campaigns schedules nothing,
// which is distinct from an empty catalog.
func (s *Scheduler) HasUnfinishedObservations() bool {
	for _, o := range s.observations {
		if !o.SetIsFinished() {
			return true
		}
	}
	return false
}

// ReloadIfDirty re-reads the catalog file if a watcher or caller marked it
// dirty since the last read. A no-op when no file is configured.
func (s *Scheduler) ReloadIfDirty() error {
	if s.fieldsFile == "" || !s.dirty.Swap(false) {
		return nil
	}
	return s.ReadFieldsFile()
}

// CurrentObservation returns the active observation, or nil.
func (s *Scheduler) CurrentObservation() *Observation {
	return s.current
}

// ObservedList returns the session history in selection order.
func (s *Scheduler) ObservedList() []*Observation {
	out := make([]*Observation, len(s.observedList))
	for i, e := range s.observedList {
		out[i] = e.Observation
	}
	return out
}

// ResetObservedList clears the selection history; the end-of-night
// housekeeping hook.
func (s *Scheduler) ResetObservedList() {
	s.log.Debug("resetting observed list")
	s.observedList = nil
}

// GetObservation selects the best eligible observation at time t.
//
// Candidates that are already finished for the night are excluded. Each
// remaining candidate is run through every constraint; any veto excludes
// it, otherwise its total score is priority plus the weighted constraint
// scores. The arg-max wins, with ties broken by catalog name order.
//
// Continuity: re-selecting the active unfinished target preserves its
// seq time and exposure bookkeeping. A different winner becomes current:
// fresh targets are stamped with t and recorded in the history, while a
// previously started, unfinished target resumes under its original
// seq time. Returns ErrNoObservation when nothing is eligible.
func (s *Scheduler) GetObservation(t time.Time, rereadFieldsFile bool) (*Observation, error) {
	if s.fieldsFile != "" && (rereadFieldsFile || s.alwaysCheck || s.dirty.Swap(false)) {
		s.log.Debug("rereading fields file", "path", s.fieldsFile)
		if err := s.ReadFieldsFile(); err != nil {
			return nil, err
		}
	}

	env := s.buildEnv(t)

	best, bestScore := s.pickBest(t, env)
	if best == nil {
		if s.current != nil {
			s.log.Info("no eligible observation, clearing current", "was", s.current.Name())
			s.current = nil
		}
		return nil, ErrNoObservation
	}

	best.setMerit(bestScore)

	switch {
	case s.current != nil && s.current.Name() == best.Name() && !s.current.SetIsFinished():
		// Same target, still in progress: nothing to restamp.
		s.current.setMerit(bestScore)
		return s.current, nil

	case !best.SeqTime().IsZero():
		// Resuming an earlier, unfinished session under its original
		// identity; it is already in the history.
		s.current = best

	default:
		best.setSeqTime(t)
		s.observedList = append(s.observedList, observedEntry{SeqTime: t, Observation: best})
		s.current = best
	}

	s.log.Info("selected observation", "name", best.Name(), "merit", bestScore, "seq", best.SeqID())
	return s.current, nil
}

func (s *Scheduler) buildEnv(t time.Time) *Env {
	env := &Env{
		Site:    s.site,
		Horizon: s.horizon,
		Moon:    astro.MoonPosition(t),
	}

	if remaining, ok := s.site.TimeUntilSunAbove(t, s.sunHorizon, s.maxNight); ok {
		env.DarkRemaining = remaining
		env.DarkKnown = true
		env.NightLength = remaining
	} else {
		// The sun stayed below the horizon for the whole scan: the night
		// outlasts maxNight, so the cap itself is the usable window.
		env.DarkRemaining = s.maxNight
		env.DarkKnown = true
		env.NightLength = s.maxNight
	}

	for _, e := range s.observedList {
		env.Observed = append(env.Observed, e.Observation.Name())
	}
	if s.current != nil {
		env.CurrentName = s.current.Name()
	}
	return env
}

func (s *Scheduler) pickBest(t time.Time, env *Env) (*Observation, float64) {
	names := make([]string, 0, len(s.observations))
	for name := range s.observations {
		names = append(names, name)
	}
	sort.Strings(names)

	var best *Observation
	var bestScore float64

	for _, name := range names {
		obs := s.observations[name]
		if obs.SetIsFinished() {
			continue
		}

		total := obs.Priority
		vetoed := false
		for _, c := range s.constraints {
			veto, score := c.GetScore(t, obs, env)
			if veto {
				s.log.Debug("vetoed", "name", name, "constraint", c.Name())
				vetoed = true
				break
			}
			total += c.Weight() * score
		}
		if vetoed {
			continue
		}

		s.log.Debug("scored", "name", name, "score", total)
		if best == nil || total > bestScore {
			best, bestScore = obs, total
		}
	}
	return best, bestScore
}

// SchedulerStatus is an immutable snapshot for external observability.
type SchedulerStatus struct {
	CatalogSize        int     `json:"catalog_size"`
	ObservedCount      int     `json:"observed_count"`
	CurrentObservation *Status `json:"current_observation,omitempty"`
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	st := SchedulerStatus{
		CatalogSize:   len(s.observations),
		ObservedCount: len(s.observedList),
	}
	if s.current != nil {
		cur := s.current.Status()
		st.CurrentObservation = &cur
	}
	return st
}
