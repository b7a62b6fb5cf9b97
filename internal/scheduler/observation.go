package scheduler

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// SeqTimeFormat is the layout used to flatten a selection timestamp into
// the sequence identifier used for history keys and image paths.
const SeqTimeFormat = "20060102T150405"

// Exposure records one image taken by one camera.
type Exposure struct {
	ImageID string
	Path    string
	At      time.Time
}

// Observation is a campaign of exposures against a single Field, organized
// into sets of exp_set_size. The Scheduler owns all bookkeeping except the
// per-camera exposure list, which hardware collaborators append to through
// AddToExposureList — and nothing else.
type Observation struct {
	Field *Field

	// ExpTime is the duration of a single exposure. Zero is allowed and
	// means a bias frame.
	ExpTime time.Duration

	// MinNExp is the minimum number of exposures for the campaign; always
	// an integer multiple of ExpSetSize.
	MinNExp int

	// ExpSetSize is the number of exposures per set.
	ExpSetSize int

	// Priority ranks this field against others; strictly positive.
	Priority float64

	// FilterName optionally overrides the default filter.
	FilterName string

	// Dark marks exposures to be taken with the shutter closed.
	Dark bool

	mu            sync.Mutex
	exposures     map[string][]Exposure
	firstExposure *Exposure
	lastExposure  *Exposure
	seqTime       time.Time
	merit         float64
}

// ObservationConfig carries observation parameters alongside the field
// identification, as read from the catalog file or supplied directly.
type ObservationConfig struct {
	Name       string  `yaml:"name"`
	Position   string  `yaml:"position"`
	ExpTime    float64 `yaml:"exptime"` // seconds
	MinNExp    int     `yaml:"min_nexp"`
	ExpSetSize int     `yaml:"exp_set_size"`
	Priority   float64 `yaml:"priority"`
	FilterName string  `yaml:"filter_name"`
	Dark       bool    `yaml:"dark"`
}

// NewObservation validates cfg and builds an Observation. Any violation
// returns a *ValidationError and constructs nothing.
func NewObservation(cfg ObservationConfig) (*Observation, error) {
	field, err := NewField(cfg.Name, cfg.Position)
	if err != nil {
		return nil, err
	}

	if cfg.ExpTime < 0 {
		return nil, validationErrorf("exptime", "must be >= 0, got %v", cfg.ExpTime)
	}
	if cfg.ExpSetSize <= 0 {
		return nil, validationErrorf("exp_set_size", "must be > 0, got %d", cfg.ExpSetSize)
	}
	if cfg.MinNExp%cfg.ExpSetSize != 0 {
		return nil, validationErrorf("min_nexp",
			"%d must be a multiple of exp_set_size %d", cfg.MinNExp, cfg.ExpSetSize)
	}
	if cfg.Priority <= 0 {
		return nil, validationErrorf("priority", "must be > 0, got %v", cfg.Priority)
	}

	return &Observation{
		Field:      field,
		ExpTime:    time.Duration(cfg.ExpTime * float64(time.Second)),
		MinNExp:    cfg.MinNExp,
		ExpSetSize: cfg.ExpSetSize,
		Priority:   cfg.Priority,
		FilterName: cfg.FilterName,
		Dark:       cfg.Dark,
		exposures:  make(map[string][]Exposure),
	}, nil
}

// Name is the name of the associated Field.
func (o *Observation) Name() string {
	return o.Field.Name
}

// MinimumDuration is the least wall time needed to complete the campaign.
func (o *Observation) MinimumDuration() time.Duration {
	return o.ExpTime * time.Duration(o.MinNExp)
}

// SetDuration is the wall time for one set of exposures.
func (o *Observation) SetDuration() time.Duration {
	return o.ExpTime * time.Duration(o.ExpSetSize)
}

// AddToExposureList appends an exposure for the given camera. The first
// primary-camera entry becomes FirstExposure; the latest primary entry is
// always LastExposure. This is the only mutation collaborators may make.
func (o *Observation) AddToExposureList(cameraID, imageID, path string, isPrimary bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	exp := Exposure{ImageID: imageID, Path: path, At: time.Now()}
	o.exposures[cameraID] = append(o.exposures[cameraID], exp)

	if isPrimary {
		if o.firstExposure == nil {
			first := exp
			o.firstExposure = &first
		}
		last := exp
		o.lastExposure = &last
	}
}

// CurrentExpNum is the exposure count of the fastest camera. Progress is
// reported optimistically rather than held back by a lagging camera; see
// DESIGN.md for the open question on all-camera completion.
func (o *Observation) CurrentExpNum() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	max := 0
	for _, list := range o.exposures {
		if len(list) > max {
			max = len(list)
		}
	}
	return max
}

// SetIsFinished reports whether the minimum number of exposures has been
// reached and a whole number of sets has been completed.
func (o *Observation) SetIsFinished() bool {
	n := o.CurrentExpNum()
	return n >= o.MinNExp && n%o.ExpSetSize == 0
}

// FirstExposure returns the first primary-camera exposure, or nil.
func (o *Observation) FirstExposure() *Exposure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.firstExposure
}

// LastExposure returns the most recent primary-camera exposure, or nil.
func (o *Observation) LastExposure() *Exposure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastExposure
}

// SeqTime is the timestamp of the observing session this target was
// selected for. Zero until the scheduler first picks it; unchanged while it
// remains the active, unfinished target; cleared only by Reset.
func (o *Observation) SeqTime() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seqTime
}

// SeqID is the flattened SeqTime used in paths and history keys, or empty
// if the observation has never been selected.
func (o *Observation) SeqID() string {
	st := o.SeqTime()
	if st.IsZero() {
		return ""
	}
	return st.UTC().Format(SeqTimeFormat)
}

func (o *Observation) setSeqTime(t time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seqTime = t
}

// Merit is the total weighted score from the most recent evaluation.
func (o *Observation) Merit() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.merit
}

func (o *Observation) setMerit(m float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.merit = m
}

// Directory returns the image directory for this observation under base:
// base/<field_name>/<seq_id>.
func (o *Observation) Directory(base string) string {
	return filepath.Join(base, o.Field.FieldName(), o.SeqID())
}

// Reset clears all session bookkeeping: exposures, merit, and seq time.
// The observation becomes selectable as a fresh campaign.
func (o *Observation) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exposures = make(map[string][]Exposure)
	o.firstExposure = nil
	o.lastExposure = nil
	o.merit = 0
	o.seqTime = time.Time{}
}

// Status is an immutable snapshot of an observation for external
// observability.
type Status struct {
	FieldName       string  `json:"field_name"`
	RA              float64 `json:"field_ra"`
	Dec             float64 `json:"field_dec"`
	ExpTimeSeconds  float64 `json:"exptime"`
	MinNExp         int     `json:"min_nexp"`
	ExpSetSize      int     `json:"exp_set_size"`
	Priority        float64 `json:"priority"`
	Merit           float64 `json:"merit"`
	SeqTime         string  `json:"seq_time,omitempty"`
	CurrentExpNum   int     `json:"current_exp"`
	MinimumDuration float64 `json:"minimum_duration"`
	SetDuration     float64 `json:"set_duration"`
	FilterName      string  `json:"filter_name,omitempty"`
	Dark            bool    `json:"dark"`
}

// Status returns a point-in-time snapshot of the observation.
func (o *Observation) Status() Status {
	return Status{
		FieldName:       o.Field.Name,
		RA:              o.Field.Position.RA,
		Dec:             o.Field.Position.Dec,
		ExpTimeSeconds:  o.ExpTime.Seconds(),
		MinNExp:         o.MinNExp,
		ExpSetSize:      o.ExpSetSize,
		Priority:        o.Priority,
		Merit:           o.Merit(),
		SeqTime:         o.SeqID(),
		CurrentExpNum:   o.CurrentExpNum(),
		MinimumDuration: o.MinimumDuration().Seconds(),
		SetDuration:     o.SetDuration().Seconds(),
		FilterName:      o.FilterName,
		Dark:            o.Dark,
	}
}

func (o *Observation) String() string {
	return fmt.Sprintf("%s: %v exposures in blocks of %d, minimum %d, priority %.0f",
		o.Field, o.ExpTime, o.ExpSetSize, o.MinNExp, o.Priority)
}
