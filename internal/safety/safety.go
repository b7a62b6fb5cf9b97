// Package safety evaluates the boolean predicates that gate observatory
// operation. Every call re-derives each predicate from the latest stored
// reading; there is no caching beyond the staleness windows themselves.
package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/astroward/nightwatch/internal/astro"
)

// HorizonMode selects which sun-altitude threshold is_dark is judged
// against. Taking flats tolerates far more twilight than imaging does.
type HorizonMode string

const (
	ModeObserve HorizonMode = "observe"
	ModeFlat    HorizonMode = "flat"
	ModeFocus   HorizonMode = "focus"
)

// Default sun-altitude thresholds in degrees per mode.
const (
	DefaultObserveHorizon = -18.0
	DefaultFlatHorizon    = -6.0
	DefaultFocusHorizon   = -12.0
)

// CurrentReader is the narrow slice of the store the monitor needs.
type CurrentReader interface {
	GetCurrent(ctx context.Context, collection string) ([]byte, time.Time, error)
	InsertCurrent(ctx context.Context, collection string, payload any) error
}

// Options configures a Monitor.
type Options struct {
	Store CurrentReader
	Site  astro.Site

	// Sun-altitude thresholds in degrees; zero values take the defaults.
	ObserveHorizon float64
	FlatHorizon    float64
	FocusHorizon   float64

	// PowerStaleAfter / WeatherStaleAfter bound how old a stored reading may
	// be before it counts as unsafe. Zero values default to one minute and
	// three minutes respectively.
	PowerStaleAfter   time.Duration
	WeatherStaleAfter time.Duration

	// ImageDir is the filesystem path checked for free space.
	// RequiredSpace is the minimum available bytes.
	ImageDir      string
	RequiredSpace uint64

	// Simulated predicates always pass. Recognized names: "power",
	// "weather", "night", "space"; "all" expands to every predicate.
	Simulated []string

	Logger *slog.Logger
}

// Result is one safety evaluation. Failed names the first predicate that
// failed, or is empty when Safe.
type Result struct {
	Safe   bool            `json:"safe"`
	Failed string          `json:"failed,omitempty"`
	Values map[string]bool `json:"values"`
	At     time.Time       `json:"at"`
}

// Monitor answers "is it safe to operate right now".
type Monitor struct {
	store         CurrentReader
	site          astro.Site
	horizons      map[HorizonMode]float64
	powerStale    time.Duration
	weatherStale  time.Duration
	imageDir      string
	requiredSpace uint64
	simulated     map[string]bool
	logger        *slog.Logger
}

// NewMonitor builds a Monitor, filling in defaults for zero-valued options.
func NewMonitor(opts Options) *Monitor {
	if opts.ObserveHorizon == 0 {
		opts.ObserveHorizon = DefaultObserveHorizon
	}
	if opts.FlatHorizon == 0 {
		opts.FlatHorizon = DefaultFlatHorizon
	}
	if opts.FocusHorizon == 0 {
		opts.FocusHorizon = DefaultFocusHorizon
	}
	if opts.PowerStaleAfter == 0 {
		opts.PowerStaleAfter = time.Minute
	}
	if opts.WeatherStaleAfter == 0 {
		opts.WeatherStaleAfter = 3 * time.Minute
	}
	if opts.RequiredSpace == 0 {
		opts.RequiredSpace = 1 << 30
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	sim := make(map[string]bool, len(opts.Simulated))
	for _, name := range opts.Simulated {
		if name == "all" {
			for _, n := range []string{"power", "weather", "night", "space"} {
				sim[n] = true
			}
			continue
		}
		sim[name] = true
	}
	return &Monitor{
		store: opts.Store,
		site:  opts.Site,
		horizons: map[HorizonMode]float64{
			ModeObserve: opts.ObserveHorizon,
			ModeFlat:    opts.FlatHorizon,
			ModeFocus:   opts.FocusHorizon,
		},
		powerStale:    opts.PowerStaleAfter,
		weatherStale:  opts.WeatherStaleAfter,
		imageDir:      opts.ImageDir,
		requiredSpace: opts.RequiredSpace,
		simulated:     sim,
		logger:        opts.Logger,
	}
}

// Check evaluates all predicates at time t, short-circuiting at the first
// failure. The result is written to the safety collection for external
// observers; a store write failure is logged but does not flip the verdict.
func (m *Monitor) Check(ctx context.Context, t time.Time, mode HorizonMode) Result {
	res := Result{Values: make(map[string]bool, 4), At: t}

	checks := []struct {
		name string
		fn   func(context.Context, time.Time) bool
	}{
		{"power", m.HasACPower},
		{"weather", m.IsWeatherSafe},
		{"night", func(_ context.Context, t time.Time) bool { return m.IsDark(t, mode) }},
		{"space", func(ctx context.Context, _ time.Time) bool { return m.HasFreeSpace(ctx) }},
	}

	res.Safe = true
	for _, c := range checks {
		ok := c.fn(ctx, t)
		res.Values[c.name] = ok
		if !ok {
			res.Safe = false
			res.Failed = c.name
			m.logger.Warn("safety check failed", "predicate", c.name)
			break
		}
	}

	if m.store != nil {
		if err := m.store.InsertCurrent(ctx, "safety", res); err != nil {
			m.logger.Error("record safety result", "error", err)
		}
	}
	return res
}

// reading is the shape of the power and weather payloads in the store.
type reading struct {
	Safe bool `json:"safe"`
}

// currentBool reads a collection's latest boolean, rejecting missing or
// stale records.
func (m *Monitor) currentBool(ctx context.Context, collection string, now time.Time, staleAfter time.Duration) bool {
	payload, at, err := m.store.GetCurrent(ctx, collection)
	if err != nil {
		m.logger.Warn("no current reading", "collection", collection, "error", err)
		return false
	}
	if now.Sub(at) > staleAfter {
		m.logger.Warn("stale reading", "collection", collection, "age", now.Sub(at))
		return false
	}
	var r reading
	if err := json.Unmarshal(payload, &r); err != nil {
		m.logger.Warn("malformed reading", "collection", collection, "error", err)
		return false
	}
	return r.Safe
}

// HasACPower reports whether the latest mains reading is good and recent.
func (m *Monitor) HasACPower(ctx context.Context, now time.Time) bool {
	if m.simulated["power"] {
		return true
	}
	return m.currentBool(ctx, "power", now, m.powerStale)
}

// IsWeatherSafe reports whether the latest weather-station reading is safe
// and recent.
func (m *Monitor) IsWeatherSafe(ctx context.Context, now time.Time) bool {
	if m.simulated["weather"] {
		return true
	}
	return m.currentBool(ctx, "weather", now, m.weatherStale)
}

// IsDark reports whether the sun is below the threshold for the given mode.
func (m *Monitor) IsDark(t time.Time, mode HorizonMode) bool {
	if m.simulated["night"] {
		return true
	}
	threshold, ok := m.horizons[mode]
	if !ok {
		threshold = m.horizons[ModeObserve]
	}
	return m.site.SunAltitude(t) < threshold
}

// SunAltitude exposes the site's current sun altitude for diagnostics.
func (m *Monitor) SunAltitude(t time.Time) float64 {
	return m.site.SunAltitude(t)
}

// HasFreeSpace reports whether the image directory's filesystem has at
// least the required bytes available.
func (m *Monitor) HasFreeSpace(_ context.Context) bool {
	if m.simulated["space"] {
		return true
	}
	avail, err := availableBytes(m.imageDir)
	if err != nil {
		m.logger.Warn("statfs failed", "dir", m.imageDir, "error", err)
		return false
	}
	return avail >= m.requiredSpace
}

// availableBytes returns the bytes available to unprivileged users on the
// filesystem holding path.
func availableBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("safety: statfs %q: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}
