// Package hardware defines the mount, camera and dome collaborators the
// state machine drives, plus simulator implementations used for development
// and testing without physical devices.
package hardware

import (
	"context"
	"errors"
	"time"

	"github.com/astroward/nightwatch/internal/astro"
	"github.com/astroward/nightwatch/internal/scheduler"
)

var (
	// ErrNotConnected is returned by operations that need a live device link.
	ErrNotConnected = errors.New("hardware: not connected")

	// ErrTimeout is returned when a bounded operation does not finish in time.
	ErrTimeout = errors.New("hardware: operation timed out")

	// ErrBusy is returned when a device cannot accept a command in its
	// current activity.
	ErrBusy = errors.New("hardware: device busy")

	// ErrNoTarget is returned by slews issued before target coordinates
	// were set.
	ErrNoTarget = errors.New("hardware: no target coordinates set")

	// ErrParked is returned by movement commands while the mount is parked.
	ErrParked = errors.New("hardware: mount is parked")
)

// Mount moves the telescope. All slews are blocking with a bounded wait;
// a context cancellation or elapsed timeout aborts the wait, not the
// physical motion.
type Mount interface {
	Connect(ctx context.Context) error
	Initialize(ctx context.Context) error

	Park(ctx context.Context) error
	Unpark() error

	// SetTargetCoordinates stores the destination for the next slew.
	// Reports false if the mount rejects the coordinates.
	SetTargetCoordinates(pos astro.Equatorial) bool

	SlewToTarget(ctx context.Context, timeout time.Duration) error
	SlewToHome(ctx context.Context, timeout time.Duration) error

	IsConnected() bool
	IsParked() bool
	IsSlewing() bool
	IsTracking() bool

	// GetTrackingCorrection converts a measured pointing offset into
	// per-axis guide pulses. See TrackingCorrection.
	GetTrackingCorrection(offset Offset, pointingHA float64, th Thresholds) TrackingCorrection

	CorrectTracking(ctx context.Context, c TrackingCorrection, axisTimeout time.Duration) error
}

// ExposureResult is one camera's report after an exposure attempt.
type ExposureResult struct {
	CameraID string
	ImageID  string
	Path     string
	Err      error
}

// Camera exposes a single imager. TakeObservation returns immediately with
// a channel that delivers exactly one ExposureResult and is then closed.
type Camera interface {
	ID() string
	IsPrimary() bool
	IsExposing() bool
	IsReady() bool

	TakeObservation(ctx context.Context, obs *scheduler.Observation, headers map[string]any) (<-chan ExposureResult, error)
}

// Dome covers the optics. Optional: a unit without a dome runs with a nil
// Dome and the engine skips open/close steps.
type Dome interface {
	Connect(ctx context.Context) error
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	IsOpen() bool
	IsClosed() bool
	Status() string
}
