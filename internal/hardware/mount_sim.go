package hardware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/astroward/nightwatch/internal/astro"
)

// SimMount is a software mount that honors the Mount contract with
// configurable motion latency. It starts parked and disconnected.
type SimMount struct {
	// SlewDelay is how long a simulated slew takes. Zero means instant.
	SlewDelay time.Duration

	// GuideRate is the guide speed as a fraction of sidereal; zero takes
	// DefaultGuideRate.
	GuideRate float64

	Logger *slog.Logger

	mu          sync.Mutex
	connected   bool
	initialized bool
	parked      bool
	slewing     bool
	tracking    bool
	target      *astro.Equatorial
}

var _ Mount = (*SimMount)(nil)

// NewSimMount returns a parked, disconnected simulator.
func NewSimMount(slewDelay time.Duration, logger *slog.Logger) *SimMount {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SimMount{SlewDelay: slewDelay, Logger: logger, parked: true}
}

func (m *SimMount) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *SimMount) Initialize(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.initialized = true
	return nil
}

// Park slews to the park position and stops tracking.
func (m *SimMount) Park(ctx context.Context) error {
	if err := m.wait(ctx, m.SlewDelay); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parked = true
	m.tracking = false
	m.target = nil
	m.Logger.Debug("mount parked")
	return nil
}

func (m *SimMount) Unpark() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.parked = false
	return nil
}

func (m *SimMount) SetTargetCoordinates(pos astro.Equatorial) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return false
	}
	m.target = &pos
	return true
}

// SlewToTarget blocks until the simulated slew completes, the timeout
// elapses, or ctx is canceled. On success the mount is tracking.
func (m *SimMount) SlewToTarget(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	switch {
	case !m.connected:
		m.mu.Unlock()
		return ErrNotConnected
	case m.parked:
		m.mu.Unlock()
		return ErrParked
	case m.target == nil:
		m.mu.Unlock()
		return ErrNoTarget
	case m.slewing:
		m.mu.Unlock()
		return ErrBusy
	}
	m.slewing = true
	m.tracking = false
	m.mu.Unlock()

	err := m.boundedWait(ctx, m.SlewDelay, timeout)

	m.mu.Lock()
	m.slewing = false
	m.tracking = err == nil
	m.mu.Unlock()
	return err
}

// SlewToHome blocks like SlewToTarget but ends untracked at the home
// position.
func (m *SimMount) SlewToHome(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.parked {
		m.mu.Unlock()
		return ErrParked
	}
	m.slewing = true
	m.tracking = false
	m.mu.Unlock()

	err := m.boundedWait(ctx, m.SlewDelay, timeout)

	m.mu.Lock()
	m.slewing = false
	m.mu.Unlock()
	return err
}

func (m *SimMount) IsConnected() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.connected }
func (m *SimMount) IsParked() bool    { m.mu.Lock(); defer m.mu.Unlock(); return m.parked }
func (m *SimMount) IsSlewing() bool   { m.mu.Lock(); defer m.mu.Unlock(); return m.slewing }
func (m *SimMount) IsTracking() bool  { m.mu.Lock(); defer m.mu.Unlock(); return m.tracking }

func (m *SimMount) GetTrackingCorrection(offset Offset, pointingHA float64, th Thresholds) TrackingCorrection {
	return trackingCorrection(offset, pointingHA, m.GuideRate, th)
}

// CorrectTracking applies each axis pulse in turn, bounded per axis.
func (m *SimMount) CorrectTracking(ctx context.Context, c TrackingCorrection, axisTimeout time.Duration) error {
	m.mu.Lock()
	if !m.tracking {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.mu.Unlock()

	for _, axis := range []AxisCorrection{c.RA, c.Dec} {
		if axis.Duration == 0 {
			continue
		}
		if err := m.boundedWait(ctx, axis.Duration, axisTimeout); err != nil {
			return err
		}
	}
	return nil
}

// wait sleeps for d or until ctx is done.
func (m *SimMount) wait(ctx context.Context, d time.Duration) error {
	if d == 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// boundedWait sleeps for d but gives up with ErrTimeout once timeout
// elapses first.
func (m *SimMount) boundedWait(ctx context.Context, d, timeout time.Duration) error {
	if timeout > 0 && d > timeout {
		if err := m.wait(ctx, timeout); err != nil {
			return err
		}
		return ErrTimeout
	}
	return m.wait(ctx, d)
}
