package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astroward/nightwatch/internal/scheduler"
)

// SimCamera pretends to expose for the observation's exposure time and
// then reports a generated image.
type SimCamera struct {
	id       string
	primary  bool
	imageDir string
	logger   *slog.Logger

	mu       sync.Mutex
	exposing bool
}

var _ Camera = (*SimCamera)(nil)

// NewSimCamera builds a simulator that writes image paths under imageDir.
func NewSimCamera(id string, primary bool, imageDir string, logger *slog.Logger) *SimCamera {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SimCamera{id: id, primary: primary, imageDir: imageDir, logger: logger}
}

func (c *SimCamera) ID() string      { return c.id }
func (c *SimCamera) IsPrimary() bool { return c.primary }

func (c *SimCamera) IsExposing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposing
}

func (c *SimCamera) IsReady() bool { return !c.IsExposing() }

// TakeObservation starts one exposure. The returned channel delivers a
// single ExposureResult when the exposure ends and is then closed. The
// exposure is recorded on the Observation before the result is delivered.
func (c *SimCamera) TakeObservation(ctx context.Context, obs *scheduler.Observation, headers map[string]any) (<-chan ExposureResult, error) {
	c.mu.Lock()
	if c.exposing {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: camera %s is exposing", ErrBusy, c.id)
	}
	c.exposing = true
	c.mu.Unlock()

	done := make(chan ExposureResult, 1)
	go func() {
		res := ExposureResult{CameraID: c.id}
		if err := c.sleep(ctx, obs.ExpTime); err != nil {
			res.Err = err
		} else {
			res.ImageID = fmt.Sprintf("%s_%s", c.id, uuid.NewString())
			res.Path = filepath.Join(obs.Directory(c.imageDir), res.ImageID+".fits")
			obs.AddToExposureList(c.id, res.ImageID, res.Path, c.primary)
			c.logger.Debug("exposure complete",
				"camera", c.id, "image", res.ImageID, "field", obs.Name())
		}

		// Clear the busy flag before the result is observable so a caller
		// that saw the result can immediately start the next exposure.
		c.mu.Lock()
		c.exposing = false
		c.mu.Unlock()

		done <- res
		close(done)
	}()
	return done, nil
}

func (c *SimCamera) sleep(ctx context.Context, d time.Duration) error {
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
