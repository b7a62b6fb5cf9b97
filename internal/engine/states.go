package engine

import (
	"context"
	"errors"
	"time"

	"github.com/astroward/nightwatch/internal/hardware"
	"github.com/astroward/nightwatch/internal/safety"
	"github.com/astroward/nightwatch/internal/scheduler"
	"github.com/astroward/nightwatch/internal/telemetry"
)

// StateHandler is a state's entry action. It does the state's work and
// returns the desired next state; the loop resolves that request against
// the edge table.
type StateHandler interface {
	OnEnter(ctx context.Context, c *Controller) State
}

// newRegistry maps every state in the closed set to its handler.
func newRegistry() map[State]StateHandler {
	return map[State]StateHandler{
		StateSleeping:     sleepingState{},
		StateReady:        readyState{},
		StateScheduling:   schedulingState{},
		StateSlewing:      slewingState{},
		StateObserving:    observingState{},
		StateAnalyzing:    analyzingState{},
		StateParking:      parkingState{},
		StateParked:       parkedState{},
		StateHousekeeping: housekeepingState{},
	}
}

// sleepingState is the rest state between observing runs. It decides
// whether the session is over or a new run should begin.
type sleepingState struct{}

func (sleepingState) OnEnter(_ context.Context, c *Controller) State {
	switch {
	case c.run.RunOnce():
		c.logger.Info("single run complete, stopping")
		c.run.stopStates()
	case c.run.Interrupted():
		c.logger.Info("session interrupted, stopping")
		c.run.stopStates()
	default:
		if err := c.sched.ReloadIfDirty(); err != nil {
			c.logger.Error("reload catalog", "error", err)
		}
		if !c.sched.HasUnfinishedObservations() {
			if c.exitWhenDone {
				c.logger.Info("no observations remain, stopping")
				c.run.stopStates()
				break
			}
			// Stay asleep until a catalog update brings new work.
			c.logger.Info("nothing to observe, staying asleep")
			return StateSleeping
		}
	}
	return StateReady
}

// readyState prepares the hardware for the night: unpark the mount, open
// the dome.
type readyState struct{}

func (readyState) OnEnter(ctx context.Context, c *Controller) State {
	if err := c.mount.Unpark(); err != nil {
		c.logger.Error("unpark mount", "error", err)
		return StateParking
	}
	if c.dome != nil {
		if err := c.dome.Open(ctx); err != nil {
			c.logger.Error("open dome", "error", err)
			return StateParking
		}
	}
	c.logger.Info("unit ready")
	return StateScheduling
}

// schedulingState asks the scheduler for a target and points the mount at
// it. Finding nothing eligible is a normal outcome, not a fault; both end
// in parking, but only the fault is logged as one.
type schedulingState struct{}

func (schedulingState) OnEnter(ctx context.Context, c *Controller) State {
	if c.run.RunOnce() && len(c.sched.ObservedList()) > 0 {
		c.logger.Info("single run already observed, parking")
		return StateParking
	}

	previous := c.sched.CurrentObservation()

	obs, err := c.sched.GetObservation(time.Now(), c.rereadFields)
	switch {
	case errors.Is(err, scheduler.ErrNoObservation):
		c.logger.Info("no eligible observation, parking")
		return StateParking
	case err != nil:
		c.logger.Error("scheduling failed", "error", err)
		return StateParking
	}

	c.emit(telemetry.Event{Kind: telemetry.KindSelection, SeqID: obs.SeqID(),
		Data: map[string]any{"field": obs.Name(), "merit": obs.Merit()}})

	if previous != nil && previous.Name() == obs.Name() && c.mount.IsTracking() {
		c.logger.Info("staying on current target", "field", obs.Name())
		return StateObserving
	}

	if !c.mount.SetTargetCoordinates(obs.Field.Position) {
		c.logger.Warn("mount rejected target coordinates", "field", obs.Name())
		return StateParking
	}
	c.logger.Info("target selected", "field", obs.Name(), "seq", obs.SeqID())
	return StateSlewing
}

// slewingState drives the blocking slew. A timeout is caught here and
// converted into a move toward parking.
type slewingState struct{}

func (slewingState) OnEnter(ctx context.Context, c *Controller) State {
	if err := c.mount.SlewToTarget(ctx, c.slewTimeout); err != nil {
		c.logger.Error("slew failed", "error", err)
		return StateParking
	}
	c.logger.Info("on target, tracking")
	return StateObserving
}

// observingState fires one exposure on every camera and waits, bounded,
// for all of them. The night survives individual camera faults; only a
// total failure parks.
type observingState struct{}

func (observingState) OnEnter(ctx context.Context, c *Controller) State {
	obs := c.sched.CurrentObservation()
	if obs == nil {
		c.logger.Warn("observing with no current observation, parking")
		return StateParking
	}

	headers := map[string]any{"field": obs.Name(), "seq": obs.SeqID()}
	var waits []<-chan hardware.ExposureResult
	for _, cam := range c.cameras {
		done, err := cam.TakeObservation(ctx, obs, headers)
		if err != nil {
			c.logger.Error("camera refused exposure", "camera", cam.ID(), "error", err)
			continue
		}
		waits = append(waits, done)
	}
	if len(waits) == 0 {
		c.logger.Error("no camera accepted the exposure, parking")
		return StateParking
	}

	deadline := time.NewTimer(obs.ExpTime + c.cameraGrace)
	defer deadline.Stop()

	succeeded := 0
	for _, done := range waits {
		select {
		case res := <-done:
			if res.Err != nil {
				c.logger.Error("exposure failed", "camera", res.CameraID, "error", res.Err)
				continue
			}
			succeeded++
			c.emit(telemetry.Event{Kind: telemetry.KindExposure, SeqID: obs.SeqID(),
				Data: map[string]string{"camera": res.CameraID, "image": res.ImageID}})
		case <-deadline.C:
			c.logger.Error("cameras timed out", "field", obs.Name())
			return StateParking
		case <-ctx.Done():
			return StateParking
		}
	}
	if succeeded == 0 {
		c.logger.Error("every exposure failed, parking")
		return StateParking
	}
	return StateAnalyzing
}

// analyzingState records the finished exposure and decides whether the
// current set needs another one.
type analyzingState struct{}

func (analyzingState) OnEnter(ctx context.Context, c *Controller) State {
	obs := c.sched.CurrentObservation()
	if obs == nil {
		return StateParking
	}

	status := obs.Status()
	if c.store != nil {
		if err := c.store.LogObservation(ctx, obs.SeqID(), obs.Name(), status); err != nil {
			c.logger.Error("record observation", "error", err)
		}
	}
	c.logger.Info("exposure recorded",
		"field", obs.Name(), "count", obs.CurrentExpNum(), "of", obs.MinNExp)

	if obs.SetIsFinished() {
		c.logger.Info("exposure set complete", "field", obs.Name())
		return StateScheduling
	}
	return StateObserving
}

// parkingState closes up: dome first, then the mount. Errors are logged
// but never stop the close-up.
type parkingState struct{}

func (parkingState) OnEnter(ctx context.Context, c *Controller) State {
	// A pending park-and-resume request is satisfied by reaching here,
	// whatever actually triggered the move.
	c.run.clearParkRequest()
	if c.dome != nil {
		if err := c.dome.Close(ctx); err != nil {
			c.logger.Error("close dome", "error", err)
		}
	}
	if !c.mount.IsParked() {
		if err := c.mount.Park(ctx); err != nil {
			c.logger.Error("park mount", "error", err)
		}
	}
	return StateParked
}

// parkedState decides whether the night is over or worth another attempt.
type parkedState struct{}

func (parkedState) OnEnter(ctx context.Context, c *Controller) State {
	switch {
	case c.run.RunOnce() || c.run.Interrupted():
		return StateHousekeeping
	case !c.sched.HasUnfinishedObservations():
		c.logger.Info("nothing left to observe, cleaning up")
		return StateHousekeeping
	}
	if res := c.monitor.Check(ctx, time.Now(), safety.ModeObserve); !res.Safe {
		c.logger.Info("conditions still unsafe, cleaning up", "predicate", res.Failed)
		return StateHousekeeping
	}
	c.logger.Info("conditions look good, trying again")
	return StateReady
}

// historyRetention bounds how far back the transition and observation
// history tables are kept.
const historyRetention = 30 * 24 * time.Hour

// housekeepingState is the end-of-night cleanup hook.
type housekeepingState struct{}

func (housekeepingState) OnEnter(ctx context.Context, c *Controller) State {
	c.sched.ResetObservedList()
	if c.store != nil {
		cutoff := time.Now().Add(-historyRetention)
		if n, err := c.store.Prune(ctx, cutoff); err != nil {
			c.logger.Error("prune history", "error", err)
		} else if n > 0 {
			c.logger.Info("pruned history", "rows", n)
		}
	}
	c.logger.Info("housekeeping done")
	return StateSleeping
}
