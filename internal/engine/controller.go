package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/astroward/nightwatch/internal/hardware"
	"github.com/astroward/nightwatch/internal/safety"
	"github.com/astroward/nightwatch/internal/scheduler"
	"github.com/astroward/nightwatch/internal/store"
	"github.com/astroward/nightwatch/internal/telemetry"
)

// Options wires a Controller. Scheduler, Monitor, Mount and at least one
// Camera are required; Dome, Store and Telemetry are optional.
type Options struct {
	Scheduler *scheduler.Scheduler
	Monitor   *safety.Monitor
	Mount     hardware.Mount
	Cameras   []hardware.Camera
	Dome      hardware.Dome
	Store     *store.Store
	Telemetry *telemetry.Emitter
	Logger    *slog.Logger

	// Table overrides the default edge table.
	Table *Table

	// Delay is the pause between loop iterations. Zero takes one second.
	Delay time.Duration

	// SlewTimeout bounds a blocking slew. Zero takes three minutes.
	SlewTimeout time.Duration

	// CameraGrace is how long past the exposure time to wait for a camera
	// before giving up on it. Zero takes one minute.
	CameraGrace time.Duration

	// RunOnce ends the session after a single full park cycle.
	RunOnce bool

	// ExitWhenDone ends the session once no unfinished observations remain
	// instead of idling until conditions change.
	ExitWhenDone bool

	// RereadFields asks the scheduler to reload the catalog file on every
	// selection.
	RereadFields bool
}

// Controller runs the state machine. A single goroutine drives Run; Stop
// and Status may be called from any goroutine.
type Controller struct {
	sched    *scheduler.Scheduler
	monitor  *safety.Monitor
	mount    hardware.Mount
	cameras  []hardware.Camera
	dome     hardware.Dome
	store    *store.Store
	tele     *telemetry.Emitter
	logger   *slog.Logger
	table    *Table
	registry map[State]StateHandler

	delay        time.Duration
	slewTimeout  time.Duration
	cameraGrace  time.Duration
	exitWhenDone bool
	rereadFields bool

	run *Context
}

// New builds a Controller. The handler registry is populated here, once,
// from the closed state set.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Table == nil {
		opts.Table = DefaultTable()
	}
	if opts.Delay == 0 {
		opts.Delay = time.Second
	}
	if opts.SlewTimeout == 0 {
		opts.SlewTimeout = 3 * time.Minute
	}
	if opts.CameraGrace == 0 {
		opts.CameraGrace = time.Minute
	}
	return &Controller{
		sched:        opts.Scheduler,
		monitor:      opts.Monitor,
		mount:        opts.Mount,
		cameras:      opts.Cameras,
		dome:         opts.Dome,
		store:        opts.Store,
		tele:         opts.Telemetry,
		logger:       opts.Logger,
		table:        opts.Table,
		registry:     newRegistry(),
		delay:        opts.Delay,
		slewTimeout:  opts.SlewTimeout,
		cameraGrace:  opts.CameraGrace,
		exitWhenDone: opts.ExitWhenDone,
		rereadFields: opts.RereadFields,
		run:          newContext(opts.RunOnce),
	}
}

// Context exposes the run state for status queries.
func (c *Controller) Context() *Context { return c.run }

// Stop requests a graceful end of the session: the loop parks the unit,
// runs housekeeping, and exits. In-flight hardware waits are not killed;
// they finish within their own bounds first.
func (c *Controller) Stop() {
	c.run.interrupt()
}

// Park requests an immediate move to parking without ending the session:
// once parked, the unit resumes its normal wait-and-retry cycle.
func (c *Controller) Park() {
	c.run.requestPark()
}

// Run drives the loop until the session ends or ctx is canceled. Every
// iteration re-evaluates safety, resolves the requested transition against
// the edge table with parking as the fallback, runs the destination's entry
// action, and sleeps the configured delay.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	c.emit(telemetry.Event{Kind: telemetry.KindRunStart})

	for c.run.DoStates() {
		if ctx.Err() != nil {
			c.logger.Info("run context canceled, parking before exit")
			c.shutdownPark()
			break
		}

		cur := c.run.CurrentState()
		next := c.run.NextState()

		res := c.monitor.Check(ctx, time.Now(), safety.ModeObserve)
		if exposed(cur) {
			// The unit is out in the open: anything wrong heads straight
			// for parking.
			if !res.Safe {
				c.logger.Warn("unsafe conditions, parking", "predicate", res.Failed)
				c.emit(telemetry.Event{Kind: telemetry.KindSafety, State: cur.String(), Data: res})
				next = StateParking
			} else if c.run.Interrupted() {
				c.logger.Info("park requested, heading to parking")
				next = StateParking
			} else if c.run.ParkPending() {
				c.logger.Info("park requested, parking before resuming")
				c.run.clearParkRequest()
				next = StateParking
			}
		} else if exposed(next) && (!res.Safe || c.run.Interrupted()) {
			// Closed up and asked to open: refuse while conditions are bad,
			// and give up entirely if this session will never get a chance.
			if !res.Safe {
				c.logger.Info("waiting for safe conditions", "predicate", res.Failed)
			}
			if c.run.RunOnce() || c.run.Interrupted() {
				c.run.stopStates()
				break
			}
			c.sleep(ctx, c.delay)
			continue
		}

		dest := next
		if !c.table.Allowed(cur, dest) {
			// The machine never stalls on an undefined transition.
			c.logger.Warn("illegal transition, falling back to parking",
				"from", cur, "to", dest)
			dest = StateParking
		}

		c.recordTransition(ctx, cur, dest)
		c.run.setCurrent(dest)
		c.run.setNext(c.enter(ctx, dest))

		if c.run.DoStates() {
			c.sleep(ctx, c.delay)
		}
	}

	c.emit(telemetry.Event{Kind: telemetry.KindRunDone})
	return nil
}

// exposed reports whether a state has the unit open to the sky with the
// mount unparked.
func exposed(s State) bool {
	switch s {
	case StateReady, StateScheduling, StateSlewing, StateObserving, StateAnalyzing:
		return true
	}
	return false
}

// connect brings up the hardware collaborators before the first iteration.
func (c *Controller) connect(ctx context.Context) error {
	if err := c.mount.Connect(ctx); err != nil {
		return err
	}
	if err := c.mount.Initialize(ctx); err != nil {
		return err
	}
	if c.dome != nil {
		if err := c.dome.Connect(ctx); err != nil {
			return err
		}
	}
	c.run.setConnected(true)
	return nil
}

// enter runs a state's entry action. A panic inside a handler is a genuine
// fault: it is logged and converted into a move toward parking, exactly
// like an unsafe condition.
func (c *Controller) enter(ctx context.Context, s State) (next State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("entry action fault", "state", s, "panic", r)
			c.emit(telemetry.Event{Kind: telemetry.KindFault, State: s.String(),
				Data: map[string]any{"panic": r}})
			next = StateParking
		}
	}()
	h, ok := c.registry[s]
	if !ok {
		c.logger.Error("no handler registered", "state", s)
		return StateParking
	}
	return h.OnEnter(ctx, c)
}

func (c *Controller) recordTransition(ctx context.Context, from, to State) {
	if from == to {
		return
	}
	c.logger.Info("state transition", "from", from, "to", to)
	if c.store != nil {
		if err := c.store.LogTransition(ctx, from.String(), to.String()); err != nil {
			c.logger.Error("record transition", "error", err)
		}
	}
	c.emit(telemetry.Event{Kind: telemetry.KindTransition, State: to.String(),
		Data: map[string]string{"from": from.String(), "to": to.String()}})
}

// shutdownPark closes up directly when the loop is torn down by context
// cancellation rather than by its own state flow.
func (c *Controller) shutdownPark() {
	bg, cancel := context.WithTimeout(context.Background(), c.slewTimeout)
	defer cancel()
	if c.dome != nil {
		if err := c.dome.Close(bg); err != nil {
			c.logger.Error("close dome on shutdown", "error", err)
		}
	}
	if !c.mount.IsParked() {
		if err := c.mount.Park(bg); err != nil {
			c.logger.Error("park mount on shutdown", "error", err)
		}
	}
	c.run.stopStates()
}

func (c *Controller) emit(evt telemetry.Event) {
	if err := c.tele.Emit(evt); err != nil {
		c.logger.Error("emit telemetry", "error", err)
	}
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
