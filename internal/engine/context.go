package engine

import "sync"

// Context carries the mutable run state of one observing session. It is
// owned by the Controller and passed to state handlers; there are no
// package-level singletons. All accessors are safe for concurrent use so
// status can be queried while the loop runs.
type Context struct {
	mu          sync.Mutex
	current     State
	next        State
	doStates    bool
	runOnce     bool
	interrupted bool
	parkPending bool
	connected   bool
}

func newContext(runOnce bool) *Context {
	return &Context{
		current:  StateSleeping,
		next:     StateReady,
		doStates: true,
		runOnce:  runOnce,
	}
}

// CurrentState is the state whose entry action ran last.
func (c *Context) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NextState is the destination requested by the last entry action.
func (c *Context) NextState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

func (c *Context) setCurrent(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
}

func (c *Context) setNext(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = s
}

// DoStates reports whether the loop should keep running.
func (c *Context) DoStates() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doStates
}

func (c *Context) stopStates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doStates = false
}

// RunOnce reports whether the session ends after one full park cycle.
func (c *Context) RunOnce() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runOnce
}

// Interrupted reports whether an asynchronous park request is pending.
func (c *Context) Interrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupted
}

func (c *Context) interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupted = true
}

// ParkPending reports whether a park-and-resume request is waiting.
func (c *Context) ParkPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parkPending
}

func (c *Context) requestPark() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parkPending = true
}

func (c *Context) clearParkRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parkPending = false
}

// Connected reports whether hardware collaborators are connected.
func (c *Context) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Context) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}
