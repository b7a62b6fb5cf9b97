package hardware

import (
	"context"
	"sync"
)

// SimDome is a software dome that opens and closes instantly.
type SimDome struct {
	mu        sync.Mutex
	connected bool
	open      bool
}

var _ Dome = (*SimDome)(nil)

// NewSimDome returns a closed, disconnected dome.
func NewSimDome() *SimDome { return &SimDome{} }

func (d *SimDome) Connect(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

func (d *SimDome) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.open = true
	return nil
}

func (d *SimDome) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.open = false
	return nil
}

func (d *SimDome) IsOpen() bool   { d.mu.Lock(); defer d.mu.Unlock(); return d.open }
func (d *SimDome) IsClosed() bool { return !d.IsOpen() }

func (d *SimDome) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.connected:
		return "disconnected"
	case d.open:
		return "open"
	default:
		return "closed"
	}
}
