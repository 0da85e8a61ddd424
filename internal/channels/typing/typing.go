// Package typing keeps a platform typing indicator alive while a reply is
// being produced. Platform indicators expire on their own (Discord's lasts
// about ten seconds), so the controller re-fires StartFn on an interval
// until Stop is called or MaxDuration elapses.
package typing

import (
	"sync"
	"time"
)

// Options configures a Controller.
type Options struct {
	// MaxDuration is the hard cap: the indicator stops on its own after
	// this long even if Stop never arrives.
	MaxDuration time.Duration

	// KeepaliveInterval is how often StartFn is re-fired. Must be shorter
	// than the platform's indicator lifetime.
	KeepaliveInterval time.Duration

	// StartFn triggers one indicator pulse on the platform. Errors are
	// ignored; the indicator is cosmetic.
	StartFn func() error
}

// Controller drives the typing indicator for one chat. Start fires
// immediately and keeps the indicator alive in the background; Stop is
// idempotent and safe from any goroutine.
type Controller struct {
	opts Options
	stop chan struct{}
	once sync.Once
}

func New(opts Options) *Controller {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = 9 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 60 * time.Second
	}
	return &Controller{opts: opts, stop: make(chan struct{})}
}

// Start fires the first pulse and launches the keepalive loop.
func (c *Controller) Start() {
	if c.opts.StartFn == nil {
		return
	}
	_ = c.opts.StartFn()

	go func() {
		ticker := time.NewTicker(c.opts.KeepaliveInterval)
		defer ticker.Stop()
		deadline := time.NewTimer(c.opts.MaxDuration)
		defer deadline.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-deadline.C:
				return
			case <-ticker.C:
				_ = c.opts.StartFn()
			}
		}
	}()
}

// Stop ends the keepalive loop. Safe to call more than once.
func (c *Controller) Stop() {
	c.once.Do(func() { close(c.stop) })
}
