package call

import (
	"log/slog"
	"time"
)

// Ticker is the part of time.Ticker the watchdog needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// startWatchdogLocked starts polling for inactivity. Caller holds mu.
func (c *Controller) startWatchdogLocked() {
	if c.watchdogStop != nil {
		return
	}
	stop := make(chan struct{})
	c.watchdogStop = stop
	t := c.opts.NewTicker(c.opts.WatchdogInterval)
	c.watchdogWG.Add(1)
	go c.watch(t, stop)
}

// stopWatchdogLocked signals the watchdog goroutine to exit. Caller holds mu.
func (c *Controller) stopWatchdogLocked() {
	if c.watchdogStop != nil {
		close(c.watchdogStop)
		c.watchdogStop = nil
	}
}

func (c *Controller) watch(t Ticker, stop <-chan struct{}) {
	defer c.watchdogWG.Done()
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if !c.checkInactivity() {
				return
			}
		}
	}
}

// checkInactivity finishes an idle call and reports whether polling continues.
func (c *Controller) checkInactivity() bool {
	c.mu.Lock()
	if c.closed || c.status != StatusActive {
		c.mu.Unlock()
		return false
	}
	idle := c.opts.Now().Sub(c.lastActivity)
	if idle <= c.opts.InactivityTimeout {
		c.mu.Unlock()
		return true
	}
	finished := c.finishLocked(ReasonInactivity)
	c.mu.Unlock()

	c.log.Info("call inactive, disconnecting", slog.Duration("idle", idle))
	if finished {
		c.stopTransport()
		c.afterFinish()
	}
	return false
}
