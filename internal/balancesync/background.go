package balancesync

import (
	"context"
	"time"
)

// StartBackgroundSync starts a loop that invalidates the cache every
// interval (DefaultPollInterval when interval <= 0). A second call while the
// loop runs is a no-op.
func (c *Controller) StartBackgroundSync(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.bgCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.bgCancel, c.bgDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Invalidate(ctx, TriggerPoll)
			}
		}
	}()
	c.log.Infow("background sync started", "interval", interval)
}

// StopBackgroundSync stops the loop and waits for it to exit.
func (c *Controller) StopBackgroundSync() {
	c.bgMu.Lock()
	cancel, done := c.bgCancel, c.bgDone
	c.bgCancel, c.bgDone = nil, nil
	c.bgMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.log.Info("background sync stopped")
}

// BackgroundSyncRunning reports whether the poll loop is active.
func (c *Controller) BackgroundSyncRunning() bool {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	return c.bgCancel != nil
}
