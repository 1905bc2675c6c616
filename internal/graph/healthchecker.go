package graph

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/attendly/attendly/server/internal/health"
)

// ClientHealthChecker monitors the Graph API by pinging the directory.
type ClientHealthChecker struct {
	client       Client
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

func NewClientHealthChecker(c Client, log zerolog.Logger, probeTimeout time.Duration) *ClientHealthChecker {
	hc := &ClientHealthChecker{client: c, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0) // start unhealthy until first successful probe
	return hc
}

func (c *ClientHealthChecker) Name() string    { return "graph" }
func (c *ClientHealthChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

func (c *ClientHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		to := c.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()
		p, ok := any(c.client).(health.HealthPinger)
		if !ok {
			// fakes without a ping are considered healthy
			c.healthy.Store(1)
			return
		}
		if err := p.HealthPing(checkCtx); err != nil {
			c.healthy.Store(0)
			c.log.Error().Str("checker", c.Name()).Err(err).Msg("graph health check failed")
			return
		}
		c.healthy.Store(1)
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
