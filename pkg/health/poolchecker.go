package health

import (
	"context"
	"net"
	"time"

	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/runtime"
	"github.com/google/uuid"
)

// tickInterval is how often the PoolChecker wakes to see whether any
// pool's own interval has elapsed. It is not the check interval
// itself — each pool is probed on its own cadence, read from its
// health_check spec.
const tickInterval = time.Second

// ConfigSource supplies the currently active runtime.Config. Swapped
// out by the data plane whenever a new snapshot is applied.
type ConfigSource func() *runtime.Config

// PoolChecker runs TCP health checks against every upstream pool's
// targets, each pool on its own interval rather than one shared
// global loop — a pool configured for a 2s check doesn't wait on a
// pool configured for 30s, and vice versa.
type PoolChecker struct {
	source    ConfigSource
	lastCheck map[uuid.UUID]time.Time
}

// NewPoolChecker creates a checker that reads the active Config from
// source on every tick.
func NewPoolChecker(source ConfigSource) *PoolChecker {
	return &PoolChecker{
		source:    source,
		lastCheck: make(map[uuid.UUID]time.Time),
	}
}

// Run blocks, ticking once per second, until ctx is canceled.
func (p *PoolChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.tick(ctx, now)
		}
	}
}

func (p *PoolChecker) tick(ctx context.Context, now time.Time) {
	cfg := p.source()
	if cfg == nil {
		return
	}

	for poolID, spec := range cfg.Pools() {
		interval := time.Duration(spec.IntervalSecs) * time.Second
		if interval <= 0 {
			interval = defaultHealthCheckInterval
		}
		last, seen := p.lastCheck[poolID]
		if seen && now.Sub(last) < interval {
			continue
		}
		p.lastCheck[poolID] = now

		timeout := time.Duration(spec.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = defaultHealthCheckTimeout
		}
		p.checkPool(ctx, cfg.Targets(poolID), timeout)
	}
}

const (
	defaultHealthCheckInterval = 5 * time.Second
	defaultHealthCheckTimeout  = 2 * time.Second
)

func (p *PoolChecker) checkPool(ctx context.Context, targets []*runtime.TargetRuntime, timeout time.Duration) {
	for _, target := range targets {
		go func(target *runtime.TargetRuntime) {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			healthy, err := probeTCP(checkCtx, target.Address())
			target.SetHealthy(healthy)
			if !healthy {
				log.Debug("upstream target health check failed: " + target.Address() + ": " + err.Error())
			}
		}(target)
	}
}

// probeTCP reports a target healthy if a TCP connection to address
// succeeds before ctx is done. Checks are immediate and binary — a
// single failed probe marks a target unhealthy, a single successful
// one marks it healthy again; there is no failure-streak hysteresis.
func probeTCP(ctx context.Context, address string) (healthy bool, err error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false, err
	}
	_ = conn.Close()
	return true, nil
}
