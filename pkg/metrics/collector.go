package metrics

import (
	"time"

	"github.com/cuemby/gateway/pkg/runtime"
)

// ConfigSource returns the data plane's currently active runtime
// config, or nil if it has not been built yet.
type ConfigSource func() *runtime.Config

// Collector periodically refreshes gateway_target_healthy from the
// live runtime config, since health state lives on atomic fields inside
// runtime.TargetRuntime rather than being pushed to Prometheus directly.
type Collector struct {
	source ConfigSource
	stopCh chan struct{}
}

// NewCollector builds a Collector reading config from source.
func NewCollector(source ConfigSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins the refresh loop on a 15-second tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the refresh loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	cfg := c.source()
	if cfg == nil {
		return
	}

	for poolID := range cfg.Pools() {
		for _, target := range cfg.Targets(poolID) {
			value := 0.0
			if target.Healthy() {
				value = 1.0
			}
			TargetHealthy.WithLabelValues(poolID.String(), target.Target.ID.String()).Set(value)
		}
	}
}
