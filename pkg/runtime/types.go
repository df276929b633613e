package runtime

import (
	"crypto/tls"
	"encoding/json"
	"sync/atomic"

	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

// PortRange is an inclusive [Start, End] bound on bindable ports.
type PortRange struct {
	Start int
	End   int
}

func (r PortRange) contains(port int) bool {
	return port >= r.Start && port <= r.End
}

// TargetRuntime wraps one upstream target with the mutable state a
// load-balancing policy needs: whether the last health check passed,
// and how many requests are currently in flight to it.
type TargetRuntime struct {
	Target  types.UpstreamTarget
	healthy atomic.Bool
	inflight atomic.Int64
}

func newTargetRuntime(target types.UpstreamTarget) *TargetRuntime {
	t := &TargetRuntime{Target: target}
	t.healthy.Store(true)
	return t
}

// Weight returns the target's configured weight, floored at 1 so a
// zero-weight target still participates rather than being divided out.
func (t *TargetRuntime) Weight() int {
	if t.Target.Weight < 1 {
		return 1
	}
	return t.Target.Weight
}

func (t *TargetRuntime) Address() string { return t.Target.Address }

func (t *TargetRuntime) Healthy() bool { return t.healthy.Load() }

// SetHealthy is called by the health checker after each probe.
func (t *TargetRuntime) SetHealthy(healthy bool) { t.healthy.Store(healthy) }

func (t *TargetRuntime) Inflight() int64 { return t.inflight.Load() }

func (t *TargetRuntime) acquire() { t.inflight.Add(1) }

// Release decrements the in-flight counter. Call once per request that
// previously resolved to this target, whether it succeeded or not.
func (t *TargetRuntime) Release() { t.inflight.Add(-1) }

// ListenerRuntime is the subset of a Listener the data plane needs at
// request time.
type ListenerRuntime struct {
	ID       uuid.UUID
	Port     int
	Protocol types.ListenerProtocol
}

// PoolHealthCheckSpec carries a pool's decoded health check tuning,
// defaults applied when the snapshot left them unset.
type PoolHealthCheckSpec struct {
	IntervalSecs int64
	TimeoutMS    int64
}

const (
	defaultHealthIntervalSecs = 5
	defaultHealthTimeoutMS    = 2000
)

func decodeHealthCheck(raw json.RawMessage) PoolHealthCheckSpec {
	spec := PoolHealthCheckSpec{
		IntervalSecs: defaultHealthIntervalSecs,
		TimeoutMS:    defaultHealthTimeoutMS,
	}
	if len(raw) == 0 {
		return spec
	}
	var in types.PoolHealthCheckSpec
	if err := json.Unmarshal(raw, &in); err != nil {
		return spec
	}
	if in.IntervalSec != nil {
		spec.IntervalSecs = *in.IntervalSec
	}
	if in.TimeoutMS != nil {
		spec.TimeoutMS = *in.TimeoutMS
	}
	return spec
}

// poolRuntime holds one upstream pool's targets and load-balancing
// state. cursor is shared by round-robin and weighted selection so
// repeated picks rotate rather than always starting from zero.
type poolRuntime struct {
	targets []*TargetRuntime
	cursor  atomic.Uint64
	policy  types.PoolPolicy
	health  PoolHealthCheckSpec
}

// Config is the compiled, read-only view of a published snapshot. A
// Config is never mutated after Build returns it; callers replace their
// reference wholesale when a new one arrives.
type Config struct {
	Listeners        []ListenerRuntime
	ListenersByPort  map[int]ListenerRuntime
	TLSByPort        map[int]*tls.Certificate
	RoutesByListener map[uuid.UUID][]RouteRule
	pools            map[uuid.UUID]*poolRuntime
}

// Build compiles snapshot into a Config. httpRange/httpsRange, when
// non-nil, drop any listener bound outside its protocol's range or
// overlapping the other protocol's range — the runtime enforces the
// same port discipline the validator already checked at publish time,
// so a Config built from a stale or hand-edited snapshot stays safe to
// serve from.
func Build(snapshot *types.Snapshot, defaultCert *tls.Certificate, httpRange, httpsRange *PortRange) *Config {
	pools := make(map[uuid.UUID]*poolRuntime, len(snapshot.UpstreamPools))
	for _, pool := range snapshot.UpstreamPools {
		var targets []*TargetRuntime
		for _, target := range snapshot.UpstreamTargets {
			if target.PoolID != pool.ID || !target.Enabled {
				continue
			}
			targets = append(targets, newTargetRuntime(target))
		}
		policy := pool.Policy
		switch policy {
		case types.PolicyWeighted, types.PolicyRoundRobin, types.PolicyLeastConn:
		default:
			log.Warn("invalid pool policy, defaulting to weighted")
			policy = types.PolicyWeighted
		}
		pools[pool.ID] = &poolRuntime{
			targets: targets,
			policy:  policy,
			health:  decodeHealthCheck(pool.HealthCheck),
		}
	}

	routesByListener := buildRoutes(snapshot)

	listeners, listenersByPort := buildListeners(snapshot, httpRange, httpsRange)

	tlsByPort := buildTLSByPort(snapshot, listeners, listenersByPort, httpsRange, defaultCert)

	return &Config{
		Listeners:        listeners,
		ListenersByPort:  listenersByPort,
		TLSByPort:        tlsByPort,
		RoutesByListener: routesByListener,
		pools:            pools,
	}
}

// Pools exposes read-only pool membership for the health checker,
// keyed by pool ID, without exposing the load-balancing internals.
func (c *Config) Pools() map[uuid.UUID]PoolHealthCheckSpec {
	out := make(map[uuid.UUID]PoolHealthCheckSpec, len(c.pools))
	for id, p := range c.pools {
		out[id] = p.health
	}
	return out
}

// Targets returns the targets belonging to pool id, for the health
// checker to probe.
func (c *Config) Targets(id uuid.UUID) []*TargetRuntime {
	pool, ok := c.pools[id]
	if !ok {
		return nil
	}
	return pool.targets
}
