package runtime

import (
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

// PickTarget selects a target from pool poolID according to its
// configured policy and increments its in-flight counter. The caller
// must call Release on the returned target exactly once. All policies
// fail open: if no target is currently marked healthy, they fall back
// to considering every target rather than refusing the request.
func (c *Config) PickTarget(poolID uuid.UUID) *TargetRuntime {
	pool, ok := c.pools[poolID]
	if !ok {
		return nil
	}
	var target *TargetRuntime
	switch pool.policy {
	case types.PolicyRoundRobin:
		target = pool.pickRoundRobin()
	case types.PolicyLeastConn:
		target = pool.pickLeastConn()
	default:
		target = pool.pickWeighted()
	}
	if target != nil {
		target.acquire()
	}
	return target
}

func (p *poolRuntime) pickWeighted() *TargetRuntime {
	if len(p.targets) == 0 {
		return nil
	}

	totalAll := 0
	for _, t := range p.targets {
		totalAll += t.Weight()
	}
	if totalAll == 0 {
		return nil
	}

	totalHealthy := 0
	for _, t := range p.targets {
		if t.Healthy() {
			totalHealthy += t.Weight()
		}
	}
	useAll := totalHealthy == 0
	totalWeight := totalHealthy
	if useAll {
		totalWeight = totalAll
	}

	cursor := int(p.cursor.Add(1)-1) % totalWeight
	for _, t := range p.targets {
		if !t.Healthy() && !useAll {
			continue
		}
		weight := t.Weight()
		if cursor < weight {
			return t
		}
		cursor -= weight
	}
	return p.targets[0]
}

func (p *poolRuntime) pickRoundRobin() *TargetRuntime {
	n := len(p.targets)
	if n == 0 {
		return nil
	}
	start := int(p.cursor.Add(1)-1) % n

	for offset := 0; offset < n; offset++ {
		t := p.targets[(start+offset)%n]
		if t.Healthy() {
			return t
		}
	}
	return p.targets[start]
}

func (p *poolRuntime) pickLeastConn() *TargetRuntime {
	n := len(p.targets)
	if n == 0 {
		return nil
	}

	minHealthy, anyHealthy := int64(0), false
	for _, t := range p.targets {
		if !t.Healthy() {
			continue
		}
		if !anyHealthy || t.Inflight() < minHealthy {
			minHealthy = t.Inflight()
			anyHealthy = true
		}
	}

	useAll := !anyHealthy
	min := minHealthy
	if useAll {
		min = p.targets[0].Inflight()
		for _, t := range p.targets {
			if t.Inflight() < min {
				min = t.Inflight()
			}
		}
	}

	start := int(p.cursor.Add(1)-1) % n
	for offset := 0; offset < n; offset++ {
		t := p.targets[(start+offset)%n]
		if (useAll || t.Healthy()) && t.Inflight() == min {
			return t
		}
	}
	return p.targets[start]
}
