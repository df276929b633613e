// Package node runs the data-plane side of the node protocol: register
// once, poll the published snapshot, apply it when its version id
// changes, and heartbeat on a separate cadence — the three goroutines
// spec.md's Node Loop names.
package node

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/gateway/pkg/client"
	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/metrics"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

const minInterval = 2 * time.Second

// Loop owns the register/poll/heartbeat goroutines for one node.
type Loop struct {
	client            *client.Client
	nodeID            string
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	cache             *Cache
	apply             func(*types.Snapshot) error

	mu      sync.RWMutex
	current *uuid.UUID
}

// NewLoop builds a Loop. pollInterval and heartbeatInterval are floored
// at 2s regardless of what's requested. apply is called with the new
// snapshot whenever the poll observes a version id change; it's
// responsible for compiling and swapping the proxy's runtime.Config.
func NewLoop(c *client.Client, nodeID string, pollInterval, heartbeatInterval time.Duration, cache *Cache, apply func(*types.Snapshot) error) *Loop {
	if pollInterval < minInterval {
		pollInterval = minInterval
	}
	if heartbeatInterval < minInterval {
		heartbeatInterval = minInterval
	}
	return &Loop{
		client:            c,
		nodeID:            nodeID,
		pollInterval:      pollInterval,
		heartbeatInterval: heartbeatInterval,
		cache:             cache,
		apply:             apply,
	}
}

// LoadCache applies whatever snapshot was last persisted to the local
// cache, if any, so the proxy has something to serve before the first
// poll completes. Safe to call with an empty cache (a no-op).
func (l *Loop) LoadCache() error {
	versionID, snap, ok, err := l.cache.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := l.apply(snap); err != nil {
		return err
	}
	l.mu.Lock()
	l.current = versionID
	l.mu.Unlock()
	return nil
}

// Run starts the register, poll, and heartbeat goroutines and blocks
// until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		l.register(ctx)
	}()
	go func() {
		defer wg.Done()
		l.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		l.heartbeatLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
}

func (l *Loop) versionID() *uuid.UUID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *Loop) register(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := l.client.RegisterNode(reqCtx, l.nodeID, l.versionID()); err != nil {
		log.WithComponent("node").Warn().Err(err).Str("node_id", l.nodeID).Msg("node register failed")
		return
	}
	log.WithComponent("node").Info().Str("node_id", l.nodeID).Msg("node registered")
}

func (l *Loop) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.poll(ctx)
		}
	}
}

func (l *Loop) poll(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	published, err := l.client.GetPublished(reqCtx)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return
		}
		log.WithComponent("node").Warn().Err(err).Msg("snapshot poll failed")
		return
	}

	current := l.versionID()
	if versionsEqual(current, published.VersionID) {
		return
	}

	if err := l.apply(&published.Snapshot); err != nil {
		log.WithComponent("node").Warn().Err(err).Msg("failed to apply polled snapshot")
		return
	}
	if err := l.cache.Save(published.VersionID, &published.Snapshot); err != nil {
		log.WithComponent("node").Warn().Err(err).Msg("failed to persist snapshot to local cache")
	}

	l.mu.Lock()
	l.current = published.VersionID
	l.mu.Unlock()

	metrics.NodeLastAppliedVersionTimestamp.Set(float64(time.Now().Unix()))
	log.WithComponent("node").Info().Str("node_id", l.nodeID).Msg("applied new published snapshot")
}

func (l *Loop) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(l.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.heartbeat(ctx)
		}
	}
}

func (l *Loop) heartbeat(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := l.client.HeartbeatNode(reqCtx, l.nodeID, l.versionID()); err != nil {
		log.WithComponent("node").Warn().Err(err).Str("node_id", l.nodeID).Msg("heartbeat failed")
	}
}

func versionsEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
