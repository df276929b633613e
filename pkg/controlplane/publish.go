package controlplane

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/cuemby/gateway/pkg/gatewayerr"
	"github.com/cuemby/gateway/pkg/metrics"
	"github.com/cuemby/gateway/pkg/snapshotstore"
	"github.com/cuemby/gateway/pkg/storage"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/cuemby/gateway/pkg/validate"
	"github.com/google/uuid"
)

// BuildSnapshot assembles the current Snapshot from the entity store.
// Ordering is explicit here rather than relying on bbolt's lexicographic
// key iteration (which sorts by UUID string, bearing no relation to
// creation order or route priority): listeners, pools, targets, TLS
// policies and certificates sort ascending by CreatedAt; routes sort
// descending by Priority, matching the order the runtime builder and
// the route matcher expect the snapshot to already be in.
func BuildSnapshot(store storage.Store) (*types.Snapshot, error) {
	listeners, err := store.ListListeners()
	if err != nil {
		return nil, err
	}
	sort.Slice(listeners, func(i, j int) bool { return listeners[i].CreatedAt.Before(listeners[j].CreatedAt) })

	routes, err := store.ListRoutes()
	if err != nil {
		return nil, err
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Priority > routes[j].Priority })

	pools, err := store.ListUpstreamPools()
	if err != nil {
		return nil, err
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].CreatedAt.Before(pools[j].CreatedAt) })

	targets, err := store.ListUpstreamTargets()
	if err != nil {
		return nil, err
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].CreatedAt.Before(targets[j].CreatedAt) })

	tlsPolicies, err := store.ListTLSPolicies()
	if err != nil {
		return nil, err
	}
	sort.Slice(tlsPolicies, func(i, j int) bool { return tlsPolicies[i].CreatedAt.Before(tlsPolicies[j].CreatedAt) })

	certs, err := store.ListCertificates()
	if err != nil {
		return nil, err
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].CreatedAt.Before(certs[j].CreatedAt) })

	return &types.Snapshot{
		Listeners:       listeners,
		Routes:          routes,
		UpstreamPools:   pools,
		UpstreamTargets: targets,
		TLSPolicies:     tlsPolicies,
		Certificates:    certs,
	}, nil
}

// Validate builds the current snapshot and runs it through the
// validator, returning the ordered list of check failures (empty when
// publishable).
func Validate(store storage.Store, ctx validate.Context) ([]string, error) {
	snap, err := BuildSnapshot(store)
	if err != nil {
		return nil, err
	}
	return validate.Snapshot(snap, ctx), nil
}

// Publish validates the current entity-store contents and, if valid,
// archives whatever version is published and inserts the new one as a
// single bbolt transaction, then swaps it into the live snapshot store
// and records an audit entry. Mirrors the original's publish_config:
// build snapshot -> validate -> archive-then-insert -> apply -> audit.
func Publish(store storage.Store, snapshots *snapshotstore.Store, ctx validate.Context, actor string) (*types.ConfigVersion, error) {
	snap, err := BuildSnapshot(store)
	if err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		return nil, gatewayerr.Internal("failed to build snapshot", err)
	}

	if errs := validate.Snapshot(snap, ctx); len(errs) > 0 {
		metrics.PublishTotal.WithLabelValues("invalid").Inc()
		return nil, gatewayerr.Validation(errs)
	}

	snapJSON, err := json.Marshal(snap)
	if err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		return nil, gatewayerr.Internal("failed to marshal snapshot", err)
	}

	version := &types.ConfigVersion{
		ID:           uuid.New(),
		SnapshotJSON: snapJSON,
		Status:       types.VersionStatusPublished,
		CreatedBy:    actor,
		CreatedAt:    time.Now(),
	}

	if err := store.ArchiveAndPublish(version); err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		return nil, gatewayerr.Internal("failed to persist config version", err)
	}

	snapshots.Apply(snap)
	metrics.PublishTotal.WithLabelValues("success").Inc()
	spawnAudit(store, actor, "publish", map[string]any{"version_id": version.ID})

	return version, nil
}

// Rollback re-publishes an already-archived version: archives whatever
// is currently published, re-marks versionID as published, swaps it
// into the live snapshot store, and records an audit entry.
func Rollback(store storage.Store, snapshots *snapshotstore.Store, versionID uuid.UUID, actor string) (*types.ConfigVersion, error) {
	version, err := store.ArchiveAndMarkPublished(versionID)
	if err != nil {
		metrics.RollbackTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var snap types.Snapshot
	if err := json.Unmarshal(version.SnapshotJSON, &snap); err != nil {
		metrics.RollbackTotal.WithLabelValues("error").Inc()
		return nil, gatewayerr.Internal("failed to unmarshal stored snapshot", err)
	}

	snapshots.Apply(&snap)
	metrics.RollbackTotal.WithLabelValues("success").Inc()
	spawnAudit(store, actor, "rollback", map[string]any{"version_id": version.ID})

	return version, nil
}

// GetPublished returns the wire shape of the currently published
// snapshot, or a NotFound error if nothing has ever been published.
func GetPublished(store storage.Store) (*types.PublishedSnapshotResponse, error) {
	version, err := store.GetPublishedVersion()
	if err != nil {
		return nil, err
	}
	var snap types.Snapshot
	if err := json.Unmarshal(version.SnapshotJSON, &snap); err != nil {
		return nil, gatewayerr.Internal("failed to unmarshal stored snapshot", err)
	}
	id := version.ID
	return &types.PublishedSnapshotResponse{VersionID: &id, Snapshot: snap}, nil
}

// ListVersions returns every stored version, newest first.
func ListVersions(store storage.Store) ([]types.ConfigVersion, error) {
	return store.ListVersions()
}

// GetVersion returns a single stored version by id.
func GetVersion(store storage.Store, id uuid.UUID) (*types.ConfigVersion, error) {
	return store.GetVersion(id)
}
