package controlplane

import (
	"testing"
	"time"

	"github.com/cuemby/gateway/pkg/snapshotstore"
	"github.com/cuemby/gateway/pkg/storage"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/cuemby/gateway/pkg/validate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func defaultTestCtx() validate.Context {
	return validate.Context{
		HTTPPortRange:  validate.PortRange{Start: 8000, End: 8099},
		HTTPSPortRange: validate.PortRange{Start: 8400, End: 8499},
	}
}

func seedPublishableSnapshot(t *testing.T, store storage.Store) types.Listener {
	t.Helper()
	pool := &types.UpstreamPool{ID: uuid.New(), Name: "web", Policy: types.PolicyRoundRobin, CreatedAt: time.Now()}
	require.NoError(t, store.CreateUpstreamPool(pool))
	target := &types.UpstreamTarget{ID: uuid.New(), PoolID: pool.ID, Address: "127.0.0.1:9000", Weight: 1, Enabled: true, CreatedAt: time.Now()}
	require.NoError(t, store.CreateUpstreamTarget(target))
	listener := types.Listener{ID: uuid.New(), Name: "http", Port: 8050, Protocol: types.ProtocolHTTP, Enabled: true, CreatedAt: time.Now()}
	require.NoError(t, store.CreateListener(&listener))
	return listener
}

func TestBuildSnapshotOrdersRoutesByPriorityDescending(t *testing.T) {
	store := newTestStore(t)
	listenerID := uuid.New()
	low := types.Route{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPort, Priority: 1, CreatedAt: time.Now()}
	high := types.Route{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPort, Priority: 9, CreatedAt: time.Now()}
	require.NoError(t, store.CreateRoute(&low))
	require.NoError(t, store.CreateRoute(&high))

	snap, err := BuildSnapshot(store)
	require.NoError(t, err)
	require.Len(t, snap.Routes, 2)
	require.Equal(t, 9, snap.Routes[0].Priority)
	require.Equal(t, 1, snap.Routes[1].Priority)
}

func TestPublishRejectsInvalidSnapshot(t *testing.T) {
	store := newTestStore(t)
	listener := types.Listener{ID: uuid.New(), Port: 70000, Protocol: types.ProtocolHTTP, Enabled: true, CreatedAt: time.Now()}
	require.NoError(t, store.CreateListener(&listener))

	snapshots := snapshotstore.New(&types.Snapshot{})
	_, err := Publish(store, snapshots, defaultTestCtx(), "alice")
	require.Error(t, err)
}

func TestPublishThenRollbackRoundTrips(t *testing.T) {
	store := newTestStore(t)
	seedPublishableSnapshot(t, store)

	snapshots := snapshotstore.New(&types.Snapshot{})
	first, err := Publish(store, snapshots, defaultTestCtx(), "alice")
	require.NoError(t, err)
	require.Equal(t, types.VersionStatusPublished, first.Status)

	second, err := Publish(store, snapshots, defaultTestCtx(), "bob")
	require.NoError(t, err)

	firstAfter, err := store.GetVersion(first.ID)
	require.NoError(t, err)
	require.Equal(t, types.VersionStatusArchived, firstAfter.Status)

	rolledBack, err := Rollback(store, snapshots, first.ID, "carol")
	require.NoError(t, err)
	require.Equal(t, types.VersionStatusPublished, rolledBack.Status)

	secondAfter, err := store.GetVersion(second.ID)
	require.NoError(t, err)
	require.Equal(t, types.VersionStatusArchived, secondAfter.Status)

	published, err := GetPublished(store)
	require.NoError(t, err)
	require.Equal(t, first.ID, *published.VersionID)
}

func TestGetPublishedNotFoundBeforeAnyPublish(t *testing.T) {
	store := newTestStore(t)
	_, err := GetPublished(store)
	require.Error(t, err)
}

func TestListVersionsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	seedPublishableSnapshot(t, store)
	snapshots := snapshotstore.New(&types.Snapshot{})

	v1, err := Publish(store, snapshots, defaultTestCtx(), "alice")
	require.NoError(t, err)
	v2, err := Publish(store, snapshots, defaultTestCtx(), "alice")
	require.NoError(t, err)

	versions, err := ListVersions(store)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, v2.ID, versions[0].ID)
	require.Equal(t, v1.ID, versions[1].ID)
}
