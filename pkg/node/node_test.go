package node

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/gateway/pkg/acme"
	"github.com/cuemby/gateway/pkg/client"
	"github.com/cuemby/gateway/pkg/controlplane"
	"github.com/cuemby/gateway/pkg/snapshotstore"
	"github.com/cuemby/gateway/pkg/storage"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/cuemby/gateway/pkg/validate"
	"github.com/stretchr/testify/require"
)

func newTestControlPlane(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := validate.Context{
		HTTPPortRange:  validate.PortRange{Start: 8000, End: 8099},
		HTTPSPortRange: validate.PortRange{Start: 8400, End: 8499},
	}
	srv := controlplane.NewServer(store, snapshotstore.New(&types.Snapshot{}), acme.NewChallengeStore(), ctx)
	return httptest.NewServer(srv.Handler())
}

func TestRegisterSucceedsAgainstLiveControlPlane(t *testing.T) {
	ts := newTestControlPlane(t)
	defer ts.Close()

	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	c := client.NewClient(ts.URL, "node-test")
	var applied *types.Snapshot
	l := NewLoop(c, "node-1", time.Second, time.Second, cache, func(s *types.Snapshot) error {
		applied = s
		return nil
	})

	l.register(context.Background())

	record, err := c.HeartbeatNode(context.Background(), "node-1", nil)
	require.NoError(t, err)
	require.Equal(t, "node-1", record.NodeID)
	require.Nil(t, applied)
}

func TestPollAppliesSnapshotOnVersionChangeAndCachesIt(t *testing.T) {
	ts := newTestControlPlane(t)
	defer ts.Close()

	c := client.NewClient(ts.URL, "node-test")
	ctx := context.Background()

	pool, err := c.CreatePool(ctx, client.CreatePoolRequest{Name: "web", Policy: types.PolicyRoundRobin})
	require.NoError(t, err)
	_, err = c.CreateTarget(ctx, pool.ID, client.CreateTargetRequest{Address: "127.0.0.1:9000", Weight: 1})
	require.NoError(t, err)
	listener, err := c.CreateListener(ctx, client.CreateListenerRequest{Name: "http", Port: 8050, Protocol: types.ProtocolHTTP})
	require.NoError(t, err)
	_, err = c.CreateRoute(ctx, client.CreateRouteRequest{ListenerID: listener.ID, Kind: types.RouteKindPort, Priority: 1, UpstreamPoolID: pool.ID})
	require.NoError(t, err)
	version, err := c.PublishConfig(ctx)
	require.NoError(t, err)

	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	var applied *types.Snapshot
	l := NewLoop(c, "node-1", time.Second, time.Second, cache, func(s *types.Snapshot) error {
		applied = s
		return nil
	})

	l.poll(ctx)

	require.NotNil(t, applied)
	require.Len(t, applied.Listeners, 1)
	require.Equal(t, version.ID, *l.versionID())

	cachedVersion, cachedSnap, ok, err := cache.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, version.ID, *cachedVersion)
	require.Len(t, cachedSnap.Listeners, 1)

	// A second poll with no new version does not re-apply.
	applied = nil
	l.poll(ctx)
	require.Nil(t, applied)
}

func TestPollWithNoPublishedVersionIsANoOp(t *testing.T) {
	ts := newTestControlPlane(t)
	defer ts.Close()

	c := client.NewClient(ts.URL, "node-test")
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	applyCalls := 0
	l := NewLoop(c, "node-1", time.Second, time.Second, cache, func(s *types.Snapshot) error {
		applyCalls++
		return nil
	})

	l.poll(context.Background())
	require.Zero(t, applyCalls)
}

func TestLoadCacheAppliesPersistedSnapshot(t *testing.T) {
	ts := newTestControlPlane(t)
	defer ts.Close()

	c := client.NewClient(ts.URL, "node-test")
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	seeded := &types.Snapshot{Listeners: []types.Listener{{Port: 9090, Protocol: types.ProtocolHTTP, Enabled: true}}}
	require.NoError(t, cache.Save(nil, seeded))

	var applied *types.Snapshot
	l := NewLoop(c, "node-1", time.Second, time.Second, cache, func(s *types.Snapshot) error {
		applied = s
		return nil
	})

	require.NoError(t, l.LoadCache())
	require.NotNil(t, applied)
	require.Len(t, applied.Listeners, 1)
	require.Equal(t, 9090, applied.Listeners[0].Port)
}

func TestHeartbeatIntervalsAreFlooredAtTwoSeconds(t *testing.T) {
	ts := newTestControlPlane(t)
	defer ts.Close()
	c := client.NewClient(ts.URL, "node-test")
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	l := NewLoop(c, "node-1", 10*time.Millisecond, 10*time.Millisecond, cache, func(*types.Snapshot) error { return nil })
	require.Equal(t, minInterval, l.pollInterval)
	require.Equal(t, minInterval, l.heartbeatInterval)
}
