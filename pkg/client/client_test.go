package client_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/gateway/pkg/acme"
	"github.com/cuemby/gateway/pkg/client"
	"github.com/cuemby/gateway/pkg/controlplane"
	"github.com/cuemby/gateway/pkg/snapshotstore"
	"github.com/cuemby/gateway/pkg/storage"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/cuemby/gateway/pkg/validate"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
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

func TestCreatePoolTargetListenerRouteThenPublish(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	c := client.NewClient(ts.URL, "test-operator")
	ctx := context.Background()

	pool, err := c.CreatePool(ctx, client.CreatePoolRequest{Name: "web", Policy: types.PolicyRoundRobin})
	require.NoError(t, err)

	target, err := c.CreateTarget(ctx, pool.ID, client.CreateTargetRequest{Address: "127.0.0.1:9000", Weight: 1})
	require.NoError(t, err)
	require.Equal(t, pool.ID, target.PoolID)

	listener, err := c.CreateListener(ctx, client.CreateListenerRequest{
		Name: "http", Port: 8050, Protocol: types.ProtocolHTTP,
	})
	require.NoError(t, err)

	route, err := c.CreateRoute(ctx, client.CreateRouteRequest{
		ListenerID: listener.ID, Kind: types.RouteKindPort, Priority: 1, UpstreamPoolID: pool.ID,
	})
	require.NoError(t, err)
	require.Equal(t, listener.ID, route.ListenerID)

	valid, errs, err := c.ValidateConfig(ctx)
	require.NoError(t, err)
	require.True(t, valid)
	require.Empty(t, errs)

	version, err := c.PublishConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, types.VersionStatusPublished, version.Status)

	versions, err := c.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	published, err := c.GetPublished(ctx)
	require.NoError(t, err)
	require.Equal(t, version.ID, *published.VersionID)
}

func TestListListenersEmpty(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	c := client.NewClient(ts.URL, "test-operator")

	listeners, err := c.ListListeners(context.Background())
	require.NoError(t, err)
	require.Empty(t, listeners)
}
