package node

import (
	"testing"

	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCacheLoadEmptyReturnsNotOK(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, _, ok, err := c.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheSaveThenLoadRoundTrips(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	versionID := uuid.New()
	snap := &types.Snapshot{
		Listeners: []types.Listener{{ID: uuid.New(), Port: 8080, Protocol: types.ProtocolHTTP, Enabled: true}},
	}
	require.NoError(t, c.Save(&versionID, snap))

	gotVersion, gotSnap, ok, err := c.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, versionID, *gotVersion)
	require.Len(t, gotSnap.Listeners, 1)
	require.Equal(t, 8080, gotSnap.Listeners[0].Port)
}

func TestCacheSaveWithNilVersionID(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Save(nil, &types.Snapshot{}))

	gotVersion, _, ok, err := c.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, gotVersion)
}
