package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRoutesOrderedByPriorityDescending(t *testing.T) {
	listenerID := uuid.New()
	snap := &types.Snapshot{
		Routes: []types.Route{
			{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPort, Priority: 1, Enabled: true},
			{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPort, Priority: 5, Enabled: true},
			{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPort, Priority: 3, Enabled: true},
		},
	}
	routes := buildRoutes(snap)
	got := routes[listenerID]
	require.Len(t, got, 3)
	assert.Equal(t, 5, got[0].Priority)
	assert.Equal(t, 3, got[1].Priority)
	assert.Equal(t, 1, got[2].Priority)
}

func TestBuildRoutesSkipsDisabled(t *testing.T) {
	listenerID := uuid.New()
	snap := &types.Snapshot{
		Routes: []types.Route{
			{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPort, Priority: 1, Enabled: false},
		},
	}
	routes := buildRoutes(snap)
	assert.Empty(t, routes[listenerID])
}

func TestBuildRoutesDropsRouteWithMalformedMatchExpr(t *testing.T) {
	listenerID := uuid.New()
	snap := &types.Snapshot{
		Routes: []types.Route{
			{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPath, Priority: 1, MatchExpr: []byte(`not json`), Enabled: true},
		},
	}
	routes := buildRoutes(snap)
	assert.Empty(t, routes[listenerID])
}

func TestRouteMatcherHostCaseInsensitive(t *testing.T) {
	m, ok := newRouteMatcher([]byte(`{"host":"Example.COM"}`))
	require.True(t, ok)
	r := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.Host = "example.com"
	assert.True(t, m.matches(r))
}

func TestRouteMatcherPathPrefix(t *testing.T) {
	m, ok := newRouteMatcher([]byte(`{"path_prefix":"/api/"}`))
	require.True(t, ok)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/widgets", nil)
	assert.True(t, m.matches(r))
	r2 := httptest.NewRequest(http.MethodGet, "/other", nil)
	assert.False(t, m.matches(r2))
}

func TestRouteMatcherQueryAbsentKeyIsEmptyString(t *testing.T) {
	m, ok := newRouteMatcher([]byte(`{"query":{"debug":""}}`))
	require.True(t, ok)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, m.matches(r))
}

func TestRouteMatcherInvalidJSONIsRejected(t *testing.T) {
	_, ok := newRouteMatcher([]byte(`not json`))
	assert.False(t, ok)
}

func TestRouteRuleWSRequiresUpgradeHeaders(t *testing.T) {
	m, ok := newRouteMatcher(nil)
	require.True(t, ok)
	m = m.enforceWS()
	rule := RouteRule{Kind: types.RouteKindWS, matcher: m}

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.False(t, rule.Matches(r))

	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Connection", "Upgrade")
	assert.True(t, rule.Matches(r))
}

func TestPickTargetWeightedFailOpen(t *testing.T) {
	poolID := uuid.New()
	target := types.UpstreamTarget{ID: uuid.New(), PoolID: poolID, Address: "10.0.0.1:80", Weight: 1, Enabled: true}
	snap := &types.Snapshot{
		UpstreamPools:   []types.UpstreamPool{{ID: poolID, Policy: types.PolicyWeighted}},
		UpstreamTargets: []types.UpstreamTarget{target},
	}
	cfg := Build(snap, nil, nil, nil)

	tgt := cfg.Targets(poolID)[0]
	tgt.SetHealthy(false)

	picked := cfg.PickTarget(poolID)
	require.NotNil(t, picked)
	assert.Equal(t, "10.0.0.1:80", picked.Address())
	picked.Release()
}

func TestPickTargetRoundRobinRotates(t *testing.T) {
	poolID := uuid.New()
	a := types.UpstreamTarget{ID: uuid.New(), PoolID: poolID, Address: "a", Weight: 1, Enabled: true}
	b := types.UpstreamTarget{ID: uuid.New(), PoolID: poolID, Address: "b", Weight: 1, Enabled: true}
	snap := &types.Snapshot{
		UpstreamPools:   []types.UpstreamPool{{ID: poolID, Policy: types.PolicyRoundRobin}},
		UpstreamTargets: []types.UpstreamTarget{a, b},
	}
	cfg := Build(snap, nil, nil, nil)

	first := cfg.PickTarget(poolID)
	second := cfg.PickTarget(poolID)
	assert.NotEqual(t, first.Address(), second.Address())
}

func TestPickTargetLeastConnPrefersFewerInflight(t *testing.T) {
	poolID := uuid.New()
	a := types.UpstreamTarget{ID: uuid.New(), PoolID: poolID, Address: "a", Weight: 1, Enabled: true}
	b := types.UpstreamTarget{ID: uuid.New(), PoolID: poolID, Address: "b", Weight: 1, Enabled: true}
	snap := &types.Snapshot{
		UpstreamPools:   []types.UpstreamPool{{ID: poolID, Policy: types.PolicyLeastConn}},
		UpstreamTargets: []types.UpstreamTarget{a, b},
	}
	cfg := Build(snap, nil, nil, nil)

	busy := cfg.Targets(poolID)[0]
	busy.acquire()
	busy.acquire()

	picked := cfg.PickTarget(poolID)
	assert.NotEqual(t, busy.Address(), picked.Address())
}

func TestSelectCertificateNewestByExpiry(t *testing.T) {
	policy := types.TLSPolicy{Domains: []string{"example.com"}}
	older := types.Certificate{Domain: "example.com", ExpiresAt: time.Now().Add(24 * time.Hour)}
	newer := types.Certificate{Domain: "example.com", ExpiresAt: time.Now().Add(48 * time.Hour)}
	other := types.Certificate{Domain: "other.com", ExpiresAt: time.Now().Add(72 * time.Hour)}

	got := selectCertificate(policy, []types.Certificate{older, newer, other})
	require.NotNil(t, got)
	assert.Equal(t, newer.ExpiresAt, got.ExpiresAt)
}

func TestSelectCertificateNoMatchReturnsNil(t *testing.T) {
	policy := types.TLSPolicy{Domains: []string{"example.com"}}
	got := selectCertificate(policy, []types.Certificate{{Domain: "other.com", ExpiresAt: time.Now()}})
	assert.Nil(t, got)
}

func TestBuildListenersRejectsOutOfRangePort(t *testing.T) {
	httpRange := &PortRange{Start: 8000, End: 8099}
	snap := &types.Snapshot{
		Listeners: []types.Listener{
			{ID: uuid.New(), Port: 9999, Protocol: types.ProtocolHTTP, Enabled: true},
		},
	}
	listeners, byPort := buildListeners(snap, httpRange, nil)
	assert.Empty(t, listeners)
	assert.Empty(t, byPort)
}
