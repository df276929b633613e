package ingress

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/gateway/pkg/acme"
	"github.com/cuemby/gateway/pkg/runtime"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestServeNoListenerOnPortIsNotFound(t *testing.T) {
	p := NewProxy(nil, nil, nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	p.serve(w, r, 9999)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeNoRoutesRegisteredIsNotFound(t *testing.T) {
	listenerID := uuid.New()
	snap := &types.Snapshot{
		Listeners: []types.Listener{{ID: listenerID, Port: 8050, Protocol: types.ProtocolHTTP, Enabled: true}},
	}
	cfg := runtime.Build(snap, nil, nil, nil)

	p := NewProxy(nil, nil, nil)
	p.SetConfig(cfg)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	p.serve(w, r, 8050)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeRoutesRegisteredButNoneMatchedIsBadGateway(t *testing.T) {
	listenerID := uuid.New()
	poolID := uuid.New()
	matchExpr, err := json.Marshal(types.RouteMatch{PathPrefix: "/only-this"})
	require.NoError(t, err)
	snap := &types.Snapshot{
		Listeners:     []types.Listener{{ID: listenerID, Port: 8050, Protocol: types.ProtocolHTTP, Enabled: true}},
		Routes:        []types.Route{{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPath, Priority: 1, UpstreamPoolID: poolID, MatchExpr: matchExpr, Enabled: true}},
		UpstreamPools: []types.UpstreamPool{{ID: poolID, Policy: types.PolicyRoundRobin}},
	}
	cfg := runtime.Build(snap, nil, nil, nil)

	p := NewProxy(nil, nil, nil)
	p.SetConfig(cfg)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/elsewhere", nil)
	p.serve(w, r, 8050)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestServeWSRouteWithoutUpgradeHeaderIsBadGateway(t *testing.T) {
	listenerID := uuid.New()
	poolID := uuid.New()
	snap := &types.Snapshot{
		Listeners:     []types.Listener{{ID: listenerID, Port: 8050, Protocol: types.ProtocolHTTP, Enabled: true}},
		Routes:        []types.Route{{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindWS, Priority: 1, UpstreamPoolID: poolID, Enabled: true}},
		UpstreamPools: []types.UpstreamPool{{ID: poolID, Policy: types.PolicyRoundRobin}},
	}
	cfg := runtime.Build(snap, nil, nil, nil)

	p := NewProxy(nil, nil, nil)
	p.SetConfig(cfg)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	p.serve(w, r, 8050)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestServeNoHealthyTargetIsBadGateway(t *testing.T) {
	listenerID := uuid.New()
	poolID := uuid.New()
	snap := &types.Snapshot{
		Listeners:     []types.Listener{{ID: listenerID, Port: 8050, Protocol: types.ProtocolHTTP, Enabled: true}},
		Routes:        []types.Route{{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPort, Priority: 1, UpstreamPoolID: poolID, Enabled: true}},
		UpstreamPools: []types.UpstreamPool{{ID: poolID, Policy: types.PolicyRoundRobin}},
	}
	cfg := runtime.Build(snap, nil, nil, nil)

	p := NewProxy(nil, nil, nil)
	p.SetConfig(cfg)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	p.serve(w, r, 8050)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestServeProxiesToUpstreamTarget(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-From-Backend", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer backend.Close()

	listenerID := uuid.New()
	poolID := uuid.New()
	targetID := uuid.New()
	snap := &types.Snapshot{
		Listeners:     []types.Listener{{ID: listenerID, Port: 8050, Protocol: types.ProtocolHTTP, Enabled: true}},
		Routes:        []types.Route{{ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPort, Priority: 1, UpstreamPoolID: poolID, Enabled: true}},
		UpstreamPools: []types.UpstreamPool{{ID: poolID, Policy: types.PolicyRoundRobin}},
		UpstreamTargets: []types.UpstreamTarget{
			{ID: targetID, PoolID: poolID, Address: backend.Listener.Addr().String(), Weight: 1, Enabled: true},
		},
	}
	cfg := runtime.Build(snap, nil, nil, nil)

	p := NewProxy(nil, nil, nil)
	p.SetConfig(cfg)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	p.serve(w, r, 8050)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "yes", w.Header().Get("X-From-Backend"))
	require.Equal(t, "hello", w.Body.String())
}

func TestServeAcmeChallengeInterceptsBeforeRouting(t *testing.T) {
	controlPlane := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"key_auth":"token.thumbprint"}`)
	}))
	defer controlPlane.Close()

	p := NewProxy(acme.NewChallengeClient(controlPlane.URL), nil, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/.well-known/acme-challenge/abc123", nil)
	p.serve(w, r, 8050)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "token.thumbprint", w.Body.String())
}

func TestServeAcmeChallengeUnknownTokenIsNotFound(t *testing.T) {
	controlPlane := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer controlPlane.Close()

	p := NewProxy(acme.NewChallengeClient(controlPlane.URL), nil, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/.well-known/acme-challenge/unknown", nil)
	p.serve(w, r, 8050)

	require.Equal(t, http.StatusNotFound, w.Code)
}
