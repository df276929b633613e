package validate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func defaultCtx() Context {
	return Context{
		HTTPPortRange:  PortRange{Start: 8000, End: 8099},
		HTTPSPortRange: PortRange{Start: 8400, End: 8499},
	}
}

func listener(protocol types.ListenerProtocol, port int) types.Listener {
	return types.Listener{
		ID:        uuid.New(),
		Port:      port,
		Protocol:  protocol,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
}

func TestSnapshotEmptyIsValid(t *testing.T) {
	errs := Snapshot(&types.Snapshot{}, defaultCtx())
	assert.Empty(t, errs)
}

func TestPortRangeOverlapReportedFirst(t *testing.T) {
	ctx := Context{
		HTTPPortRange:  PortRange{Start: 8000, End: 8500},
		HTTPSPortRange: PortRange{Start: 8400, End: 8600},
	}
	errs := Snapshot(&types.Snapshot{}, ctx)
	assert.Equal(t, []string{"HTTP_PORT_RANGE 8000-8500 overlaps HTTPS_PORT_RANGE 8400-8600"}, errs)
}

func TestRangesAdjacentDoNotOverlap(t *testing.T) {
	ctx := Context{
		HTTPPortRange:  PortRange{Start: 8000, End: 8099},
		HTTPSPortRange: PortRange{Start: 8100, End: 8199},
	}
	errs := Snapshot(&types.Snapshot{}, ctx)
	assert.Empty(t, errs)
}

func TestHTTPPortInRange(t *testing.T) {
	snap := &types.Snapshot{Listeners: []types.Listener{listener(types.ProtocolHTTP, 8050)}}
	assert.Empty(t, Snapshot(snap, defaultCtx()))
}

func TestHTTPPortOutsideRange(t *testing.T) {
	snap := &types.Snapshot{Listeners: []types.Listener{listener(types.ProtocolHTTP, 9000)}}
	errs := Snapshot(snap, defaultCtx())
	assert.Contains(t, errs[0], "outside HTTP_PORT_RANGE")
}

func TestHTTPSPortConflictsWithHTTPRange(t *testing.T) {
	policy := types.TLSPolicy{ID: uuid.New(), Mode: types.TLSModeStatic, Domains: []string{"example.com"}, Status: "active"}
	l := listener(types.ProtocolHTTPS, 8050)
	l.TLSPolicyID = &policy.ID
	snap := &types.Snapshot{Listeners: []types.Listener{l}, TLSPolicies: []types.TLSPolicy{policy}}
	errs := Snapshot(snap, defaultCtx())
	assert.Len(t, errs, 2)
	assert.Contains(t, errs[0], "outside HTTPS_PORT_RANGE")
	assert.Contains(t, errs[1], "conflicts with HTTP_PORT_RANGE")
}

func TestHTTPSListenerMissingTLSPolicyIsInvalid(t *testing.T) {
	snap := &types.Snapshot{Listeners: []types.Listener{listener(types.ProtocolHTTPS, 8450)}}
	errs := Snapshot(snap, defaultCtx())
	assert.Contains(t, errs, "listener "+snap.Listeners[0].ID.String()+" https requires tls_policy_id")
}

func TestPoolInvalidPolicyReported(t *testing.T) {
	pool := types.UpstreamPool{ID: uuid.New(), Policy: "bogus"}
	snap := &types.Snapshot{UpstreamPools: []types.UpstreamPool{pool}}
	errs := Snapshot(snap, defaultCtx())
	assert.Contains(t, errs, "upstream pool "+pool.ID.String()+" invalid policy bogus")
}

func TestTargetUnknownPoolAndBadAddress(t *testing.T) {
	target := types.UpstreamTarget{ID: uuid.New(), PoolID: uuid.New(), Address: "not-an-address", Weight: 0}
	snap := &types.Snapshot{UpstreamTargets: []types.UpstreamTarget{target}}
	errs := Snapshot(snap, defaultCtx())
	assert.Contains(t, errs, "upstream target "+target.ID.String()+" pool not found "+target.PoolID.String())
	assert.Contains(t, errs, "upstream target "+target.ID.String()+" invalid weight 0")
	assert.Contains(t, errs, "upstream target "+target.ID.String()+" invalid address not-an-address")
}

func TestDuplicateEnabledRoutesConflict(t *testing.T) {
	listenerID := uuid.New()
	poolID := uuid.New()
	r1 := types.Route{
		ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPath,
		MatchExpr: json.RawMessage(`{"host":"Example.com"}`), Priority: 1,
		UpstreamPoolID: poolID, Enabled: true,
	}
	r2 := types.Route{
		ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPath,
		MatchExpr: json.RawMessage(`{"host":"example.com"}`), Priority: 2,
		UpstreamPoolID: poolID, Enabled: true,
	}
	snap := &types.Snapshot{
		Listeners:     []types.Listener{{ID: listenerID, Protocol: types.ProtocolHTTP, Port: 8050, Enabled: true}},
		UpstreamPools: []types.UpstreamPool{{ID: poolID, Policy: types.PolicyWeighted}},
		Routes:        []types.Route{r1, r2},
	}
	errs := Snapshot(snap, defaultCtx())
	found := false
	for _, e := range errs {
		if strings.Contains(e, "conflicts with route") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRoutePathRequiresHostOrPathCondition(t *testing.T) {
	listenerID := uuid.New()
	poolID := uuid.New()
	r := types.Route{
		ID: uuid.New(), ListenerID: listenerID, Kind: types.RouteKindPath,
		MatchExpr: json.RawMessage(`{}`), Priority: 1, UpstreamPoolID: poolID, Enabled: true,
	}
	snap := &types.Snapshot{
		Listeners:     []types.Listener{{ID: listenerID, Protocol: types.ProtocolHTTP, Port: 8050, Enabled: true}},
		UpstreamPools: []types.UpstreamPool{{ID: poolID, Policy: types.PolicyWeighted}},
		Routes:        []types.Route{r},
	}
	errs := Snapshot(snap, defaultCtx())
	assert.Contains(t, errs, "route "+r.ID.String()+" path requires host/path condition")
}

func TestInvalidPortSkipsRangeChecks(t *testing.T) {
	snap := &types.Snapshot{Listeners: []types.Listener{listener(types.ProtocolHTTP, 70000)}}
	errs := Snapshot(snap, defaultCtx())
	assert.Equal(t, []string{"invalid port 70000 (must be 1-65535)"}, errs)
}

func TestDuplicateListenerKey(t *testing.T) {
	a := listener(types.ProtocolHTTP, 8050)
	b := listener(types.ProtocolHTTP, 8050)
	snap := &types.Snapshot{Listeners: []types.Listener{a, b}}
	errs := Snapshot(snap, defaultCtx())
	assert.Contains(t, errs, "duplicate listener http:8050")
}

func TestDuplicatePortAcrossProtocols(t *testing.T) {
	// the second listener also draws HTTPS range and tls_policy_id errors;
	// only the duplicate-port error is asserted here
	a := listener(types.ProtocolHTTP, 8050)
	b := types.Listener{ID: uuid.New(), Port: 8050, Protocol: types.ProtocolHTTPS, Enabled: true}
	snap := &types.Snapshot{Listeners: []types.Listener{a, b}}
	errs := Snapshot(snap, defaultCtx())
	found := false
	for _, e := range errs {
		if e == "duplicate port 8050" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDisabledListenersAreIgnored(t *testing.T) {
	l := listener(types.ProtocolHTTP, 70000)
	l.Enabled = false
	snap := &types.Snapshot{Listeners: []types.Listener{l}}
	assert.Empty(t, Snapshot(snap, defaultCtx()))
}

func TestDuplicateListenerKeyFlaggedEvenWhenDisabled(t *testing.T) {
	a := listener(types.ProtocolHTTP, 8050)
	a.Enabled = false
	b := listener(types.ProtocolHTTP, 8050)
	b.Enabled = false
	snap := &types.Snapshot{Listeners: []types.Listener{a, b}}
	errs := Snapshot(snap, defaultCtx())
	assert.Contains(t, errs, "duplicate listener http:8050")
}
