// Package validate implements the pure, deterministic snapshot validator.
// It never touches storage or the network: given a Snapshot and the
// configured HTTP/HTTPS port ranges it returns an ordered list of
// human-readable error strings, or an empty slice when the snapshot is
// publishable.
package validate

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

// PortRange is an inclusive [Start, End] bound on bindable ports.
type PortRange struct {
	Start int
	End   int
}

func (r PortRange) contains(port int) bool {
	return port >= r.Start && port <= r.End
}

func (r PortRange) overlaps(o PortRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Context carries the application-configured port ranges the validator
// checks listeners against.
type Context struct {
	HTTPPortRange  PortRange
	HTTPSPortRange PortRange
}

// Snapshot validates the entire snapshot, returning errors in a fixed,
// deterministic order: range → listener → pool → target → TLS →
// route-conflict → route.
func Snapshot(snap *types.Snapshot, ctx Context) []string {
	var errs []string

	if ctx.HTTPPortRange.overlaps(ctx.HTTPSPortRange) {
		errs = append(errs, fmt.Sprintf(
			"HTTP_PORT_RANGE %d-%d overlaps HTTPS_PORT_RANGE %d-%d",
			ctx.HTTPPortRange.Start, ctx.HTTPPortRange.End,
			ctx.HTTPSPortRange.Start, ctx.HTTPSPortRange.End,
		))
	}

	errs = append(errs, validateListeners(snap, ctx)...)
	errs = append(errs, validatePools(snap)...)
	errs = append(errs, validateTargets(snap)...)
	errs = append(errs, validateTLSPolicies(snap)...)
	errs = append(errs, validateRouteConflicts(snap)...)
	errs = append(errs, validateRoutes(snap)...)
	return errs
}

func validateListeners(snap *types.Snapshot, ctx Context) []string {
	var errs []string

	tlsIDs := make(map[uuid.UUID]bool, len(snap.TLSPolicies))
	for _, p := range snap.TLSPolicies {
		tlsIDs[p.ID] = true
	}

	seenKey := make(map[string]bool)
	seenPort := make(map[int]bool)

	for _, l := range snap.Listeners {
		key := fmt.Sprintf("%s:%d", l.Protocol, l.Port)
		if seenKey[key] {
			errs = append(errs, fmt.Sprintf("duplicate listener %s", key))
		}
		seenKey[key] = true

		if !l.Enabled {
			continue
		}

		if l.Port < 1 || l.Port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid port %d (must be 1-65535)", l.Port))
			continue
		}

		if seenPort[l.Port] {
			errs = append(errs, fmt.Sprintf("duplicate port %d", l.Port))
		}
		seenPort[l.Port] = true

		switch l.Protocol {
		case types.ProtocolHTTPS:
			if !ctx.HTTPSPortRange.contains(l.Port) {
				errs = append(errs, fmt.Sprintf(
					"listener %s https port %d outside HTTPS_PORT_RANGE", l.ID, l.Port))
			}
			if ctx.HTTPPortRange.contains(l.Port) {
				errs = append(errs, fmt.Sprintf(
					"listener %s https port %d conflicts with HTTP_PORT_RANGE", l.ID, l.Port))
			}
		case types.ProtocolHTTP:
			if !ctx.HTTPPortRange.contains(l.Port) {
				errs = append(errs, fmt.Sprintf(
					"listener %s http port %d outside HTTP_PORT_RANGE", l.ID, l.Port))
			}
			if ctx.HTTPSPortRange.contains(l.Port) {
				errs = append(errs, fmt.Sprintf(
					"listener %s http port %d conflicts with HTTPS_PORT_RANGE", l.ID, l.Port))
			}
		}

		if l.Protocol == types.ProtocolHTTPS {
			switch {
			case l.TLSPolicyID == nil:
				errs = append(errs, fmt.Sprintf("listener %s https requires tls_policy_id", l.ID))
			case !tlsIDs[*l.TLSPolicyID]:
				errs = append(errs, fmt.Sprintf("listener %s tls_policy_id not found", l.ID))
			}
		}
	}

	return errs
}

func validatePools(snap *types.Snapshot) []string {
	var errs []string

	for _, p := range snap.UpstreamPools {
		switch p.Policy {
		case types.PolicyWeighted, types.PolicyRoundRobin, types.PolicyLeastConn:
		default:
			errs = append(errs, fmt.Sprintf("upstream pool %s invalid policy %s", p.ID, p.Policy))
		}

		if len(p.HealthCheck) == 0 {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(p.HealthCheck, &raw); err != nil {
			errs = append(errs, fmt.Sprintf("upstream pool %s health_check must be JSON object", p.ID))
			continue
		}

		kind, _ := raw["kind"].(string)
		if kind == "" {
			kind, _ = raw["type"].(string)
		}
		if kind == "" {
			kind = "tcp"
		}
		if !strings.EqualFold(kind, "tcp") {
			errs = append(errs, fmt.Sprintf("upstream pool %s health_check kind %s not supported", p.ID, kind))
		}

		if v, ok := raw["interval_secs"]; ok {
			if !positiveNumber(v) {
				errs = append(errs, fmt.Sprintf(
					"upstream pool %s health_check interval_secs must be positive integer", p.ID))
			}
		}
		if v, ok := raw["timeout_ms"]; ok {
			if !positiveNumber(v) {
				errs = append(errs, fmt.Sprintf(
					"upstream pool %s health_check timeout_ms must be positive integer", p.ID))
			}
		}
	}

	return errs
}

func positiveNumber(v any) bool {
	n, ok := v.(float64)
	return ok && n > 0 && n == float64(int64(n))
}

func validateTargets(snap *types.Snapshot) []string {
	var errs []string

	poolIDs := make(map[uuid.UUID]bool, len(snap.UpstreamPools))
	for _, p := range snap.UpstreamPools {
		poolIDs[p.ID] = true
	}

	for _, t := range snap.UpstreamTargets {
		if !poolIDs[t.PoolID] {
			errs = append(errs, fmt.Sprintf("upstream target %s pool not found %s", t.ID, t.PoolID))
		}
		if t.Weight < 1 {
			errs = append(errs, fmt.Sprintf("upstream target %s invalid weight %d", t.ID, t.Weight))
		}
		if !validHostPort(t.Address) {
			errs = append(errs, fmt.Sprintf("upstream target %s invalid address %s", t.ID, t.Address))
		}
	}

	return errs
}

func validHostPort(address string) bool {
	host, _, err := net.SplitHostPort(address)
	return err == nil && host != ""
}

func validateTLSPolicies(snap *types.Snapshot) []string {
	var errs []string

	for _, p := range snap.TLSPolicies {
		if len(p.Domains) == 0 {
			errs = append(errs, fmt.Sprintf("tls policy %s domains empty", p.ID))
		}
		switch p.Mode {
		case types.TLSModeACME, types.TLSModeStatic:
		default:
			errs = append(errs, fmt.Sprintf("tls policy %s invalid mode %s", p.ID, p.Mode))
		}
		switch strings.ToLower(p.Status) {
		case "active", "error", "pending":
		default:
			errs = append(errs, fmt.Sprintf("tls policy %s invalid status %s", p.ID, p.Status))
		}
	}

	return errs
}

// canonicalRouteMatch is the conflict-detection key derived from a
// route's match expression: lowercased/sorted so two routes that are
// textually different but semantically identical still collide.
type canonicalRouteMatch struct {
	Host       string
	PathPrefix string
	PathRegex  string
	Methods    string
	Headers    string
	Query      string
	WS         *bool
}

func canonicalizeMatch(kind types.RouteKind, raw json.RawMessage) (canonicalRouteMatch, bool) {
	var m types.RouteMatch
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return canonicalRouteMatch{}, false
		}
	}

	methods := append([]string(nil), m.Methods...)
	for i, v := range methods {
		methods[i] = strings.ToLower(v)
	}
	sort.Strings(methods)

	headerKeys := make([]string, 0, len(m.Headers))
	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		lk := strings.ToLower(k)
		headers[lk] = v
		headerKeys = append(headerKeys, lk)
	}
	sort.Strings(headerKeys)
	var headerParts []string
	for _, k := range headerKeys {
		headerParts = append(headerParts, k+"="+headers[k])
	}

	queryKeys := make([]string, 0, len(m.Query))
	for k := range m.Query {
		queryKeys = append(queryKeys, k)
	}
	sort.Strings(queryKeys)
	var queryParts []string
	for _, k := range queryKeys {
		queryParts = append(queryParts, k+"="+m.Query[k])
	}

	ws := m.WS
	if kind == types.RouteKindWS {
		t := true
		ws = &t
	}

	return canonicalRouteMatch{
		Host:       strings.ToLower(m.Host),
		PathPrefix: m.PathPrefix,
		PathRegex:  m.PathRegex,
		Methods:    strings.Join(methods, ","),
		Headers:    strings.Join(headerParts, ","),
		Query:      strings.Join(queryParts, ","),
		WS:         ws,
	}, true
}

type routeConflictKey struct {
	ListenerID uuid.UUID
	Kind       types.RouteKind
	MatchPort  bool
	Match      canonicalRouteMatch
}

func validateRouteConflicts(snap *types.Snapshot) []string {
	var errs []string

	seen := make(map[routeConflictKey]uuid.UUID)
	for _, r := range snap.Routes {
		if !r.Enabled {
			continue
		}

		key := routeConflictKey{ListenerID: r.ListenerID, Kind: r.Kind}
		switch r.Kind {
		case types.RouteKindPort:
			key.MatchPort = true
		case types.RouteKindPath, types.RouteKindWS:
			canon, ok := canonicalizeMatch(r.Kind, r.MatchExpr)
			if !ok {
				continue
			}
			key.Match = canon
		default:
			continue
		}

		if other, exists := seen[key]; exists {
			errs = append(errs, fmt.Sprintf(
				"route %s conflicts with route %s (same match conditions)", r.ID, other))
			continue
		}
		seen[key] = r.ID
	}

	return errs
}

func validateRoutes(snap *types.Snapshot) []string {
	var errs []string

	listenerIDs := make(map[uuid.UUID]bool, len(snap.Listeners))
	enabledListenerIDs := make(map[uuid.UUID]bool, len(snap.Listeners))
	for _, l := range snap.Listeners {
		listenerIDs[l.ID] = true
		if l.Enabled {
			enabledListenerIDs[l.ID] = true
		}
	}
	poolIDs := make(map[uuid.UUID]bool, len(snap.UpstreamPools))
	for _, p := range snap.UpstreamPools {
		poolIDs[p.ID] = true
	}

	for _, r := range snap.Routes {
		if !listenerIDs[r.ListenerID] {
			errs = append(errs, fmt.Sprintf("route %s listener not found %s", r.ID, r.ListenerID))
		}
		if r.Enabled && !enabledListenerIDs[r.ListenerID] {
			errs = append(errs, fmt.Sprintf("route %s references disabled listener %s", r.ID, r.ListenerID))
		}
		if !poolIDs[r.UpstreamPoolID] {
			errs = append(errs, fmt.Sprintf("route %s upstream pool not found %s", r.ID, r.UpstreamPoolID))
		}
		if r.Priority < 0 {
			errs = append(errs, fmt.Sprintf("route %s invalid priority %d", r.ID, r.Priority))
		}

		switch r.Kind {
		case types.RouteKindPort:
		case types.RouteKindPath:
			m, err := parseRouteMatch(r.MatchExpr)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid match_expr for route %s", r.ID))
				break
			}
			if m.Host == "" && m.PathPrefix == "" && m.PathRegex == "" {
				errs = append(errs, fmt.Sprintf("route %s path requires host/path condition", r.ID))
			}
		case types.RouteKindWS:
			m, err := parseRouteMatch(r.MatchExpr)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid match_expr for route %s", r.ID))
				break
			}
			if m.WS != nil && !*m.WS {
				errs = append(errs, fmt.Sprintf("ws route must require ws for route %s", r.ID))
			}
			if m.Host == "" && m.PathPrefix == "" && m.PathRegex == "" {
				errs = append(errs, fmt.Sprintf("route %s ws requires host/path condition", r.ID))
			}
		default:
			errs = append(errs, fmt.Sprintf("invalid route type %s for route %s", r.Kind, r.ID))
		}
	}

	return errs
}

func parseRouteMatch(raw json.RawMessage) (types.RouteMatch, error) {
	var m types.RouteMatch
	if len(raw) == 0 {
		return m, nil
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}
