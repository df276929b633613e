package runtime

import (
	"encoding/json"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

// RouteMatcher tests an *http.Request against the optional predicates
// decoded from a Route's match_expr. A nil field is not checked — an
// empty RouteMatcher matches everything.
type RouteMatcher struct {
	host       string
	hasHost    bool
	pathPrefix string
	pathRegex  *regexp.Regexp
	methods    []string
	headers    map[string]string
	query      map[string]string
	ws         *bool
}

// newRouteMatcher decodes a Route's match_expr. ok is false when raw is
// not valid JSON for types.RouteMatch or its path_regex does not compile
// — the caller must drop the route rather than compile a matcher that
// would accept everything.
func newRouteMatcher(raw json.RawMessage) (m RouteMatcher, ok bool) {
	if len(raw) == 0 {
		return m, true
	}
	var parsed types.RouteMatch
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Warn("invalid route match_expr, dropping route")
		return m, false
	}
	if parsed.Host != "" {
		m.host = parsed.Host
		m.hasHost = true
	}
	m.pathPrefix = parsed.PathPrefix
	if parsed.PathRegex != "" {
		re, err := regexp.Compile(parsed.PathRegex)
		if err != nil {
			log.Warn("invalid path_regex, dropping route")
			return m, false
		}
		m.pathRegex = re
	}
	m.methods = parsed.Methods
	m.headers = parsed.Headers
	m.query = parsed.Query
	m.ws = parsed.WS
	return m, true
}

func (m RouteMatcher) enforceWS() RouteMatcher {
	t := true
	m.ws = &t
	return m
}

func (m RouteMatcher) matches(r *http.Request) bool {
	if m.hasHost && !strings.EqualFold(r.Host, m.host) {
		return false
	}

	path := r.URL.Path
	if m.pathPrefix != "" && !strings.HasPrefix(path, m.pathPrefix) {
		return false
	}

	if m.pathRegex != nil && !m.pathRegex.MatchString(path) {
		return false
	}

	if m.methods != nil {
		ok := false
		for _, method := range m.methods {
			if strings.EqualFold(method, r.Method) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	for key, expected := range m.headers {
		if r.Header.Get(key) != expected {
			return false
		}
	}

	if m.query != nil {
		q := r.URL.Query()
		for key, expected := range m.query {
			if q.Get(key) != expected {
				return false
			}
		}
	}

	if m.ws != nil && *m.ws != isWebSocketRequest(r) {
		return false
	}

	return true
}

// RouteRule is one compiled route, ordered within its listener by
// descending priority.
type RouteRule struct {
	ID             uuid.UUID
	UpstreamPoolID uuid.UUID
	Priority       int
	Kind           types.RouteKind
	matcher        RouteMatcher
}

// Matches reports whether r satisfies this rule. Port routes always
// match (the listener itself already selected them); path routes defer
// to the matcher; ws routes require both the upgrade handshake and the
// matcher.
func (rr RouteRule) Matches(r *http.Request) bool {
	switch rr.Kind {
	case types.RouteKindPort:
		return true
	case types.RouteKindWS:
		return isWebSocketRequest(r) && rr.matcher.matches(r)
	default:
		return rr.matcher.matches(r)
	}
}

func isWebSocketRequest(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func buildRoutes(snapshot *types.Snapshot) map[uuid.UUID][]RouteRule {
	byListener := make(map[uuid.UUID][]RouteRule)

	for _, route := range snapshot.Routes {
		if !route.Enabled {
			continue
		}

		var matcher RouteMatcher
		switch route.Kind {
		case types.RouteKindPort:
			// no predicates
		case types.RouteKindPath:
			m, ok := newRouteMatcher(route.MatchExpr)
			if !ok {
				continue
			}
			matcher = m
		case types.RouteKindWS:
			m, ok := newRouteMatcher(route.MatchExpr)
			if !ok {
				continue
			}
			matcher = m.enforceWS()
		default:
			log.Warn("invalid route kind, skipping route")
			continue
		}

		byListener[route.ListenerID] = append(byListener[route.ListenerID], RouteRule{
			ID:             route.ID,
			UpstreamPoolID: route.UpstreamPoolID,
			Priority:       route.Priority,
			Kind:           route.Kind,
			matcher:        matcher,
		})
	}

	for id, routes := range byListener {
		r := routes
		sort.SliceStable(r, func(i, j int) bool {
			return r[i].Priority > r[j].Priority
		})
		byListener[id] = r
	}

	return byListener
}

// HasRoutes reports whether any route is registered for listenerID at
// all, regardless of whether one would match a given request. Callers
// use this to tell "nothing is bound to this listener" (404) apart from
// "routes are bound but none matched this request" (502).
func (c *Config) HasRoutes(listenerID uuid.UUID) bool {
	return len(c.RoutesByListener[listenerID]) > 0
}

// Match returns the first route rule bound to listenerID whose
// predicates accept r, in priority order.
func (c *Config) Match(listenerID uuid.UUID, r *http.Request) (RouteRule, bool) {
	for _, rule := range c.RoutesByListener[listenerID] {
		if rule.Matches(r) {
			return rule, true
		}
	}
	return RouteRule{}, false
}
