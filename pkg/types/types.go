package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ListenerProtocol is the wire protocol a Listener binds.
type ListenerProtocol string

const (
	ProtocolHTTP  ListenerProtocol = "http"
	ProtocolHTTPS ListenerProtocol = "https"
)

// Listener binds a port to a protocol, optionally terminating TLS
// through a TLSPolicy.
type Listener struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Port        int              `json:"port"`
	Protocol    ListenerProtocol `json:"protocol"`
	TLSPolicyID *uuid.UUID       `json:"tls_policy_id,omitempty"`
	Enabled     bool             `json:"enabled"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RouteKind distinguishes how a Route is dispatched within its listener.
type RouteKind string

const (
	RouteKindPort RouteKind = "port"
	RouteKindPath RouteKind = "path"
	RouteKindWS   RouteKind = "ws"
)

// RouteMatch is the structured match expression carried by a Route.
// An absent field means "don't constrain on this dimension".
type RouteMatch struct {
	Host       string            `json:"host,omitempty"`
	PathPrefix string            `json:"path_prefix,omitempty"`
	PathRegex  string            `json:"path_regex,omitempty"`
	Methods    []string          `json:"method,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Query      map[string]string `json:"query,omitempty"`
	WS         *bool             `json:"ws,omitempty"`
}

// Route binds a listener to an upstream pool under a priority-ordered
// match expression.
type Route struct {
	ID             uuid.UUID       `json:"id"`
	ListenerID     uuid.UUID       `json:"listener_id"`
	Kind           RouteKind       `json:"type"`
	MatchExpr      json.RawMessage `json:"match_expr"`
	Priority       int             `json:"priority"`
	UpstreamPoolID uuid.UUID       `json:"upstream_pool_id"`
	Enabled        bool            `json:"enabled"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PoolPolicy selects the load-balancing algorithm for an UpstreamPool.
type PoolPolicy string

const (
	PolicyWeighted   PoolPolicy = "weighted"
	PolicyRoundRobin PoolPolicy = "round_robin"
	PolicyLeastConn  PoolPolicy = "least_conn"
)

// PoolHealthCheckSpec is the pool's health-check descriptor as stored;
// omitted fields take fixed defaults (5s interval, 2000ms timeout) at
// runtime-build time. These defaults are constants, not read from
// application configuration.
type PoolHealthCheckSpec struct {
	Kind        string `json:"kind,omitempty"`
	IntervalSec *int64 `json:"interval_secs,omitempty"`
	TimeoutMS   *int64 `json:"timeout_ms,omitempty"`
}

// UpstreamPool groups targets under one load-balancing policy.
type UpstreamPool struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Policy      PoolPolicy      `json:"policy"`
	HealthCheck json.RawMessage `json:"health_check,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// UpstreamTarget is a single backend address in a pool.
type UpstreamTarget struct {
	ID        uuid.UUID `json:"id"`
	PoolID    uuid.UUID `json:"pool_id"`
	Address   string    `json:"address"`
	Weight    int       `json:"weight"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// TLSPolicyMode describes how certificates are sourced for a policy.
type TLSPolicyMode string

const (
	TLSModeStatic TLSPolicyMode = "static"
	TLSModeACME   TLSPolicyMode = "acme"
)

// TLSPolicy names the domains a listener's certificate must cover and
// how those certificates are obtained.
type TLSPolicy struct {
	ID        uuid.UUID     `json:"id"`
	Mode      TLSPolicyMode `json:"mode"`
	Domains   []string      `json:"domains"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Certificate is a stored keypair for a single domain.
type Certificate struct {
	ID        uuid.UUID `json:"id"`
	Domain    string    `json:"domain"`
	CertPEM   []byte    `json:"cert_pem"`
	KeyPEM    []byte    `json:"key_pem"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the full, versioned configuration bundle published to
// data-plane nodes.
type Snapshot struct {
	Listeners       []Listener       `json:"listeners"`
	Routes          []Route          `json:"routes"`
	UpstreamPools   []UpstreamPool   `json:"upstream_pools"`
	UpstreamTargets []UpstreamTarget `json:"upstream_targets"`
	TLSPolicies     []TLSPolicy      `json:"tls_policies"`
	Certificates    []Certificate    `json:"certificates"`
}

// PublishedSnapshotResponse is the wire shape of GET /api/v1/config/published.
type PublishedSnapshotResponse struct {
	VersionID *uuid.UUID `json:"version_id"`
	Snapshot  Snapshot   `json:"snapshot"`
}

// ConfigVersionStatus is the lifecycle state of a stored ConfigVersion.
type ConfigVersionStatus string

const (
	VersionStatusPublished ConfigVersionStatus = "published"
	VersionStatusArchived  ConfigVersionStatus = "archived"
)

// ConfigVersion records one published or archived snapshot for history
// and rollback.
type ConfigVersion struct {
	ID           uuid.UUID           `json:"id"`
	SnapshotJSON json.RawMessage     `json:"snapshot_json"`
	Status       ConfigVersionStatus `json:"status"`
	CreatedBy    string              `json:"created_by,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// NodeRecord tracks the last version a data-plane node reported.
type NodeRecord struct {
	ID          uuid.UUID       `json:"id"`
	NodeID      string          `json:"node_id"`
	VersionID   *uuid.UUID      `json:"version_id"`
	HeartbeatAt time.Time       `json:"heartbeat_at"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// NodeRegisterRequest is the wire shape of node register/heartbeat calls.
type NodeRegisterRequest struct {
	NodeID    string          `json:"node_id"`
	VersionID *uuid.UUID      `json:"version_id"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// AuditLog records one mutating admin-API action for operability.
// Written best-effort by a background goroutine; a failed write never
// blocks the request that triggered it.
type AuditLog struct {
	ID        uuid.UUID       `json:"id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Diff      json.RawMessage `json:"diff,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
