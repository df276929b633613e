package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

// Client is a thin HTTP/JSON client for the control plane's admin API,
// used by cmd/gateway apply and any other out-of-process caller.
type Client struct {
	baseURL string
	actor   string
	http    *http.Client
}

// NewClient creates a client against the admin API at baseURL (e.g.
// "http://localhost:8081"). actor is sent as the X-Actor header on every
// mutating request, attributing the resulting audit log entries.
func NewClient(baseURL, actor string) *Client {
	return &Client{
		baseURL: baseURL,
		actor:   actor,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set("X-Actor", c.actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(data))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateListenerRequest is the wire shape of POST /api/v1/listeners.
type CreateListenerRequest struct {
	Name        string                 `json:"name"`
	Port        int                    `json:"port"`
	Protocol    types.ListenerProtocol `json:"protocol"`
	TLSPolicyID *uuid.UUID             `json:"tls_policy_id,omitempty"`
	Enabled     *bool                  `json:"enabled,omitempty"`
}

func (c *Client) CreateListener(ctx context.Context, req CreateListenerRequest) (*types.Listener, error) {
	var out types.Listener
	if err := c.do(ctx, http.MethodPost, "/api/v1/listeners", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListListeners(ctx context.Context) ([]types.Listener, error) {
	var out []types.Listener
	err := c.do(ctx, http.MethodGet, "/api/v1/listeners", nil, &out)
	return out, err
}

// CreateRouteRequest is the wire shape of POST /api/v1/routes.
type CreateRouteRequest struct {
	ListenerID     uuid.UUID       `json:"listener_id"`
	Kind           types.RouteKind `json:"type"`
	MatchExpr      json.RawMessage `json:"match_expr"`
	Priority       int             `json:"priority"`
	UpstreamPoolID uuid.UUID       `json:"upstream_pool_id"`
	Enabled        *bool           `json:"enabled,omitempty"`
}

func (c *Client) CreateRoute(ctx context.Context, req CreateRouteRequest) (*types.Route, error) {
	var out types.Route
	if err := c.do(ctx, http.MethodPost, "/api/v1/routes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRoutes(ctx context.Context) ([]types.Route, error) {
	var out []types.Route
	err := c.do(ctx, http.MethodGet, "/api/v1/routes", nil, &out)
	return out, err
}

// CreatePoolRequest is the wire shape of POST /api/v1/pools.
type CreatePoolRequest struct {
	Name        string           `json:"name"`
	Policy      types.PoolPolicy `json:"policy"`
	HealthCheck json.RawMessage  `json:"health_check,omitempty"`
}

func (c *Client) CreatePool(ctx context.Context, req CreatePoolRequest) (*types.UpstreamPool, error) {
	var out types.UpstreamPool
	if err := c.do(ctx, http.MethodPost, "/api/v1/pools", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPools(ctx context.Context) ([]types.UpstreamPool, error) {
	var out []types.UpstreamPool
	err := c.do(ctx, http.MethodGet, "/api/v1/pools", nil, &out)
	return out, err
}

// CreateTargetRequest is the wire shape of POST /api/v1/pools/{id}/targets.
type CreateTargetRequest struct {
	Address string `json:"address"`
	Weight  int    `json:"weight"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (c *Client) CreateTarget(ctx context.Context, poolID uuid.UUID, req CreateTargetRequest) (*types.UpstreamTarget, error) {
	var out types.UpstreamTarget
	path := fmt.Sprintf("/api/v1/pools/%s/targets", poolID)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTargets(ctx context.Context) ([]types.UpstreamTarget, error) {
	var out []types.UpstreamTarget
	err := c.do(ctx, http.MethodGet, "/api/v1/targets", nil, &out)
	return out, err
}

// CreateTLSPolicyRequest is the wire shape of POST /api/v1/tls-policies.
type CreateTLSPolicyRequest struct {
	Mode    types.TLSPolicyMode `json:"mode"`
	Domains []string            `json:"domains"`
	Status  string              `json:"status,omitempty"`
}

func (c *Client) CreateTLSPolicy(ctx context.Context, req CreateTLSPolicyRequest) (*types.TLSPolicy, error) {
	var out types.TLSPolicy
	if err := c.do(ctx, http.MethodPost, "/api/v1/tls-policies", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTLSPolicies(ctx context.Context) ([]types.TLSPolicy, error) {
	var out []types.TLSPolicy
	err := c.do(ctx, http.MethodGet, "/api/v1/tls-policies", nil, &out)
	return out, err
}

// CreateCertificateRequest is the wire shape of POST /api/v1/certificates.
type CreateCertificateRequest struct {
	Domain    string    `json:"domain"`
	CertPEM   []byte    `json:"cert_pem"`
	KeyPEM    []byte    `json:"key_pem"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *Client) CreateCertificate(ctx context.Context, req CreateCertificateRequest) (*types.Certificate, error) {
	var out types.Certificate
	if err := c.do(ctx, http.MethodPost, "/api/v1/certificates", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCertificates(ctx context.Context) ([]types.Certificate, error) {
	var out []types.Certificate
	err := c.do(ctx, http.MethodGet, "/api/v1/certificates", nil, &out)
	return out, err
}

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateConfig runs the Publication State Machine's validation over the
// entity store's current contents without publishing it.
func (c *Client) ValidateConfig(ctx context.Context) (bool, []string, error) {
	var out validateResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/config/validate", nil, &out); err != nil {
		return false, nil, err
	}
	return out.Valid, out.Errors, nil
}

// PublishConfig builds, validates, and publishes the current entity store
// contents as a new ConfigVersion.
func (c *Client) PublishConfig(ctx context.Context) (*types.ConfigVersion, error) {
	var out types.ConfigVersion
	body := map[string]string{"actor": c.actor}
	if err := c.do(ctx, http.MethodPost, "/api/v1/config/publish", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RollbackConfig re-publishes a previously archived ConfigVersion.
func (c *Client) RollbackConfig(ctx context.Context, versionID uuid.UUID) (*types.ConfigVersion, error) {
	var out types.ConfigVersion
	body := map[string]any{"version_id": versionID, "actor": c.actor}
	if err := c.do(ctx, http.MethodPost, "/api/v1/config/rollback", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListVersions(ctx context.Context) ([]types.ConfigVersion, error) {
	var out []types.ConfigVersion
	err := c.do(ctx, http.MethodGet, "/api/v1/config/versions", nil, &out)
	return out, err
}

func (c *Client) GetPublished(ctx context.Context) (*types.PublishedSnapshotResponse, error) {
	var out types.PublishedSnapshotResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/config/published", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterNode announces nodeID to the control plane, reporting the
// version (if any) it already has applied.
func (c *Client) RegisterNode(ctx context.Context, nodeID string, versionID *uuid.UUID) (*types.NodeRecord, error) {
	var out types.NodeRecord
	req := types.NodeRegisterRequest{NodeID: nodeID, VersionID: versionID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/nodes/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HeartbeatNode reports nodeID's currently-applied version.
func (c *Client) HeartbeatNode(ctx context.Context, nodeID string, versionID *uuid.UUID) (*types.NodeRecord, error) {
	var out types.NodeRecord
	req := types.NodeRegisterRequest{NodeID: nodeID, VersionID: versionID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/nodes/heartbeat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
