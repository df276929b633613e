package controlplane

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/gateway/pkg/acme"
	"github.com/cuemby/gateway/pkg/gatewayerr"
	"github.com/cuemby/gateway/pkg/snapshotstore"
	"github.com/cuemby/gateway/pkg/storage"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/cuemby/gateway/pkg/validate"
	"github.com/google/uuid"
)

// Server is the control plane's admin REST API: thin CRUD over the
// entity store, plus the publish/rollback/versions/nodes/ACME-challenge
// endpoints the node loop and Publication State Machine need reachable
// over HTTP. Grounded on the teacher's mux-based pkg/api/health.go
// rather than its gRPC pkg/api/server.go, since this surface is a plain
// JSON admin API, not a worker control channel.
type Server struct {
	store      storage.Store
	snapshots  *snapshotstore.Store
	challenges *acme.ChallengeStore
	ranges     validate.Context
	mux        *http.ServeMux
}

// NewServer wires up the admin API's route table against store,
// snapshots, and challenges, validating publishes against ranges.
func NewServer(store storage.Store, snapshots *snapshotstore.Store, challenges *acme.ChallengeStore, ranges validate.Context) *Server {
	s := &Server{store: store, snapshots: snapshots, challenges: challenges, ranges: ranges}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/listeners", s.createListener)
	mux.HandleFunc("GET /api/v1/listeners", s.listListeners)
	mux.HandleFunc("GET /api/v1/listeners/{id}", s.getListener)
	mux.HandleFunc("PATCH /api/v1/listeners/{id}", s.updateListener)
	mux.HandleFunc("DELETE /api/v1/listeners/{id}", s.deleteListener)

	mux.HandleFunc("POST /api/v1/routes", s.createRoute)
	mux.HandleFunc("GET /api/v1/routes", s.listRoutes)
	mux.HandleFunc("GET /api/v1/routes/{id}", s.getRoute)
	mux.HandleFunc("PATCH /api/v1/routes/{id}", s.updateRoute)
	mux.HandleFunc("DELETE /api/v1/routes/{id}", s.deleteRoute)

	mux.HandleFunc("POST /api/v1/pools", s.createPool)
	mux.HandleFunc("GET /api/v1/pools", s.listPools)
	mux.HandleFunc("GET /api/v1/pools/{id}", s.getPool)
	mux.HandleFunc("PATCH /api/v1/pools/{id}", s.updatePool)
	mux.HandleFunc("DELETE /api/v1/pools/{id}", s.deletePool)
	mux.HandleFunc("POST /api/v1/pools/{id}/targets", s.createTarget)

	mux.HandleFunc("GET /api/v1/targets", s.listTargets)
	mux.HandleFunc("PATCH /api/v1/targets/{id}", s.updateTarget)
	mux.HandleFunc("DELETE /api/v1/targets/{id}", s.deleteTarget)

	mux.HandleFunc("POST /api/v1/tls-policies", s.createTLSPolicy)
	mux.HandleFunc("GET /api/v1/tls-policies", s.listTLSPolicies)
	mux.HandleFunc("PATCH /api/v1/tls-policies/{id}", s.updateTLSPolicy)

	mux.HandleFunc("POST /api/v1/certificates", s.createCertificate)
	mux.HandleFunc("GET /api/v1/certificates", s.listCertificates)
	mux.HandleFunc("GET /api/v1/certificates/{id}", s.getCertificate)
	mux.HandleFunc("DELETE /api/v1/certificates/{id}", s.deleteCertificate)

	mux.HandleFunc("POST /api/v1/config/validate", s.validateConfig)
	mux.HandleFunc("POST /api/v1/config/publish", s.publishConfig)
	mux.HandleFunc("POST /api/v1/config/rollback", s.rollbackConfig)
	mux.HandleFunc("GET /api/v1/config/versions", s.listVersions)
	mux.HandleFunc("GET /api/v1/config/versions/{id}", s.getVersion)
	mux.HandleFunc("GET /api/v1/config/published", s.getPublished)

	mux.HandleFunc("POST /api/v1/nodes/register", s.registerNode)
	mux.HandleFunc("POST /api/v1/nodes/heartbeat", s.heartbeatNode)
	mux.HandleFunc("GET /api/v1/nodes", s.listNodes)

	mux.HandleFunc("GET /api/v1/acme/challenge/{token}", s.getAcmeChallenge)
	mux.HandleFunc("GET /api/v1/audit", s.listAudit)

	s.mux = mux
	return s
}

// Handler returns the admin API's http.Handler for embedding in a server.
func (s *Server) Handler() http.Handler { return s.mux }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, gatewayerr.StatusCode(err), map[string]string{"error": err.Error()})
}

func decodeJSON[T any](r *http.Request) (T, error) {
	var v T
	err := json.NewDecoder(r.Body).Decode(&v)
	return v, err
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.UUID{}, gatewayerr.BadRequest("invalid %s", name)
	}
	return id, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// --- Listener ---

type createListenerRequest struct {
	Name        string                 `json:"name"`
	Port        int                    `json:"port"`
	Protocol    types.ListenerProtocol `json:"protocol"`
	TLSPolicyID *uuid.UUID             `json:"tls_policy_id,omitempty"`
	Enabled     *bool                  `json:"enabled,omitempty"`
}

func (s *Server) createListener(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON[createListenerRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	l := &types.Listener{
		ID:          uuid.New(),
		Name:        body.Name,
		Port:        body.Port,
		Protocol:    body.Protocol,
		TLSPolicyID: body.TLSPolicyID,
		Enabled:     boolOr(body.Enabled, true),
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateListener(l); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "create_listener", l)
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) listListeners(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListListeners()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getListener(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	l, err := s.store.GetListener(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) updateListener(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	l, err := s.store.GetListener(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(l); err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	l.ID = id
	if err := s.store.UpdateListener(l); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "update_listener", l)
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) deleteListener(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteListener(id); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "delete_listener", map[string]any{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- Route ---

type createRouteRequest struct {
	ListenerID     uuid.UUID       `json:"listener_id"`
	Kind           types.RouteKind `json:"type"`
	MatchExpr      json.RawMessage `json:"match_expr"`
	Priority       int             `json:"priority"`
	UpstreamPoolID uuid.UUID       `json:"upstream_pool_id"`
	Enabled        *bool           `json:"enabled,omitempty"`
}

func (s *Server) createRoute(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON[createRouteRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	rt := &types.Route{
		ID:             uuid.New(),
		ListenerID:     body.ListenerID,
		Kind:           body.Kind,
		MatchExpr:      body.MatchExpr,
		Priority:       body.Priority,
		UpstreamPoolID: body.UpstreamPoolID,
		Enabled:        boolOr(body.Enabled, true),
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateRoute(rt); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "create_route", rt)
	writeJSON(w, http.StatusCreated, rt)
}

func (s *Server) listRoutes(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListRoutes()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	rt, err := s.store.GetRoute(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) updateRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	rt, err := s.store.GetRoute(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(rt); err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	rt.ID = id
	if err := s.store.UpdateRoute(rt); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "update_route", rt)
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) deleteRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteRoute(id); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "delete_route", map[string]any{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- UpstreamPool ---

type createPoolRequest struct {
	Name        string           `json:"name"`
	Policy      types.PoolPolicy `json:"policy"`
	HealthCheck json.RawMessage  `json:"health_check,omitempty"`
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON[createPoolRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	p := &types.UpstreamPool{
		ID:          uuid.New(),
		Name:        body.Name,
		Policy:      body.Policy,
		HealthCheck: body.HealthCheck,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateUpstreamPool(p); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "create_pool", p)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListUpstreamPools()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.store.GetUpstreamPool(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePool(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.store.GetUpstreamPool(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(p); err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	p.ID = id
	if err := s.store.UpdateUpstreamPool(p); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "update_pool", p)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePool(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteUpstreamPool(id); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "delete_pool", map[string]any{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- UpstreamTarget ---

type createTargetRequest struct {
	Address string `json:"address"`
	Weight  int    `json:"weight"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (s *Server) createTarget(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := decodeJSON[createTargetRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	weight := body.Weight
	if weight == 0 {
		weight = 1
	}
	t := &types.UpstreamTarget{
		ID:        uuid.New(),
		PoolID:    poolID,
		Address:   body.Address,
		Weight:    weight,
		Enabled:   boolOr(body.Enabled, true),
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateUpstreamTarget(t); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "create_target", t)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListUpstreamTargets()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) updateTarget(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := s.store.GetUpstreamTarget(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(t); err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	t.ID = id
	if err := s.store.UpdateUpstreamTarget(t); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "update_target", t)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTarget(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteUpstreamTarget(id); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "delete_target", map[string]any{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- TLSPolicy ---

type createTLSPolicyRequest struct {
	Mode    types.TLSPolicyMode `json:"mode"`
	Domains []string            `json:"domains"`
	Status  string              `json:"status,omitempty"`
}

func (s *Server) createTLSPolicy(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON[createTLSPolicyRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	status := body.Status
	if status == "" {
		status = "pending"
	}
	p := &types.TLSPolicy{
		ID:        uuid.New(),
		Mode:      body.Mode,
		Domains:   body.Domains,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateTLSPolicy(p); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "create_tls_policy", p)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listTLSPolicies(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListTLSPolicies()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) updateTLSPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.store.GetTLSPolicy(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(p); err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	p.ID = id
	if err := s.store.UpdateTLSPolicy(p); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "update_tls_policy", p)
	writeJSON(w, http.StatusOK, p)
}

// --- Certificate ---

type createCertificateRequest struct {
	Domain    string    `json:"domain"`
	CertPEM   []byte    `json:"cert_pem"`
	KeyPEM    []byte    `json:"key_pem"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) createCertificate(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON[createCertificateRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	c := &types.Certificate{
		ID:        uuid.New(),
		Domain:    body.Domain,
		CertPEM:   body.CertPEM,
		KeyPEM:    body.KeyPEM,
		ExpiresAt: body.ExpiresAt,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateCertificate(c); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "create_certificate", map[string]any{"id": c.ID, "domain": c.Domain})
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listCertificates(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListCertificates()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.GetCertificate(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteCertificate(id); err != nil {
		writeError(w, err)
		return
	}
	spawnAudit(s.store, actorFromHeaders(r.Header), "delete_certificate", map[string]any{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- Config lifecycle ---

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (s *Server) validateConfig(w http.ResponseWriter, r *http.Request) {
	errs, err := Validate(s.store, s.ranges)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: len(errs) == 0, Errors: errs})
}

type publishRequest struct {
	Actor string `json:"actor"`
}

func (s *Server) publishConfig(w http.ResponseWriter, r *http.Request) {
	body, _ := decodeJSON[publishRequest](r)
	actor := body.Actor
	if actor == "" {
		actor = actorFromHeaders(r.Header)
	}
	version, err := Publish(s.store, s.snapshots, s.ranges, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

type rollbackRequest struct {
	VersionID uuid.UUID `json:"version_id"`
	Actor     string    `json:"actor"`
}

func (s *Server) rollbackConfig(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON[rollbackRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}
	actor := body.Actor
	if actor == "" {
		actor = actorFromHeaders(r.Header)
	}
	version, err := Rollback(s.store, s.snapshots, body.VersionID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	list, err := ListVersions(s.store)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	version, err := GetVersion(s.store, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (s *Server) getPublished(w http.ResponseWriter, r *http.Request) {
	resp, err := GetPublished(s.store)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Nodes ---

func (s *Server) registerNode(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON[types.NodeRegisterRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}

	existing, findErr := findNodeRecord(s.store, body.NodeID)

	var n *types.NodeRecord
	if findErr == nil {
		existing.VersionID = body.VersionID
		existing.Metadata = body.Metadata
		existing.HeartbeatAt = time.Now()
		n = existing
	} else {
		n = &types.NodeRecord{
			ID:          uuid.New(),
			NodeID:      body.NodeID,
			VersionID:   body.VersionID,
			Metadata:    body.Metadata,
			HeartbeatAt: time.Now(),
		}
	}
	if err := s.store.UpsertNodeRecord(n); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) heartbeatNode(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSON[types.NodeRegisterRequest](r)
	if err != nil {
		writeError(w, gatewayerr.BadRequest("invalid body: %v", err))
		return
	}

	n, err := findNodeRecord(s.store, body.NodeID)
	if err != nil {
		writeError(w, gatewayerr.NotFound("node %s not registered", body.NodeID))
		return
	}
	n.VersionID = body.VersionID
	n.Metadata = body.Metadata
	n.HeartbeatAt = time.Now()
	if err := s.store.UpsertNodeRecord(n); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func findNodeRecord(store storage.Store, nodeID string) (*types.NodeRecord, error) {
	records, err := store.ListNodeRecords()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].NodeID == nodeID {
			return &records[i], nil
		}
	}
	return nil, gatewayerr.NotFound("node %s not found", nodeID)
}

type nodeStatusView struct {
	ID                 uuid.UUID       `json:"id"`
	NodeID             string          `json:"node_id"`
	VersionID          *uuid.UUID      `json:"version_id"`
	PublishedVersionID *uuid.UUID      `json:"published_version_id"`
	Consistent         bool            `json:"consistent"`
	HeartbeatAt        time.Time       `json:"heartbeat_at"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	var publishedID *uuid.UUID
	if published, err := s.store.GetPublishedVersion(); err == nil {
		id := published.ID
		publishedID = &id
	}

	records, err := s.store.ListNodeRecords()
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]nodeStatusView, 0, len(records))
	for _, n := range records {
		consistent := publishedID != nil && n.VersionID != nil && *publishedID == *n.VersionID
		views = append(views, nodeStatusView{
			ID:                 n.ID,
			NodeID:             n.NodeID,
			VersionID:          n.VersionID,
			PublishedVersionID: publishedID,
			Consistent:         consistent,
			HeartbeatAt:        n.HeartbeatAt,
			Metadata:           n.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// --- ACME + audit ---

func (s *Server) getAcmeChallenge(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	keyAuth, ok := s.challenges.Get(token)
	if !ok {
		writeError(w, gatewayerr.NotFound("challenge not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key_auth": keyAuth})
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListAuditLogs()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
