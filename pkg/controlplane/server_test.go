package controlplane

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/gateway/pkg/acme"
	"github.com/cuemby/gateway/pkg/snapshotstore"
	"github.com/cuemby/gateway/pkg/storage"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	store := newTestStore(t)
	s := NewServer(store, snapshotstore.New(&types.Snapshot{}), acme.NewChallengeStore(), defaultTestCtx())
	return s, store
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		data, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestCreateAndListListener(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/v1/listeners", createListenerRequest{
		Name: "http", Port: 8050, Protocol: types.ProtocolHTTP,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created types.Listener
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.True(t, created.Enabled)

	w = doRequest(s, http.MethodGet, "/api/v1/listeners", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []types.Listener
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestGetMissingListenerIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/v1/listeners/"+uuid.New().String(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishEndpointAcceptsEmptySnapshot(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/api/v1/config/publish", publishRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPublishEndpointRejectsInvalidSnapshot(t *testing.T) {
	s, store := newTestServer(t)
	listener := types.Listener{ID: uuid.New(), Port: 70000, Protocol: types.ProtocolHTTP, Enabled: true}
	require.NoError(t, store.CreateListener(&listener))

	w := doRequest(s, http.MethodPost, "/api/v1/config/publish", publishRequest{Actor: "alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishValidatePublishVersionsRoundTrip(t *testing.T) {
	s, store := newTestServer(t)
	seedPublishableSnapshot(t, store)

	w := doRequest(s, http.MethodPost, "/api/v1/config/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var vr validateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vr))
	require.True(t, vr.Valid)

	w = doRequest(s, http.MethodPost, "/api/v1/config/publish", publishRequest{Actor: "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	var version types.ConfigVersion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &version))
	require.Equal(t, types.VersionStatusPublished, version.Status)

	w = doRequest(s, http.MethodGet, "/api/v1/config/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var versions []types.ConfigVersion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &versions))
	require.Len(t, versions, 1)

	w = doRequest(s, http.MethodGet, "/api/v1/config/published", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNodeRegisterThenHeartbeat(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/v1/nodes/register", types.NodeRegisterRequest{NodeID: "node-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPost, "/api/v1/nodes/heartbeat", types.NodeRegisterRequest{NodeID: "node-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/api/v1/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var views []nodeStatusView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	require.Equal(t, "node-1", views[0].NodeID)
}

func TestHeartbeatUnregisteredNodeIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/api/v1/nodes/heartbeat", types.NodeRegisterRequest{NodeID: "ghost"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAcmeChallengeMissingTokenIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/v1/acme/challenge/unknown-token", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestActorHeaderIsPercentDecoded(t *testing.T) {
	s, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/listeners", bytes.NewReader(mustJSON(createListenerRequest{
		Name: "http", Port: 8050, Protocol: types.ProtocolHTTP,
	})))
	r.Header.Set("X-Actor", "jane%20doe")
	require.Equal(t, "jane doe", actorFromHeaders(r.Header))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	require.Equal(t, http.StatusCreated, w.Code)
}

func mustJSON(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
