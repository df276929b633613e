package acme

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// ChallengeClient fetches a pending key authorization from the
// control plane's admin API, by token, so the data plane can answer an
// HTTP-01 challenge request without holding any ACME state itself.
type ChallengeClient struct {
	baseURL string
	client  *http.Client
}

// NewChallengeClient builds a client against the control plane at
// baseURL (e.g. "http://control-plane:9090").
func NewChallengeClient(baseURL string) *ChallengeClient {
	return &ChallengeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type challengeResponse struct {
	KeyAuth string `json:"key_auth"`
}

// Fetch returns the key authorization for token, or false if the
// control plane has no pending challenge for it (expired, unknown, or
// the request otherwise failed).
func (c *ChallengeClient) Fetch(ctx context.Context, token string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/acme/challenge/"+token, nil)
	if err != nil {
		return "", false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var body challengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false
	}
	return body.KeyAuth, true
}

// AcmeTokenFromPath extracts the challenge token from an HTTP-01
// request path, or returns false if path isn't a challenge request.
func AcmeTokenFromPath(path string) (string, bool) {
	const prefix = "/.well-known/acme-challenge/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	return strings.TrimPrefix(path, prefix), true
}
