package controlplane

import (
	"net/http"
	"net/url"
	"strings"
)

// actorFromHeaders extracts the caller identity an admin-API mutation
// should be attributed to from the X-Actor header, decoding its
// percent-escapes; a literal '+' is kept as '+', not read as a space.
// A value whose escapes do not decode is used as given. Missing or
// blank-after-decoding values fall back to "unknown" rather than
// failing the request.
func actorFromHeaders(h http.Header) string {
	raw := strings.TrimSpace(h.Get("X-Actor"))
	if raw == "" {
		return "unknown"
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "unknown"
	}
	return decoded
}
