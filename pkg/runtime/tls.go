package runtime

import (
	"crypto/tls"

	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

func buildListeners(snapshot *types.Snapshot, httpRange, httpsRange *PortRange) ([]ListenerRuntime, map[int]ListenerRuntime) {
	var listeners []ListenerRuntime

	for _, l := range snapshot.Listeners {
		if !l.Enabled {
			continue
		}
		if l.Port < 1 || l.Port > 65535 {
			log.Warn("invalid listener port, skipping listener")
			continue
		}

		if l.Protocol == types.ProtocolHTTPS {
			if httpsRange != nil && !httpsRange.contains(l.Port) {
				log.Warn("https listener port outside HTTPS_PORT_RANGE, skipping listener")
				continue
			}
			if httpRange != nil && httpRange.contains(l.Port) {
				log.Warn("https listener port conflicts with HTTP_PORT_RANGE, skipping listener")
				continue
			}
		} else {
			if httpRange != nil && !httpRange.contains(l.Port) {
				log.Warn("http listener port outside HTTP_PORT_RANGE, skipping listener")
				continue
			}
			if httpsRange != nil && httpsRange.contains(l.Port) {
				log.Warn("http listener port conflicts with HTTPS_PORT_RANGE, skipping listener")
				continue
			}
		}

		listeners = append(listeners, ListenerRuntime{ID: l.ID, Port: l.Port, Protocol: l.Protocol})
	}

	byPort := make(map[int]ListenerRuntime, len(listeners))
	for _, l := range listeners {
		byPort[l.Port] = l
	}
	return listeners, byPort
}

// selectCertificate picks the certificate for policy whose domain is
// named by the policy and that expires furthest in the future. On a tie
// the certificate listed first wins. Absence of any matching certificate
// yields nil, which the caller falls back to the default certificate for.
func selectCertificate(policy types.TLSPolicy, certs []types.Certificate) *types.Certificate {
	var best *types.Certificate
	for i := range certs {
		cert := &certs[i]
		matches := false
		for _, domain := range policy.Domains {
			if domain == cert.Domain {
				matches = true
				break
			}
		}
		if !matches {
			continue
		}
		if best == nil || cert.ExpiresAt.After(best.ExpiresAt) {
			best = cert
		}
	}
	return best
}

func buildTLSByPort(snapshot *types.Snapshot, listeners []ListenerRuntime, listenersByPort map[int]ListenerRuntime, httpsRange *PortRange, defaultCert *tls.Certificate) map[int]*tls.Certificate {
	tlsByPort := make(map[int]*tls.Certificate)

	policyByID := make(map[uuid.UUID]types.TLSPolicy, len(snapshot.TLSPolicies))
	for _, p := range snapshot.TLSPolicies {
		policyByID[p.ID] = p
	}
	listenerByID := make(map[uuid.UUID]types.Listener, len(snapshot.Listeners))
	for _, l := range snapshot.Listeners {
		listenerByID[l.ID] = l
	}

	certFor := func(l types.Listener) *tls.Certificate {
		if l.TLSPolicyID == nil {
			return defaultCert
		}
		policy, ok := policyByID[*l.TLSPolicyID]
		if !ok {
			return defaultCert
		}
		model := selectCertificate(policy, snapshot.Certificates)
		if model == nil {
			return defaultCert
		}
		pair, err := tls.X509KeyPair(model.CertPEM, model.KeyPEM)
		if err != nil {
			log.Warn("failed to parse certificate, falling back to default")
			return defaultCert
		}
		return &pair
	}

	assign := func(port int) {
		lr, ok := listenersByPort[port]
		if !ok || lr.Protocol != types.ProtocolHTTPS {
			tlsByPort[port] = defaultCert
			return
		}
		l, ok := listenerByID[lr.ID]
		if !ok {
			tlsByPort[port] = defaultCert
			return
		}
		tlsByPort[port] = certFor(l)
	}

	if httpsRange != nil {
		for port := httpsRange.Start; port <= httpsRange.End; port++ {
			assign(port)
		}
		return tlsByPort
	}

	for _, l := range listeners {
		if l.Protocol != types.ProtocolHTTPS {
			continue
		}
		model := listenerByID[l.ID]
		tlsByPort[l.Port] = certFor(model)
	}
	return tlsByPort
}

// CertificateForPort returns the certificate bound to port, or nil when
// none is; there is no SNI-based selection, every connection on the port
// gets the same certificate.
func (c *Config) CertificateForPort(port int) *tls.Certificate {
	return c.TLSByPort[port]
}
