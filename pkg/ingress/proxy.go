package ingress

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/gateway/pkg/acme"
	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/metrics"
	"github.com/cuemby/gateway/pkg/runtime"
	"github.com/cuemby/gateway/pkg/types"
)

// Proxy is the data plane's HTTP(S) request router. It holds a
// compiled *runtime.Config behind a mutex, swapped wholesale whenever
// the node loop applies a newly published snapshot; in-flight requests
// keep running against whatever Config they resolved a target from.
type Proxy struct {
	mu  sync.RWMutex
	cfg *runtime.Config

	acmeClient *acme.ChallengeClient
	httpRange  *runtime.PortRange
	httpsRange *runtime.PortRange

	servers []*http.Server
}

// NewProxy creates a proxy with an empty routing table. Call SetConfig
// once a runtime.Config is available, and Start to bind listeners.
func NewProxy(acmeClient *acme.ChallengeClient, httpRange, httpsRange *runtime.PortRange) *Proxy {
	return &Proxy{
		cfg:        runtime.Build(&types.Snapshot{}, nil, httpRange, httpsRange),
		acmeClient: acmeClient,
		httpRange:  httpRange,
		httpsRange: httpsRange,
	}
}

// SetConfig atomically replaces the compiled routing table. Safe to
// call concurrently with requests in flight.
func (p *Proxy) SetConfig(cfg *runtime.Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Proxy) config() *runtime.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Config returns the currently active routing table, for callers like
// the pool health checker that need read access without being part of
// this package.
func (p *Proxy) Config() *runtime.Config {
	return p.config()
}

// Start pre-binds every port in the configured HTTP and HTTPS port
// ranges, the same "bind the whole range up front" model the control
// plane's port-range validation assumes: a listener published later in
// the range just starts answering on an already-open socket, with no
// restart required. If neither range is configured, it falls back to
// binding only the ports the current Config's listeners declare —
// a later publish that adds a listener on a new port needs a restart.
func (p *Proxy) Start(ctx context.Context) error {
	cfg := p.config()

	if p.httpRange == nil && p.httpsRange == nil {
		for _, l := range cfg.Listeners {
			if err := p.listenAndServe(l.Port, cfg.CertificateForPort(l.Port) != nil); err != nil {
				return err
			}
		}
		if len(cfg.Listeners) == 0 {
			log.Warn("no listeners configured at startup; a restart is required after the first publish")
		}
	} else {
		if p.httpRange != nil {
			for port := p.httpRange.Start; port <= p.httpRange.End; port++ {
				if err := p.listenAndServe(port, false); err != nil {
					return err
				}
			}
			log.WithComponent("ingress").Info().
				Int("start", p.httpRange.Start).Int("end", p.httpRange.End).
				Msg("pre-bound HTTP port range")
		}
		if p.httpsRange != nil {
			for port := p.httpsRange.Start; port <= p.httpsRange.End; port++ {
				if err := p.listenAndServe(port, true); err != nil {
					return err
				}
			}
			log.WithComponent("ingress").Info().
				Int("start", p.httpsRange.Start).Int("end", p.httpsRange.End).
				Msg("pre-bound HTTPS port range")
		}
	}

	<-ctx.Done()
	log.Info("shutting down ingress proxy")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range p.servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithComponent("ingress").Error().Err(err).Msg("server shutdown failed")
			}
		}(srv)
	}
	wg.Wait()

	return nil
}

func (p *Proxy) listenAndServe(port int, tls bool) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      p.handler(port),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if tls {
		srv.TLSConfig = p.tlsConfig(port)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	p.servers = append(p.servers, srv)

	go func() {
		var serveErr error
		if tls {
			serveErr = srv.ServeTLS(ln, "", "")
		} else {
			serveErr = srv.Serve(ln)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.WithComponent("ingress").Error().Err(serveErr).Str("addr", addr).Msg("server error")
		}
	}()

	return nil
}

// tlsConfig returns a tls.Config whose GetCertificate always resolves
// against the live Config, so a published certificate rotation takes
// effect on the next handshake without rebinding the listener.
func (p *Proxy) tlsConfig(port int) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert := p.config().CertificateForPort(port)
			if cert == nil {
				return nil, fmt.Errorf("no certificate configured for port %d", port)
			}
			return cert, nil
		},
	}
}

// handler returns the request handler bound to the port a listener is
// serving on, so a single handler function can be shared across every
// pre-bound socket while still knowing which listener it backs.
func (p *Proxy) handler(port int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.serve(w, r, port)
	})
}

func (p *Proxy) serve(w http.ResponseWriter, r *http.Request, port int) {
	metrics.RequestsInflight.Inc()
	defer metrics.RequestsInflight.Dec()
	timer := metrics.NewTimer()

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	if token, ok := acme.AcmeTokenFromPath(r.URL.Path); ok {
		p.serveAcmeChallenge(sw, r, token)
		p.observe(r, sw, timer)
		return
	}

	cfg := p.config()
	listener, ok := cfg.ListenersByPort[port]
	if !ok {
		http.Error(sw, "no listener bound to this port", http.StatusNotFound)
		p.observe(r, sw, timer)
		return
	}

	if !cfg.HasRoutes(listener.ID) {
		http.Error(sw, "no route matched", http.StatusNotFound)
		p.observe(r, sw, timer)
		return
	}

	route, ok := cfg.Match(listener.ID, r)
	if !ok {
		metrics.UpstreamErrorsTotal.WithLabelValues("no_route_matched").Inc()
		http.Error(sw, "no upstream matched", http.StatusBadGateway)
		p.observe(r, sw, timer)
		return
	}

	target := cfg.PickTarget(route.UpstreamPoolID)
	if target == nil {
		metrics.UpstreamErrorsTotal.WithLabelValues("no_healthy_target").Inc()
		http.Error(sw, "no upstream matched", http.StatusBadGateway)
		p.observe(r, sw, timer)
		return
	}
	defer target.Release()

	p.proxyRequest(sw, r, target.Address())
	p.observe(r, sw, timer)
}

func (p *Proxy) observe(r *http.Request, sw *statusWriter, timer *metrics.Timer) {
	timer.ObserveDurationVec(metrics.RequestDuration, r.Method, strconv.Itoa(sw.status))
}

func (p *Proxy) serveAcmeChallenge(w http.ResponseWriter, r *http.Request, token string) {
	if p.acmeClient == nil {
		http.NotFound(w, r)
		return
	}
	keyAuth, ok := p.acmeClient.Fetch(r.Context(), token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(keyAuth))
}

// proxyRequest forwards r to targetAddr over plain HTTP, the way every
// upstream target is addressed regardless of which port the downstream
// connection arrived on — TLS, if any, is terminated at the listener.
func (p *Proxy) proxyRequest(w http.ResponseWriter, r *http.Request, targetAddr string) {
	target := &url.URL{Scheme: "http", Host: targetAddr}
	proxy := httputil.NewSingleHostReverseProxy(target)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = r.Host
		req.Header.Set("X-Forwarded-For", r.RemoteAddr)
		req.Header.Set("X-Forwarded-Proto", proxyScheme(r))
		req.Header.Set("X-Forwarded-Host", r.Host)
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		metrics.UpstreamErrorsTotal.WithLabelValues("dial_or_roundtrip").Inc()
		log.WithComponent("ingress").Warn().Err(err).Str("target", targetAddr).Msg("upstream proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	proxy.ServeHTTP(w, r)
}

func proxyScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// statusWriter captures the status code written so it can be reported
// as a metric label after the handler returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
