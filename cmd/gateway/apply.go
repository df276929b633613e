package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/gateway/pkg/client"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a gateway configuration file",
	Long: `Apply a gateway resource manifest against the control plane's admin API.

Examples:
  # Create an upstream pool
  gateway apply -f pool.yaml

  # Apply every document in a multi-resource manifest
  gateway apply -f listeners.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	applyCmd.Flags().String("control-plane", "http://127.0.0.1:9090", "Control plane admin API URL")
	applyCmd.Flags().String("actor", "gateway-apply", "Actor name attributed on audit log entries")
	applyCmd.Flags().Bool("publish", false, "Validate and publish after applying")
	_ = applyCmd.MarkFlagRequired("file")
}

// resource is the generic manifest shape every Kind is parsed into, the
// same way the admin API treats a pool, listener, route, TLS policy or
// certificate as a name plus a kind-specific spec.
type resource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   resourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type resourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	controlPlaneURL, _ := cmd.Flags().GetString("control-plane")
	actor, _ := cmd.Flags().GetString("actor")
	publish, _ := cmd.Flags().GetBool("publish")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	c := client.NewClient(controlPlaneURL, actor)
	ctx := context.Background()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var r resource
		if err := decoder.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("parse manifest: %w", err)
		}
		if r.Kind == "" {
			continue
		}
		if err := applyResource(ctx, c, &r); err != nil {
			return fmt.Errorf("apply %s %q: %w", r.Kind, r.Metadata.Name, err)
		}
	}

	if publish {
		version, err := c.PublishConfig(ctx)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Printf("Published version %s\n", version.ID)
	}

	return nil
}

func applyResource(ctx context.Context, c *client.Client, r *resource) error {
	switch r.Kind {
	case "Pool":
		return applyPool(ctx, c, r)
	case "Listener":
		return applyListener(ctx, c, r)
	case "Route":
		return applyRoute(ctx, c, r)
	case "TLSPolicy":
		return applyTLSPolicy(ctx, c, r)
	case "Certificate":
		return applyCertificate(ctx, c, r)
	default:
		return fmt.Errorf("unsupported resource kind: %s", r.Kind)
	}
}

func applyPool(ctx context.Context, c *client.Client, r *resource) error {
	req := client.CreatePoolRequest{
		Name:   r.Metadata.Name,
		Policy: types.PoolPolicy(getString(r.Spec, "policy", string(types.PolicyRoundRobin))),
	}
	if hc, ok := r.Spec["healthCheck"]; ok {
		raw, err := json.Marshal(hc)
		if err != nil {
			return fmt.Errorf("encode healthCheck: %w", err)
		}
		req.HealthCheck = raw
	}
	pool, err := c.CreatePool(ctx, req)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	fmt.Printf("Pool created: %s (%s)\n", pool.Name, pool.ID)

	targets, _ := r.Spec["targets"].([]interface{})
	for _, t := range targets {
		spec, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		target, err := c.CreateTarget(ctx, pool.ID, client.CreateTargetRequest{
			Address: getString(spec, "address", ""),
			Weight:  getInt(spec, "weight", 1),
		})
		if err != nil {
			return fmt.Errorf("create target: %w", err)
		}
		fmt.Printf("  target added: %s\n", target.Address)
	}
	return nil
}

func applyListener(ctx context.Context, c *client.Client, r *resource) error {
	req := client.CreateListenerRequest{
		Name:     r.Metadata.Name,
		Port:     getInt(r.Spec, "port", 0),
		Protocol: types.ListenerProtocol(getString(r.Spec, "protocol", string(types.ProtocolHTTP))),
	}
	if tlsPolicyID := getString(r.Spec, "tlsPolicyId", ""); tlsPolicyID != "" {
		id, err := uuid.Parse(tlsPolicyID)
		if err != nil {
			return fmt.Errorf("parse tlsPolicyId: %w", err)
		}
		req.TLSPolicyID = &id
	}
	listener, err := c.CreateListener(ctx, req)
	if err != nil {
		return fmt.Errorf("create listener: %w", err)
	}
	fmt.Printf("Listener created: %s (port %d, %s)\n", listener.Name, listener.Port, listener.ID)
	return nil
}

func applyRoute(ctx context.Context, c *client.Client, r *resource) error {
	listenerID, err := uuid.Parse(getString(r.Spec, "listenerId", ""))
	if err != nil {
		return fmt.Errorf("parse listenerId: %w", err)
	}
	poolID, err := uuid.Parse(getString(r.Spec, "upstreamPoolId", ""))
	if err != nil {
		return fmt.Errorf("parse upstreamPoolId: %w", err)
	}
	matchExpr, err := json.Marshal(r.Spec["match"])
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	route, err := c.CreateRoute(ctx, client.CreateRouteRequest{
		ListenerID:     listenerID,
		Kind:           types.RouteKind(getString(r.Spec, "type", string(types.RouteKindPath))),
		MatchExpr:      matchExpr,
		Priority:       getInt(r.Spec, "priority", 0),
		UpstreamPoolID: poolID,
	})
	if err != nil {
		return fmt.Errorf("create route: %w", err)
	}
	fmt.Printf("Route created: %s (%s)\n", r.Metadata.Name, route.ID)
	return nil
}

func applyTLSPolicy(ctx context.Context, c *client.Client, r *resource) error {
	domains, _ := r.Spec["domains"].([]interface{})
	var domainStrs []string
	for _, d := range domains {
		domainStrs = append(domainStrs, fmt.Sprintf("%v", d))
	}
	policy, err := c.CreateTLSPolicy(ctx, client.CreateTLSPolicyRequest{
		Mode:    types.TLSPolicyMode(getString(r.Spec, "mode", string(types.TLSModeStatic))),
		Domains: domainStrs,
	})
	if err != nil {
		return fmt.Errorf("create tls policy: %w", err)
	}
	fmt.Printf("TLS policy created: %s (%s)\n", r.Metadata.Name, policy.ID)
	return nil
}

func applyCertificate(ctx context.Context, c *client.Client, r *resource) error {
	certPath := getString(r.Spec, "certFile", "")
	keyPath := getString(r.Spec, "keyFile", "")
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return fmt.Errorf("read certFile: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("read keyFile: %w", err)
	}
	cert, err := c.CreateCertificate(ctx, client.CreateCertificateRequest{
		Domain:  getString(r.Spec, "domain", ""),
		CertPEM: certPEM,
		KeyPEM:  keyPEM,
	})
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	fmt.Printf("Certificate created: %s (%s)\n", cert.Domain, cert.ID)
	return nil
}

func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getInt(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}
