package storage

import (
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

// Store defines the control plane's entity persistence contract.
// Update performs an upsert, matching the BoltStore behavior below.
type Store interface {
	CreateListener(l *types.Listener) error
	GetListener(id uuid.UUID) (*types.Listener, error)
	ListListeners() ([]types.Listener, error)
	UpdateListener(l *types.Listener) error
	DeleteListener(id uuid.UUID) error

	CreateRoute(r *types.Route) error
	GetRoute(id uuid.UUID) (*types.Route, error)
	ListRoutes() ([]types.Route, error)
	UpdateRoute(r *types.Route) error
	DeleteRoute(id uuid.UUID) error

	CreateUpstreamPool(p *types.UpstreamPool) error
	GetUpstreamPool(id uuid.UUID) (*types.UpstreamPool, error)
	ListUpstreamPools() ([]types.UpstreamPool, error)
	UpdateUpstreamPool(p *types.UpstreamPool) error
	DeleteUpstreamPool(id uuid.UUID) error

	CreateUpstreamTarget(t *types.UpstreamTarget) error
	GetUpstreamTarget(id uuid.UUID) (*types.UpstreamTarget, error)
	ListUpstreamTargets() ([]types.UpstreamTarget, error)
	ListUpstreamTargetsByPool(poolID uuid.UUID) ([]types.UpstreamTarget, error)
	UpdateUpstreamTarget(t *types.UpstreamTarget) error
	DeleteUpstreamTarget(id uuid.UUID) error

	CreateTLSPolicy(p *types.TLSPolicy) error
	GetTLSPolicy(id uuid.UUID) (*types.TLSPolicy, error)
	ListTLSPolicies() ([]types.TLSPolicy, error)
	UpdateTLSPolicy(p *types.TLSPolicy) error
	DeleteTLSPolicy(id uuid.UUID) error

	CreateCertificate(c *types.Certificate) error
	GetCertificate(id uuid.UUID) (*types.Certificate, error)
	ListCertificates() ([]types.Certificate, error)
	UpdateCertificate(c *types.Certificate) error
	DeleteCertificate(id uuid.UUID) error

	// ConfigVersions and NodeRecords support the Publication State Machine
	// and Node Loop respectively; ArchiveAndPublish performs the
	// archive-then-insert step as one transaction.
	ArchiveAndPublish(version *types.ConfigVersion) error
	ArchiveAndMarkPublished(versionID uuid.UUID) (*types.ConfigVersion, error)
	GetPublishedVersion() (*types.ConfigVersion, error)
	GetVersion(id uuid.UUID) (*types.ConfigVersion, error)
	ListVersions() ([]types.ConfigVersion, error)

	UpsertNodeRecord(n *types.NodeRecord) error
	ListNodeRecords() ([]types.NodeRecord, error)

	// CreateAuditLog persists one audit entry; ListAuditLogs supports the
	// operability surface, newest first.
	CreateAuditLog(a *types.AuditLog) error
	ListAuditLogs() ([]types.AuditLog, error)

	Close() error
}
