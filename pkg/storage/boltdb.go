package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cuemby/gateway/pkg/gatewayerr"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketListeners       = []byte("listeners")
	bucketRoutes          = []byte("routes")
	bucketUpstreamPools   = []byte("upstream_pools")
	bucketUpstreamTargets = []byte("upstream_targets")
	bucketTLSPolicies     = []byte("tls_policies")
	bucketCertificates    = []byte("certificates")
	bucketConfigVersions  = []byte("config_versions")
	bucketNodeRecords     = []byte("node_records")
	bucketAuditLogs       = []byte("audit_logs")
)

// BoltStore implements Store on top of a single bbolt file, one bucket
// per entity kind, values JSON-marshaled and keyed by UUID string (node
// records by node ID).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the bbolt file under dataDir
// and ensures every bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "gateway.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketListeners,
			bucketRoutes,
			bucketUpstreamPools,
			bucketUpstreamTargets,
			bucketTLSPolicies,
			bucketCertificates,
			bucketConfigVersions,
			bucketNodeRecords,
			bucketAuditLogs,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Listener ---

func (s *BoltStore) CreateListener(l *types.Listener) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketListeners).Put([]byte(l.ID.String()), data)
	})
}

func (s *BoltStore) GetListener(id uuid.UUID) (*types.Listener, error) {
	var l types.Listener
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketListeners).Get([]byte(id.String()))
		if data == nil {
			return gatewayerr.NotFound("listener %s not found", id)
		}
		return json.Unmarshal(data, &l)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *BoltStore) ListListeners() ([]types.Listener, error) {
	var out []types.Listener
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketListeners).ForEach(func(k, v []byte) error {
			var l types.Listener
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			out = append(out, l)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateListener(l *types.Listener) error {
	return s.CreateListener(l)
}

func (s *BoltStore) DeleteListener(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketListeners).Delete([]byte(id.String()))
	})
}

// --- Route ---

func (s *BoltStore) CreateRoute(r *types.Route) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRoutes).Put([]byte(r.ID.String()), data)
	})
}

func (s *BoltStore) GetRoute(id uuid.UUID) (*types.Route, error) {
	var r types.Route
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRoutes).Get([]byte(id.String()))
		if data == nil {
			return gatewayerr.NotFound("route %s not found", id)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) ListRoutes() ([]types.Route, error) {
	var out []types.Route
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoutes).ForEach(func(k, v []byte) error {
			var r types.Route
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateRoute(r *types.Route) error {
	return s.CreateRoute(r)
}

func (s *BoltStore) DeleteRoute(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoutes).Delete([]byte(id.String()))
	})
}

// --- UpstreamPool ---

func (s *BoltStore) CreateUpstreamPool(p *types.UpstreamPool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketUpstreamPools).Put([]byte(p.ID.String()), data)
	})
}

func (s *BoltStore) GetUpstreamPool(id uuid.UUID) (*types.UpstreamPool, error) {
	var p types.UpstreamPool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUpstreamPools).Get([]byte(id.String()))
		if data == nil {
			return gatewayerr.NotFound("upstream pool %s not found", id)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListUpstreamPools() ([]types.UpstreamPool, error) {
	var out []types.UpstreamPool
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUpstreamPools).ForEach(func(k, v []byte) error {
			var p types.UpstreamPool
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateUpstreamPool(p *types.UpstreamPool) error {
	return s.CreateUpstreamPool(p)
}

func (s *BoltStore) DeleteUpstreamPool(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUpstreamPools).Delete([]byte(id.String()))
	})
}

// --- UpstreamTarget ---

func (s *BoltStore) CreateUpstreamTarget(t *types.UpstreamTarget) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketUpstreamTargets).Put([]byte(t.ID.String()), data)
	})
}

func (s *BoltStore) GetUpstreamTarget(id uuid.UUID) (*types.UpstreamTarget, error) {
	var t types.UpstreamTarget
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUpstreamTargets).Get([]byte(id.String()))
		if data == nil {
			return gatewayerr.NotFound("upstream target %s not found", id)
		}
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) ListUpstreamTargets() ([]types.UpstreamTarget, error) {
	var out []types.UpstreamTarget
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUpstreamTargets).ForEach(func(k, v []byte) error {
			var t types.UpstreamTarget
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListUpstreamTargetsByPool(poolID uuid.UUID) ([]types.UpstreamTarget, error) {
	all, err := s.ListUpstreamTargets()
	if err != nil {
		return nil, err
	}
	var out []types.UpstreamTarget
	for _, t := range all {
		if t.PoolID == poolID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *BoltStore) UpdateUpstreamTarget(t *types.UpstreamTarget) error {
	return s.CreateUpstreamTarget(t)
}

func (s *BoltStore) DeleteUpstreamTarget(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUpstreamTargets).Delete([]byte(id.String()))
	})
}

// --- TLSPolicy ---

func (s *BoltStore) CreateTLSPolicy(p *types.TLSPolicy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTLSPolicies).Put([]byte(p.ID.String()), data)
	})
}

func (s *BoltStore) GetTLSPolicy(id uuid.UUID) (*types.TLSPolicy, error) {
	var p types.TLSPolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTLSPolicies).Get([]byte(id.String()))
		if data == nil {
			return gatewayerr.NotFound("tls policy %s not found", id)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListTLSPolicies() ([]types.TLSPolicy, error) {
	var out []types.TLSPolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTLSPolicies).ForEach(func(k, v []byte) error {
			var p types.TLSPolicy
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateTLSPolicy(p *types.TLSPolicy) error {
	return s.CreateTLSPolicy(p)
}

func (s *BoltStore) DeleteTLSPolicy(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTLSPolicies).Delete([]byte(id.String()))
	})
}

// --- Certificate ---

func (s *BoltStore) CreateCertificate(c *types.Certificate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCertificates).Put([]byte(c.ID.String()), data)
	})
}

func (s *BoltStore) GetCertificate(id uuid.UUID) (*types.Certificate, error) {
	var c types.Certificate
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCertificates).Get([]byte(id.String()))
		if data == nil {
			return gatewayerr.NotFound("certificate %s not found", id)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListCertificates() ([]types.Certificate, error) {
	var out []types.Certificate
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCertificates).ForEach(func(k, v []byte) error {
			var c types.Certificate
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateCertificate(c *types.Certificate) error {
	return s.CreateCertificate(c)
}

func (s *BoltStore) DeleteCertificate(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCertificates).Delete([]byte(id.String()))
	})
}

// --- ConfigVersion ---

// ArchiveAndPublish archives the currently published version (if any)
// and inserts version as the new published version, in one transaction.
func (s *BoltStore) ArchiveAndPublish(version *types.ConfigVersion) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfigVersions)
		if err := b.ForEach(func(k, v []byte) error {
			var cv types.ConfigVersion
			if err := json.Unmarshal(v, &cv); err != nil {
				return err
			}
			if cv.Status != types.VersionStatusPublished {
				return nil
			}
			cv.Status = types.VersionStatusArchived
			data, err := json.Marshal(&cv)
			if err != nil {
				return err
			}
			return b.Put(k, data)
		}); err != nil {
			return err
		}

		data, err := json.Marshal(version)
		if err != nil {
			return err
		}
		return b.Put([]byte(version.ID.String()), data)
	})
}

// ArchiveAndMarkPublished archives whatever version is currently
// published and re-marks versionID as published, returning it. Used by
// Rollback to republish an already-archived version.
func (s *BoltStore) ArchiveAndMarkPublished(versionID uuid.UUID) (*types.ConfigVersion, error) {
	var target types.ConfigVersion
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfigVersions)

		data := b.Get([]byte(versionID.String()))
		if data == nil {
			return gatewayerr.NotFound("config version %s not found", versionID)
		}
		if err := json.Unmarshal(data, &target); err != nil {
			return err
		}

		if err := b.ForEach(func(k, v []byte) error {
			var cv types.ConfigVersion
			if err := json.Unmarshal(v, &cv); err != nil {
				return err
			}
			if cv.Status != types.VersionStatusPublished {
				return nil
			}
			cv.Status = types.VersionStatusArchived
			out, err := json.Marshal(&cv)
			if err != nil {
				return err
			}
			return b.Put(k, out)
		}); err != nil {
			return err
		}

		target.Status = types.VersionStatusPublished
		out, err := json.Marshal(&target)
		if err != nil {
			return err
		}
		return b.Put([]byte(target.ID.String()), out)
	})
	if err != nil {
		return nil, err
	}
	return &target, nil
}

func (s *BoltStore) GetPublishedVersion() (*types.ConfigVersion, error) {
	var found *types.ConfigVersion
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfigVersions).ForEach(func(k, v []byte) error {
			var cv types.ConfigVersion
			if err := json.Unmarshal(v, &cv); err != nil {
				return err
			}
			if cv.Status == types.VersionStatusPublished {
				found = &cv
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, gatewayerr.NotFound("no published config version")
	}
	return found, nil
}

func (s *BoltStore) GetVersion(id uuid.UUID) (*types.ConfigVersion, error) {
	var cv types.ConfigVersion
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConfigVersions).Get([]byte(id.String()))
		if data == nil {
			return gatewayerr.NotFound("config version %s not found", id)
		}
		return json.Unmarshal(data, &cv)
	})
	if err != nil {
		return nil, err
	}
	return &cv, nil
}

// ListVersions returns every stored version, newest first.
func (s *BoltStore) ListVersions() ([]types.ConfigVersion, error) {
	var out []types.ConfigVersion
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfigVersions).ForEach(func(k, v []byte) error {
			var cv types.ConfigVersion
			if err := json.Unmarshal(v, &cv); err != nil {
				return err
			}
			out = append(out, cv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- NodeRecord ---

func (s *BoltStore) UpsertNodeRecord(n *types.NodeRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNodeRecords).Put([]byte(n.NodeID), data)
	})
}

func (s *BoltStore) ListNodeRecords() ([]types.NodeRecord, error) {
	var out []types.NodeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodeRecords).ForEach(func(k, v []byte) error {
			var n types.NodeRecord
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			out = append(out, n)
			return nil
		})
	})
	return out, err
}

// --- AuditLog ---

func (s *BoltStore) CreateAuditLog(a *types.AuditLog) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAuditLogs).Put([]byte(a.ID.String()), data)
	})
}

func (s *BoltStore) ListAuditLogs() ([]types.AuditLog, error) {
	var out []types.AuditLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuditLogs).ForEach(func(k, v []byte) error {
			var a types.AuditLog
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
