package controlplane

import (
	"encoding/json"
	"time"

	"github.com/cuemby/gateway/pkg/log"
	"github.com/cuemby/gateway/pkg/metrics"
	"github.com/cuemby/gateway/pkg/storage"
	"github.com/cuemby/gateway/pkg/types"
	"github.com/google/uuid"
)

// spawnAudit records a mutating action in the background. A failure to
// persist it never blocks or fails the request that triggered it —
// only a warning log line and a counter bump mark the miss.
func spawnAudit(store storage.Store, actor, action string, diff any) {
	diffJSON, err := json.Marshal(diff)
	if err != nil {
		diffJSON = nil
	}

	go func() {
		entry := &types.AuditLog{
			ID:        uuid.New(),
			Actor:     actor,
			Action:    action,
			Diff:      diffJSON,
			CreatedAt: time.Now(),
		}
		if err := store.CreateAuditLog(entry); err != nil {
			metrics.AuditWriteFailuresTotal.Inc()
			log.WithComponent("controlplane").Warn().
				Err(err).
				Str("action", action).
				Str("actor", actor).
				Msg("failed to write audit log")
		}
	}()
}
