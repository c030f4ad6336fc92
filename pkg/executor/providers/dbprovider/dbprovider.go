/*
Copyright 2026 The Incident Core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dbprovider implements the ActionExecutor's database action
// family. Like cloudprovider, it defines a minimal collaborator
// interface rather than binding to one SQL engine's driver, since a
// remediation fleet routinely spans several database engines.
package dbprovider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// Client is the minimal surface a concrete database administration client
// must expose.
type Client interface {
	ResetConnectionPool(ctx context.Context, database string) error
	KillSlowQueries(ctx context.Context, database string, olderThan time.Duration) (int, error)
	AnalyzeQuery(ctx context.Context, database, query string) (map[string]interface{}, error)
	AnalyzeIndexes(ctx context.Context, database, table string) (map[string]interface{}, error)
	CreateIndex(ctx context.Context, database, table, definition string) error
	RunVacuum(ctx context.Context, database, table string) error
	PromoteReplica(ctx context.Context, database, replicaID string) error
	SyncReplica(ctx context.Context, database, replicaID string) error
	TriggerBackup(ctx context.Context, database string) (string, error)
	RestoreBackup(ctx context.Context, database, backupID string) error
	AdjustConnectionLimit(ctx context.Context, database string, limit int) error
	FlushCache(ctx context.Context, database string) error
	RefreshStats(ctx context.Context, database, table string) error
}

// Provider dispatches database-family action types against a Client.
type Provider struct {
	client Client
	log    *zap.Logger
}

// New wraps client with the uniform provider contract.
func New(client Client, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{client: client, log: log}
}

// Execute implements executor.Provider.
func (p *Provider) Execute(ctx context.Context, actionType string, params map[string]interface{}) (types.ActionResult, error) {
	start := time.Now()
	dryRun, _ := params["__dry_run"].(bool)

	msg, details, err := p.dispatch(ctx, actionType, params, dryRun)
	result := types.ActionResult{
		Success:         err == nil,
		Message:         msg,
		Details:         details,
		DurationSeconds: time.Since(start).Seconds(),
		DryRun:          dryRun,
	}
	if err != nil {
		result.Message = err.Error()
		p.log.Warn("database action failed", logging.NewFields().
			Component("dbprovider").Operation(actionType).Error(err).Zap()...)
	}
	return result, nil
}

func (p *Provider) dispatch(ctx context.Context, actionType string, params map[string]interface{}, dryRun bool) (string, map[string]interface{}, error) {
	db, _ := params["database"].(string)

	switch actionType {
	case "connection_pool_reset", "connection_limit_adjust":
		if actionType == "connection_limit_adjust" {
			limit, _ := intParam(params, "limit")
			if dryRun {
				return fmt.Sprintf("dry-run: would set connection limit on %s to %d", db, limit), nil, nil
			}
			return fmt.Sprintf("set connection limit on %s to %d", db, limit), nil, p.client.AdjustConnectionLimit(ctx, db, limit)
		}
		if dryRun {
			return fmt.Sprintf("dry-run: would reset connection pool on %s", db), nil, nil
		}
		return fmt.Sprintf("reset connection pool on %s", db), nil, p.client.ResetConnectionPool(ctx, db)

	case "slow_query_kill", "kill_connections":
		olderThan := 30 * time.Second
		if v, ok := intParam(params, "olderThanSeconds"); ok {
			olderThan = time.Duration(v) * time.Second
		}
		if dryRun {
			return fmt.Sprintf("dry-run: would kill queries older than %s on %s", olderThan, db), nil, nil
		}
		n, err := p.client.KillSlowQueries(ctx, db, olderThan)
		return fmt.Sprintf("killed %d slow queries on %s", n, db), map[string]interface{}{"killed": n}, err

	case "query_analyze":
		query, _ := params["query"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would analyze query on %s", db), nil, nil
		}
		plan, err := p.client.AnalyzeQuery(ctx, db, query)
		return fmt.Sprintf("analyzed query on %s", db), plan, err

	case "index_analyze":
		table, _ := params["table"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would analyze indexes on %s.%s", db, table), nil, nil
		}
		report, err := p.client.AnalyzeIndexes(ctx, db, table)
		return fmt.Sprintf("analyzed indexes on %s.%s", db, table), report, err

	case "index_create":
		table, _ := params["table"].(string)
		definition, _ := params["definition"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would create index on %s.%s", db, table), nil, nil
		}
		return fmt.Sprintf("created index on %s.%s", db, table), nil, p.client.CreateIndex(ctx, db, table, definition)

	case "vacuum_run":
		table, _ := params["table"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would vacuum %s.%s", db, table), nil, nil
		}
		return fmt.Sprintf("vacuumed %s.%s", db, table), nil, p.client.RunVacuum(ctx, db, table)

	case "replica_promote":
		replica, _ := params["replicaID"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would promote replica %s on %s", replica, db), nil, nil
		}
		return fmt.Sprintf("promoted replica %s on %s", replica, db), nil, p.client.PromoteReplica(ctx, db, replica)

	case "replica_sync":
		replica, _ := params["replicaID"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would resync replica %s on %s", replica, db), nil, nil
		}
		return fmt.Sprintf("resynced replica %s on %s", replica, db), nil, p.client.SyncReplica(ctx, db, replica)

	case "backup_trigger":
		if dryRun {
			return fmt.Sprintf("dry-run: would trigger backup of %s", db), nil, nil
		}
		id, err := p.client.TriggerBackup(ctx, db)
		return fmt.Sprintf("triggered backup %s of %s", id, db), map[string]interface{}{"backupID": id}, err

	case "backup_restore":
		backupID, _ := params["backupID"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would restore backup %s onto %s", backupID, db), nil, nil
		}
		return fmt.Sprintf("restored backup %s onto %s", backupID, db), nil, p.client.RestoreBackup(ctx, db, backupID)

	case "cache_flush":
		if dryRun {
			return fmt.Sprintf("dry-run: would flush cache on %s", db), nil, nil
		}
		return fmt.Sprintf("flushed cache on %s", db), nil, p.client.FlushCache(ctx, db)

	case "stats_refresh":
		table, _ := params["table"].(string)
		if dryRun {
			return fmt.Sprintf("dry-run: would refresh stats on %s.%s", db, table), nil, nil
		}
		return fmt.Sprintf("refreshed stats on %s.%s", db, table), nil, p.client.RefreshStats(ctx, db, table)

	default:
		return "", nil, fmt.Errorf("dbprovider: unsupported action type %q", actionType)
	}
}

func intParam(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
