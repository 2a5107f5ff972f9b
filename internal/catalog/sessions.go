package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// CreateSession stores data for a web session and returns its id. A nil
// expires means the catalog's session lifetime from now.
func (c *Catalog) CreateSession(ctx context.Context, data map[string]any, expires *time.Time) (int64, error) {
	if expires == nil {
		at := time.Now().UTC().Add(c.sessionTTL)
		expires = &at
	}
	serialized, err := jsonArg(data)
	if err != nil {
		return 0, invalidInput("unencodable session data: %v", err)
	}

	var id int64
	err = c.tx(ctx, "", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, c.q("INSERT INTO session_info (expires, data) VALUES (?, ?) RETURNING id"),
			c.timeArg(expires), serialized).Scan(&id)
		return dbError(err, "create_session")
	})
	return id, err
}

// GetSession returns a session's data, or nil when there is no such
// session. Expired sessions are returned until they are pruned.
func (c *Catalog) GetSession(ctx context.Context, id int64) (map[string]any, error) {
	var data map[string]any
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx, c.q("SELECT data FROM session_info WHERE id = ?"), id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return dbError(err, "get_session")
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return dbError(err, "get_session")
		}
		return nil
	})
	return data, err
}

// PruneSessions deletes expired sessions and returns how many went
func (c *Catalog) PruneSessions(ctx context.Context) (int64, error) {
	var pruned int64
	err := c.tx(ctx, metrics.OpPruneSessions, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx, c.q("DELETE FROM session_info WHERE expires < ?"), c.timeArg(&now))
		if err != nil {
			return dbError(err, "prune_sessions")
		}
		pruned, _ = result.RowsAffected()
		return nil
	})
	if pruned > 0 {
		c.log.Debug("pruned sessions", logger.Int64("count", pruned))
	}
	return pruned, err
}
