package db

import (
	"context"
	"fmt"
)

// Dependents counts the rows that reference a user
type Dependents struct {
	Networks int64
	Buffers  int64
	Backlog  int64
}

// CountDependents counts the network, buffer and backlog rows owned by a user
func (db *DB) CountDependents(ctx context.Context, userID int64) (Dependents, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM network WHERE userid = ?),
			(SELECT COUNT(*) FROM buffer WHERE userid = ?),
			(SELECT COUNT(*) FROM backlog WHERE bufferid IN (SELECT bufferid FROM buffer WHERE userid = ?))
	`

	var d Dependents
	err := db.conn.QueryRowContext(ctx, query, userID, userID, userID).Scan(&d.Networks, &d.Buffers, &d.Backlog)
	if err != nil {
		return Dependents{}, fmt.Errorf("failed to count dependents: %w", err)
	}

	return d, nil
}
