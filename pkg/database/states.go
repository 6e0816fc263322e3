package database

import (
	"context"
	"fmt"

	"github.com/bridgecall/bridgecall/pkg/models"
)

// LoadStates reads every persisted user state, in uid order. Called once on
// boot before the driver starts; the result seeds the in-memory store.
//
// An undecodable row is fatal: running with a partial state map would leave
// dangling cross-user links, so the operator must migrate or fix the data
// before the service comes up.
func (c *Client) LoadStates(ctx context.Context) ([]models.UserState, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT uid, state FROM states ORDER BY uid")
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer rows.Close()

	var states []models.UserState
	for rows.Next() {
		var (
			uid int64
			raw []byte
		)
		if err := rows.Scan(&uid, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		state, err := models.DecodeState(raw)
		if err != nil {
			return nil, fmt.Errorf("uid %d: %w", uid, err)
		}
		if state.UID() != models.Uid(uid) {
			return nil, fmt.Errorf("uid %d: state payload carries uid %d", uid, state.UID())
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate states: %w", err)
	}
	return states, nil
}
