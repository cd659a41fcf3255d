package sqlite

import (
	"context"
	"fmt"

	"sprintboard/internal/models"
)

// AppendHistory writes a batch of audit records in one transaction. The
// history table rejects updates and deletes.
func (s *Store) AppendHistory(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, r := range records {
			created := r.CreatedAt
			if created.IsZero() {
				_, err := tx.q.ExecContext(ctx, `INSERT INTO history(change_set, entity_type, entity_id, user_id, action, field_changed, old_value, new_value)
                    VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
					r.ChangeSet, r.EntityType, r.EntityID, r.UserID, r.Action, r.FieldChanged, r.OldValue, r.NewValue)
				if err != nil {
					return fmt.Errorf("append history: %w", err)
				}
				continue
			}
			_, err := tx.q.ExecContext(ctx, `INSERT INTO history(change_set, entity_type, entity_id, user_id, action, field_changed, old_value, new_value, created_at)
                VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ChangeSet, r.EntityType, r.EntityID, r.UserID, r.Action, r.FieldChanged, r.OldValue, r.NewValue, created.UTC())
			if err != nil {
				return fmt.Errorf("append history: %w", err)
			}
		}
		return nil
	})
}

// ListHistory returns the records of one entity in append order.
func (q queries) ListHistory(ctx context.Context, entityType string, entityID int64) ([]models.HistoryRecord, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, change_set, entity_type, entity_id, user_id, action, field_changed, old_value, new_value, created_at
        FROM history WHERE entity_type = ? AND entity_id = ? ORDER BY id`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	records := []models.HistoryRecord{}
	for rows.Next() {
		var r models.HistoryRecord
		if err := rows.Scan(&r.ID, &r.ChangeSet, &r.EntityType, &r.EntityID, &r.UserID, &r.Action,
			&r.FieldChanged, &r.OldValue, &r.NewValue, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
