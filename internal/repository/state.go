package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/tesbridge/internal/models"
)

// StateRepository 状态区间仓库
type StateRepository struct {
	db *DB
}

// NewStateRepository 创建状态仓库
func NewStateRepository(db *DB) *StateRepository {
	return &StateRepository{db: db}
}

// Transition 结束资源当前的状态区间并开始新的区间
func (r *StateRepository) Transition(ctx context.Context, s *models.State) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE states SET end_time = $1
		WHERE kind = $2 AND resource_id = $3 AND end_time IS NULL
	`, s.StartTime, s.Kind, s.ResourceID)
	if err != nil {
		return fmt.Errorf("close state: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO states (kind, resource_id, state, reason, start_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.Kind, s.ResourceID, s.State, s.Reason, s.StartTime).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert state: %w", err)
	}

	return tx.Commit(ctx)
}

// CloseOpen 结束所有未结束的区间，服务停止时调用
func (r *StateRepository) CloseOpen(ctx context.Context, at time.Time) error {
	if _, err := r.db.Pool.Exec(ctx, `UPDATE states SET end_time = $1 WHERE end_time IS NULL`, at); err != nil {
		return fmt.Errorf("close open states: %w", err)
	}
	return nil
}

// ListByResource 按时间倒序获取资源的状态区间
func (r *StateRepository) ListByResource(ctx context.Context, kind, resourceID string, limit, offset int) ([]*models.State, error) {
	query := `
		SELECT id, kind, resource_id, state, COALESCE(reason, ''), start_time, end_time
		FROM states
		WHERE kind = $1 AND resource_id = $2
		ORDER BY start_time DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Pool.Query(ctx, query, kind, resourceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var states []*models.State
	for rows.Next() {
		s := &models.State{}
		err := rows.Scan(
			&s.ID,
			&s.Kind,
			&s.ResourceID,
			&s.State,
			&s.Reason,
			&s.StartTime,
			&s.EndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		states = append(states, s)
	}

	return states, rows.Err()
}
