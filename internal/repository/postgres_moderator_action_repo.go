package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brightpearl/brightpearl/internal/model"
)

// PostgresModeratorActionRepo はPostgreSQLを使用した監査ログリポジトリ。
type PostgresModeratorActionRepo struct {
	db *sql.DB
}

// NewPostgresModeratorActionRepo はPostgresModeratorActionRepoを生成する。
func NewPostgresModeratorActionRepo(db *sql.DB) *PostgresModeratorActionRepo {
	return &PostgresModeratorActionRepo{db: db}
}

// Create は監査ログを1件追記し、採番されたIDを action.ID に設定する。
func (r *PostgresModeratorActionRepo) Create(ctx context.Context, action *model.ModeratorActionLog) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO moderator_actions (report_id, moderator_id, action, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		action.ReportID, action.ModeratorID, action.Action, action.CreatedAt,
	).Scan(&action.ID)
	if err != nil {
		return fmt.Errorf("監査ログの追記に失敗しました: %w", err)
	}
	return nil
}

var _ ModeratorActionRepository = (*PostgresModeratorActionRepo)(nil)
