package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/brightpearl/brightpearl/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = pq.ErrorCode("23505")

// reportColumns はレポート取得時のカラム一覧。scanReport の順序と一致させる。
const reportColumns = `id, content_link, content_link_normalized, platform, country, language,
	content_type, description, submitter_ip_hash, status, activity_status,
	report_count, created_at, updated_at`

// PostgresReportRepo はPostgreSQLを使用したレポートリポジトリ。
type PostgresReportRepo struct {
	db *sql.DB
}

// NewPostgresReportRepo はPostgresReportRepoを生成する。
func NewPostgresReportRepo(db *sql.DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

// rowScanner は *sql.Row と *sql.Rows の共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanReport は reportColumns の順で1行を読み取る。
func scanReport(s rowScanner) (*model.Report, error) {
	r := &model.Report{}
	var description, ipHash sql.NullString

	if err := s.Scan(
		&r.ID, &r.ContentLink, &r.ContentLinkNormalized, &r.Platform, &r.Country, &r.Language,
		&r.ContentType, &description, &ipHash, &r.Status, &r.ActivityStatus,
		&r.ReportCount, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		d := description.String
		r.Description = &d
	}
	r.SubmitterIPHash = nullStringValue(ipHash)

	return r, nil
}

// IncrementByNormalizedLink は正規化URLが一致するレポートの通報数を加算する。
// 単一のUPDATE文で行うため、同時に届いた重複通報も取りこぼさない。
func (r *PostgresReportRepo) IncrementByNormalizedLink(ctx context.Context, normalized string, now time.Time) (*model.Report, error) {
	report, err := scanReport(r.db.QueryRowContext(ctx,
		`UPDATE reports
		 SET report_count = report_count + 1, updated_at = $2
		 WHERE content_link_normalized = $1
		 RETURNING `+reportColumns,
		normalized, now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("通報数の加算に失敗しました: %w", err)
	}
	return report, nil
}

// Create はレポートを作成する。
func (r *PostgresReportRepo) Create(ctx context.Context, report *model.Report) error {
	var description sql.NullString
	if report.Description != nil {
		description = sql.NullString{String: *report.Description, Valid: true}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO reports (content_link, content_link_normalized, platform, country, language,
		                      content_type, description, submitter_ip_hash, status, activity_status,
		                      report_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		report.ContentLink, report.ContentLinkNormalized, report.Platform, report.Country, report.Language,
		report.ContentType, description, nullString(report.SubmitterIPHash), report.Status, report.ActivityStatus,
		report.ReportCount, report.CreatedAt, report.UpdatedAt,
	).Scan(&report.ID)
	if isUniqueViolation(err) {
		return ErrDuplicateNormalizedLink
	}
	if err != nil {
		return fmt.Errorf("レポートの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのレポートを取得する。見つからない場合はnilを返す。
func (r *PostgresReportRepo) FindByID(ctx context.Context, id int64) (*model.Report, error) {
	report, err := scanReport(r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レポートの取得に失敗しました: %w", err)
	}
	return report, nil
}

// UpdateStatusIfPending は pending のレポートに限り status を更新する。
// 条件付きUPDATEにより、複数のモデレーターが同時に操作しても決定は1回だけになる。
func (r *PostgresReportRepo) UpdateStatusIfPending(ctx context.Context, id int64, status model.ReportStatus, now time.Time) (*model.Report, error) {
	report, err := scanReport(r.db.QueryRowContext(ctx,
		`UPDATE reports
		 SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+reportColumns,
		id, status, now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	return report, nil
}

// UpdateActivityStatus は activity_status を更新し、更新前の値とともに返す。
func (r *PostgresReportRepo) UpdateActivityStatus(ctx context.Context, id int64, status model.ActivityStatus, now time.Time) (*model.Report, model.ActivityStatus, error) {
	var previous model.ActivityStatus

	row := r.db.QueryRowContext(ctx,
		`WITH prev AS (
		     SELECT id, activity_status FROM reports WHERE id = $1 FOR UPDATE
		 )
		 UPDATE reports r
		 SET activity_status = $2, updated_at = $3
		 FROM prev
		 WHERE r.id = prev.id
		 RETURNING r.id, r.content_link, r.content_link_normalized, r.platform, r.country, r.language,
		           r.content_type, r.description, r.submitter_ip_hash, r.status, r.activity_status,
		           r.report_count, r.created_at, r.updated_at, prev.activity_status`,
		id, status, now,
	)

	report := &model.Report{}
	var description, ipHash sql.NullString
	err := row.Scan(
		&report.ID, &report.ContentLink, &report.ContentLinkNormalized, &report.Platform, &report.Country, &report.Language,
		&report.ContentType, &description, &ipHash, &report.Status, &report.ActivityStatus,
		&report.ReportCount, &report.CreatedAt, &report.UpdatedAt, &previous,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("activity_statusの更新に失敗しました: %w", err)
	}

	if description.Valid {
		d := description.String
		report.Description = &d
	}
	report.SubmitterIPHash = nullStringValue(ipHash)

	return report, previous, nil
}

// ListApproved は承認済みレポートを絞り込み条件付きで取得する。
func (r *PostgresReportRepo) ListApproved(ctx context.Context, filter model.PublicFilter, limit, offset int) ([]*model.Report, int, error) {
	where := []string{"status = 'approved'"}
	var args []any

	addCond := func(column string, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addCond("platform", filter.Platform)
	addCond("country", filter.Country)
	addCond("language", filter.Language)
	addCond("activity_status", string(filter.ActivityStatus))

	return r.list(ctx, strings.Join(where, " AND "), args, limit, offset)
}

// ListByStatus は指定ステータスのレポートを取得する。
func (r *PostgresReportRepo) ListByStatus(ctx context.Context, status model.ReportStatus, limit, offset int) ([]*model.Report, int, error) {
	return r.list(ctx, "status = $1", []any{status}, limit, offset)
}

// list は条件に一致するレポートの総件数と1ページ分の行を取得する。
// where は固定のカラム名と $n プレースホルダのみで構成すること。
func (r *PostgresReportRepo) list(ctx context.Context, where string, args []any, limit, offset int) ([]*model.Report, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM reports WHERE `+where,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("レポート件数の取得に失敗しました: %w", err)
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM reports WHERE %s
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`,
		reportColumns, where, len(args)+1, len(args)+2,
	)

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("レポート一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	reports := make([]*model.Report, 0, limit)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("レポート一覧の読み取りに失敗しました: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("レポート一覧の読み取りに失敗しました: %w", err)
	}

	return reports, total, nil
}

// Stats はモデレーター向けの集計値を返す。
func (r *PostgresReportRepo) Stats(ctx context.Context, since time.Time) (*model.ModerationStats, error) {
	stats := &model.ModerationStats{
		ByPlatform: make(map[string]int),
		ByCountry:  make(map[string]int),
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT
		     count(*),
		     count(*) FILTER (WHERE status = 'pending'),
		     count(*) FILTER (WHERE status = 'approved'),
		     count(*) FILTER (WHERE status = 'rejected'),
		     count(*) FILTER (WHERE activity_status = 'active'),
		     count(*) FILTER (WHERE activity_status = 'deleted'),
		     (SELECT count(*) FROM moderator_actions WHERE action = 'approve' AND created_at >= $1),
		     (SELECT count(*) FROM moderator_actions WHERE action = 'reject' AND created_at >= $1)
		 FROM reports`,
		since,
	).Scan(
		&stats.Total, &stats.Pending, &stats.Approved, &stats.Rejected,
		&stats.Active, &stats.Deleted, &stats.ApprovedToday, &stats.RejectedToday,
	)
	if err != nil {
		return nil, fmt.Errorf("集計値の取得に失敗しました: %w", err)
	}

	if err := r.groupCount(ctx, "platform", stats.ByPlatform); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, "country", stats.ByCountry); err != nil {
		return nil, err
	}

	return stats, nil
}

// groupCount は column ごとの件数を dst に格納する。column は固定値のみを渡すこと。
func (r *PostgresReportRepo) groupCount(ctx context.Context, column string, dst map[string]int) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+column+`, count(*) FROM reports GROUP BY `+column,
	)
	if err != nil {
		return fmt.Errorf("%s別の集計に失敗しました: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("%s別の集計の読み取りに失敗しました: %w", column, err)
		}
		dst[key] = count
	}
	return rows.Err()
}

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

var _ ReportRepository = (*PostgresReportRepo)(nil)
