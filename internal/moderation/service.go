// Package moderation はモデレーターによる通報の状態遷移を提供する。
//
// 審査状態は pending から approved または rejected へ一度だけ遷移し、以後は変更できない。
// 掲載状態（active / deleted）は審査状態とは独立に何度でも切り替えられる。
// いずれの操作も監査ログを1件追記するが、監査ログの失敗は操作自体を失敗させない。
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightpearl/brightpearl/internal/logger"
	"github.com/brightpearl/brightpearl/internal/metrics"
	"github.com/brightpearl/brightpearl/internal/model"
	"github.com/brightpearl/brightpearl/internal/repository"
)

// 入力エラーのメッセージ
const (
	InvalidDecisionMessage = `Invalid action. Must be "approved" or "rejected"`
	InvalidActivityMessage = `Invalid activity_status. Must be "active" or "deleted"`
)

// Sanitizer はモデレーター向けに説明文を無害化するインターフェース。
type Sanitizer interface {
	Sanitize(description *string) *string
}

// CacheInvalidator は公開一覧のキャッシュを破棄するインターフェース。
type CacheInvalidator interface {
	Clear()
}

// Service はモデレーション操作のサービス層。
type Service struct {
	reportRepo   repository.ReportRepository
	actionRepo   repository.ModeratorActionRepository
	sanitizer    Sanitizer
	invalidator  CacheInvalidator
	metrics      metrics.MetricsCollector
	logger       *slog.Logger
	timeout      time.Duration
	now          func() time.Time
	captureError func(error)
}

// NewService はServiceの新しいインスタンスを生成する。
// invalidator と collector は nil を許容する。
func NewService(
	reportRepo repository.ReportRepository,
	actionRepo repository.ModeratorActionRepository,
	sanitizer Sanitizer,
	invalidator CacheInvalidator,
	collector metrics.MetricsCollector,
	log *slog.Logger,
	backendTimeout time.Duration,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		reportRepo:   reportRepo,
		actionRepo:   actionRepo,
		sanitizer:    sanitizer,
		invalidator:  invalidator,
		metrics:      collector,
		logger:       log,
		timeout:      backendTimeout,
		now:          time.Now,
		captureError: logger.CaptureError,
	}
}

// ApplyModeration は pending の通報を承認または却下する。
// 既に決定済みの通報には現在の状態を含む ConflictError を返す。
func (s *Service) ApplyModeration(ctx context.Context, reportID int64, decision model.ReportStatus, moderator model.Moderator) (*model.Report, error) {
	if !decision.IsDecision() {
		return nil, model.NewValidationError(InvalidDecisionMessage)
	}

	updated, err := s.updateStatusIfPending(ctx, reportID, decision)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// 条件付き更新に一致しなかった理由を判別する
		current, err := s.findByID(ctx, reportID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, model.NewNotFoundError(reportID)
		}
		return nil, model.NewConflictError(current.Status)
	}

	action := model.ActionForDecision(decision)
	s.metrics.RecordModerationAction(string(action))
	s.invalidate()
	s.logger.Info("report_moderated",
		slog.Int64("report_id", reportID),
		slog.String("status", string(decision)),
		slog.String("moderator_id", moderator.ID),
	)
	s.recordAction(ctx, reportID, moderator.ID, action)

	return s.forModerator(updated), nil
}

// SetActivityStatus は通報の掲載状態を更新し、更新後の通報と更新前の値を返す。
// 審査状態に関わらず常に許可される。
func (s *Service) SetActivityStatus(ctx context.Context, reportID int64, value model.ActivityStatus, moderator model.Moderator) (*model.Report, model.ActivityStatus, error) {
	if !value.IsValid() {
		return nil, "", model.NewValidationError(InvalidActivityMessage)
	}

	bctx, cancel := s.backendContext(ctx)
	updated, previous, err := s.reportRepo.UpdateActivityStatus(bctx, reportID, value, s.now().UTC())
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("掲載状態の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, "", model.NewNotFoundError(reportID)
	}

	s.metrics.RecordModerationAction(string(model.ActionUpdateStatus))
	s.invalidate()
	s.logger.Info("activity_status_changed",
		slog.Int64("report_id", reportID),
		slog.String("previous_status", string(previous)),
		slog.String("activity_status", string(value)),
		slog.String("moderator_id", moderator.ID),
	)
	s.recordAction(ctx, reportID, moderator.ID, model.ActionUpdateStatus)

	return s.forModerator(updated), previous, nil
}

// forModerator はモデレーターに返す通報の説明文を無害化する。
func (s *Service) forModerator(r *model.Report) *model.Report {
	r.Description = s.sanitizer.Sanitize(r.Description)
	return r
}

// recordAction は監査ログを追記する。失敗はログ・メトリクス・Sentryに記録し、呼び出し元には返さない。
func (s *Service) recordAction(ctx context.Context, reportID int64, moderatorID string, action model.ModeratorAction) {
	entry := &model.ModeratorActionLog{
		ReportID:    reportID,
		ModeratorID: moderatorID,
		Action:      action,
		CreatedAt:   s.now().UTC(),
	}

	// リクエストがキャンセルされても監査ログの書き込みは試みる
	bctx, cancel := s.backendContext(context.WithoutCancel(ctx))
	defer cancel()

	if err := s.actionRepo.Create(bctx, entry); err != nil {
		s.metrics.RecordAuditLogFailure()
		s.logger.Error("audit_log_failed",
			slog.Int64("report_id", reportID),
			slog.String("moderator_id", moderatorID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		s.captureError(fmt.Errorf("監査ログの記録に失敗しました: %w", err))
	}
}

func (s *Service) updateStatusIfPending(ctx context.Context, id int64, status model.ReportStatus) (*model.Report, error) {
	ctx, cancel := s.backendContext(ctx)
	defer cancel()

	r, err := s.reportRepo.UpdateStatusIfPending(ctx, id, status, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("審査状態の更新に失敗しました: %w", err)
	}
	return r, nil
}

func (s *Service) findByID(ctx context.Context, id int64) (*model.Report, error) {
	ctx, cancel := s.backendContext(ctx)
	defer cancel()

	r, err := s.reportRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("通報の取得に失敗しました: %w", err)
	}
	return r, nil
}

func (s *Service) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Clear()
	}
}

func (s *Service) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
