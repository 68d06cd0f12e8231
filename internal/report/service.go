// Package report は通報の受付と公開一覧のドメインロジックを提供する。
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightpearl/brightpearl/internal/metrics"
	"github.com/brightpearl/brightpearl/internal/model"
	"github.com/brightpearl/brightpearl/internal/ratelimit"
	"github.com/brightpearl/brightpearl/internal/repository"
	"github.com/brightpearl/brightpearl/internal/validation"
)

// RateLimiter はスコープ単位の固定ウィンドウ制限を判定するインターフェース。
type RateLimiter interface {
	Check(ctx context.Context, scope ratelimit.Scope, identity string) (ratelimit.Result, error)
}

// IdentityHasher はクライアントIPを不可逆なキーに変換するインターフェース。
type IdentityHasher interface {
	Hash(ip string) string
}

// SubmitInput は通報の入力値。
type SubmitInput struct {
	ContentLink string
	Platform    string
	Country     string
	Language    string
	ContentType string
	Description *string
	ClientIP    string
}

// SubmitResult は通報の受付結果。
type SubmitResult struct {
	ReportID    int64
	ReportCount int
	Duplicate   bool
}

// Config はServiceの動作設定。
type Config struct {
	// Production が true の場合、プライベートホストのURLを拒否する。
	Production bool
	// SubmitScope は通報受付に適用するレート制限。
	SubmitScope ratelimit.Scope
	// BackendTimeout はリポジトリ呼び出し1回あたりの上限時間。0以下で無制限。
	BackendTimeout time.Duration
}

// Service は通報受付と公開一覧のサービス層。
type Service struct {
	reportRepo repository.ReportRepository
	limiter    RateLimiter
	hasher     IdentityHasher
	pageCache  PageCache
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// pageCache と collector は nil の場合に無効化される。
func NewService(
	reportRepo repository.ReportRepository,
	limiter RateLimiter,
	hasher IdentityHasher,
	pageCache PageCache,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if pageCache == nil {
		pageCache = noopPageCache{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reportRepo: reportRepo,
		limiter:    limiter,
		hasher:     hasher,
		pageCache:  pageCache,
		metrics:    collector,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Submit は通報を受け付ける。
// 検証、レート制限、URL正規化の順に処理し、既存の通報があれば件数を加算する。
// 検証とレート制限で拒否された場合はストアを一切変更しない。
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	err := validation.ValidateSubmission(validation.Submission{
		ContentLink: in.ContentLink,
		Platform:    in.Platform,
		Country:     in.Country,
		Language:    in.Language,
		ContentType: in.ContentType,
		Description: in.Description,
	}, s.cfg.Production)
	if err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	ipHash := s.hasher.Hash(in.ClientIP)

	rl, err := s.limiter.Check(ctx, s.cfg.SubmitScope, ipHash)
	if err != nil {
		return nil, fmt.Errorf("レート制限の判定に失敗しました: %w", err)
	}
	if !rl.Allowed {
		s.metrics.RecordRateLimited(s.cfg.SubmitScope.Name)
		s.logger.Warn("rate_limited",
			slog.String("scope", s.cfg.SubmitScope.Name),
			slog.Int("retry_after", rl.RetryAfter),
		)
		return nil, model.NewRateLimitError(rl.RetryAfter)
	}

	normalized := NormalizeURL(in.ContentLink)

	existing, err := s.increment(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.duplicateResult(existing), nil
	}

	now := s.now().UTC()
	r := &model.Report{
		ContentLink:           in.ContentLink,
		ContentLinkNormalized: normalized,
		Platform:              in.Platform,
		Country:               in.Country,
		Language:              in.Language,
		ContentType:           in.ContentType,
		Description:           in.Description,
		SubmitterIPHash:       ipHash,
		Status:                model.StatusPending,
		ActivityStatus:        model.ActivityActive,
		ReportCount:           1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.create(ctx, r); err != nil {
		if !errors.Is(err, repository.ErrDuplicateNormalizedLink) {
			return nil, err
		}
		// 同じURLの初回通報が競合した場合は重複として加算する
		existing, err := s.increment(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("一意制約違反後に通報が見つかりません: %s", normalized)
		}
		return s.duplicateResult(existing), nil
	}

	s.metrics.RecordSubmission(false)
	s.logger.Info("report_submitted",
		slog.Int64("report_id", r.ID),
		slog.Int("report_count", r.ReportCount),
		slog.String("platform", r.Platform),
	)

	return &SubmitResult{ReportID: r.ID, ReportCount: r.ReportCount, Duplicate: false}, nil
}

func (s *Service) duplicateResult(r *model.Report) *SubmitResult {
	s.metrics.RecordSubmission(true)
	s.logger.Info("report_duplicate",
		slog.Int64("report_id", r.ID),
		slog.Int("report_count", r.ReportCount),
	)
	return &SubmitResult{ReportID: r.ID, ReportCount: r.ReportCount, Duplicate: true}
}

func (s *Service) increment(ctx context.Context, normalized string) (*model.Report, error) {
	ctx, cancel := s.backendContext(ctx)
	defer cancel()

	r, err := s.reportRepo.IncrementByNormalizedLink(ctx, normalized, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("通報件数の加算に失敗しました: %w", err)
	}
	return r, nil
}

func (s *Service) create(ctx context.Context, r *model.Report) error {
	ctx, cancel := s.backendContext(ctx)
	defer cancel()

	if err := s.reportRepo.Create(ctx, r); err != nil {
		if errors.Is(err, repository.ErrDuplicateNormalizedLink) {
			return err
		}
		return fmt.Errorf("通報の作成に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.BackendTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.BackendTimeout)
}
