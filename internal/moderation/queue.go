package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/brightpearl/brightpearl/internal/model"
	"github.com/brightpearl/brightpearl/internal/report"
)

// PendingReport はモデレーターの審査待ち一覧に表示する通報。
// 説明文は無害化済みで、IPハッシュは含めない。
type PendingReport struct {
	ID             int64
	ContentLink    string
	Platform       string
	Country        string
	Language       string
	ContentType    string
	Description    *string
	ActivityStatus model.ActivityStatus
	ReportCount    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingPage は審査待ち一覧の1ページ分の結果。
type PendingPage struct {
	Items      []PendingReport
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// ListPending は審査待ちの通報を新しい順に返す。
func (s *Service) ListPending(ctx context.Context, page, pageSize string) (*PendingPage, error) {
	pg, err := report.ParsePagination(page, pageSize)
	if err != nil {
		return nil, err
	}

	bctx, cancel := s.backendContext(ctx)
	defer cancel()

	reports, total, err := s.reportRepo.ListByStatus(bctx, model.StatusPending, pg.PageSize, pg.Offset())
	if err != nil {
		return nil, fmt.Errorf("審査待ち一覧の取得に失敗しました: %w", err)
	}

	items := make([]PendingReport, 0, len(reports))
	for _, r := range reports {
		items = append(items, PendingReport{
			ID:             r.ID,
			ContentLink:    r.ContentLink,
			Platform:       r.Platform,
			Country:        r.Country,
			Language:       r.Language,
			ContentType:    r.ContentType,
			Description:    s.sanitizer.Sanitize(r.Description),
			ActivityStatus: r.ActivityStatus,
			ReportCount:    r.ReportCount,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
		})
	}

	return &PendingPage{
		Items:      items,
		Page:       pg.Page,
		PageSize:   pg.PageSize,
		Total:      total,
		TotalPages: pg.TotalPages(total),
	}, nil
}

// Stats はモデレーター向けの集計値を返す。当日分はUTCの0時から数える。
func (s *Service) Stats(ctx context.Context) (*model.ModerationStats, error) {
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	bctx, cancel := s.backendContext(ctx)
	defer cancel()

	stats, err := s.reportRepo.Stats(bctx, since)
	if err != nil {
		return nil, fmt.Errorf("集計値の取得に失敗しました: %w", err)
	}
	return stats, nil
}
