package report

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/brightpearl/brightpearl/internal/model"
	"github.com/brightpearl/brightpearl/internal/validation"
)

// ページングの既定値と上限
const (
	DefaultPage     = 1
	MaxPage         = 1000
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ActivityFilterAll は activity_status による絞り込みを無効にする値。
const ActivityFilterAll = "all"

// InvalidPaginationMessage はページ指定が範囲外または数値でない場合のメッセージ。
const InvalidPaginationMessage = "Invalid pagination parameters"

// PageCache は公開一覧のページをキャッシュするインターフェース。
// モデレーション操作による全削除を世代で表し、削除前に読み出したページは保存しない。
type PageCache interface {
	Get(key string) (*PublicPage, bool)
	Generation() uint64
	SetIfGeneration(key string, page *PublicPage, gen uint64) bool
}

type noopPageCache struct{}

func (noopPageCache) Get(string) (*PublicPage, bool)                   { return nil, false }
func (noopPageCache) Generation() uint64                               { return 0 }
func (noopPageCache) SetIfGeneration(string, *PublicPage, uint64) bool { return false }

// ListQuery は公開一覧のクエリパラメータ。未指定の項目は空文字列。
type ListQuery struct {
	Page           string
	PageSize       string
	Platform       string
	Country        string
	Language       string
	ActivityStatus string
}

// PublicReport は公開一覧に表示する通報。
// 説明文、IPハッシュ、正規化URL、モデレーション状態は含めない。
type PublicReport struct {
	ID             int64
	Title          string
	ContentLink    string
	Platform       string
	Country        string
	Language       string
	ContentType    string
	ActivityStatus model.ActivityStatus
	ReportCount    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AppliedFilters はレスポンスに返す適用済みの絞り込み条件。
type AppliedFilters struct {
	Platform       *string
	Country        *string
	Language       *string
	ActivityStatus string
}

// PublicPage は公開一覧の1ページ分の結果。
type PublicPage struct {
	Items      []PublicReport
	Page       int
	PageSize   int
	Total      int
	TotalPages int
	Filters    AppliedFilters
}

// Pagination はページ番号とページサイズ。
type Pagination struct {
	Page     int
	PageSize int
}

// ParsePagination はページ指定を解釈する。空文字列は既定値として扱う。
// page は [1, MaxPage]、pageSize は [1, MaxPageSize] の範囲のみ受け付ける。
func ParsePagination(page, pageSize string) (Pagination, error) {
	p, err := parseBoundedInt(page, DefaultPage, MaxPage)
	if err != nil {
		return Pagination{}, err
	}
	ps, err := parseBoundedInt(pageSize, DefaultPageSize, MaxPageSize)
	if err != nil {
		return Pagination{}, err
	}
	return Pagination{Page: p, PageSize: ps}, nil
}

func parseBoundedInt(raw string, def, upper int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		return 0, model.NewValidationError(InvalidPaginationMessage)
	}
	return n, nil
}

// Offset はページの先頭位置を返す。
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// TotalPages は総件数からページ数を返す。総件数が0の場合は0。
func (p Pagination) TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + p.PageSize - 1) / p.PageSize
}

// Title は公開一覧での表示名を返す。
func Title(id int64, contentType, platform string) string {
	return fmt.Sprintf("Content #%d – %s on %s", id, contentType, platform)
}

// ListApproved は承認済みの通報を絞り込み・ページング付きで返す。
// pending と rejected の通報は絞り込み条件に関わらず返さない。
func (s *Service) ListApproved(ctx context.Context, q ListQuery) (*PublicPage, error) {
	pg, err := ParsePagination(q.Page, q.PageSize)
	if err != nil {
		return nil, err
	}

	filter, applied, err := parseFilter(q)
	if err != nil {
		return nil, err
	}

	key := cacheKey(filter, pg)
	if cached, ok := s.pageCache.Get(key); ok {
		return cached, nil
	}
	gen := s.pageCache.Generation()

	ctx, cancel := s.backendContext(ctx)
	defer cancel()

	reports, total, err := s.reportRepo.ListApproved(ctx, filter, pg.PageSize, pg.Offset())
	if err != nil {
		return nil, fmt.Errorf("公開一覧の取得に失敗しました: %w", err)
	}

	items := make([]PublicReport, 0, len(reports))
	for _, r := range reports {
		items = append(items, toPublicReport(r))
	}

	page := &PublicPage{
		Items:      items,
		Page:       pg.Page,
		PageSize:   pg.PageSize,
		Total:      total,
		TotalPages: pg.TotalPages(total),
		Filters:    applied,
	}
	s.pageCache.SetIfGeneration(key, page, gen)

	s.logger.Debug("public_reports_listed",
		slog.Int("page", pg.Page),
		slog.Int("total", total),
	)
	return page, nil
}

func parseFilter(q ListQuery) (model.PublicFilter, AppliedFilters, error) {
	var filter model.PublicFilter
	var applied AppliedFilters

	if q.Platform != "" {
		if err := validation.ValidatePlatform(q.Platform); err != nil {
			return filter, applied, model.NewValidationError(err.Error())
		}
		filter.Platform = q.Platform
		applied.Platform = stringPtr(q.Platform)
	}
	if q.Country != "" {
		if err := validation.ValidateCountry(q.Country); err != nil {
			return filter, applied, model.NewValidationError(err.Error())
		}
		filter.Country = q.Country
		applied.Country = stringPtr(q.Country)
	}
	if q.Language != "" {
		if err := validation.ValidateLanguage(q.Language); err != nil {
			return filter, applied, model.NewValidationError(err.Error())
		}
		filter.Language = q.Language
		applied.Language = stringPtr(q.Language)
	}

	activity := q.ActivityStatus
	if activity == "" {
		activity = string(model.ActivityActive)
	}
	switch {
	case activity == ActivityFilterAll:
	case model.ActivityStatus(activity).IsValid():
		filter.ActivityStatus = model.ActivityStatus(activity)
	default:
		return filter, applied, model.NewValidationError("Invalid activity_status. Must be one of: active, deleted, all")
	}
	applied.ActivityStatus = activity

	return filter, applied, nil
}

func cacheKey(f model.PublicFilter, pg Pagination) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%d", f.Platform, f.Country, f.Language, f.ActivityStatus, pg.Page, pg.PageSize)
}

func toPublicReport(r *model.Report) PublicReport {
	return PublicReport{
		ID:             r.ID,
		Title:          Title(r.ID, r.ContentType, r.Platform),
		ContentLink:    r.ContentLink,
		Platform:       r.Platform,
		Country:        r.Country,
		Language:       r.Language,
		ContentType:    r.ContentType,
		ActivityStatus: r.ActivityStatus,
		ReportCount:    r.ReportCount,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func stringPtr(s string) *string {
	return &s
}
