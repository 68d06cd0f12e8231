package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brightpearl/brightpearl/internal/middleware"
	"github.com/brightpearl/brightpearl/internal/model"
	"github.com/brightpearl/brightpearl/internal/moderation"
	"github.com/brightpearl/brightpearl/internal/validation"
)

// ModerationServiceInterface はモデレーションハンドラーが必要とするサービスインターフェース。
type ModerationServiceInterface interface {
	ApplyModeration(ctx context.Context, reportID int64, decision model.ReportStatus, moderator model.Moderator) (*model.Report, error)
	SetActivityStatus(ctx context.Context, reportID int64, value model.ActivityStatus, moderator model.Moderator) (*model.Report, model.ActivityStatus, error)
	ListPending(ctx context.Context, page, pageSize string) (*moderation.PendingPage, error)
	Stats(ctx context.Context) (*model.ModerationStats, error)
}

// ModerationHandler はモデレーター向けのHTTPハンドラー。
// 全てのエンドポイントはモデレーター認証ミドルウェアの内側に配置する。
type ModerationHandler struct {
	service ModerationServiceInterface
}

// NewModerationHandler はModerationHandlerを生成する。
func NewModerationHandler(service ModerationServiceInterface) *ModerationHandler {
	return &ModerationHandler{service: service}
}

type approveReportRequest struct {
	ReportID json.RawMessage `json:"report_id"`
	Action   string          `json:"action"`
}

type updateStatusRequest struct {
	ReportID       json.RawMessage `json:"report_id"`
	ActivityStatus string          `json:"activity_status"`
}

// moderatorReportResponse はモデレーターに返す通報。IPハッシュは含めない。
type moderatorReportResponse struct {
	ID                    int64     `json:"id"`
	ContentLink           string    `json:"content_link"`
	ContentLinkNormalized string    `json:"content_link_normalized"`
	Platform              string    `json:"platform"`
	Country               string    `json:"country"`
	Language              string    `json:"language"`
	ContentType           string    `json:"content_type"`
	Description           *string   `json:"description"`
	Status                string    `json:"status"`
	ActivityStatus        string    `json:"activity_status"`
	ReportCount           int       `json:"report_count"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type approveReportResponse struct {
	Success     bool                    `json:"success"`
	Report      moderatorReportResponse `json:"report"`
	Message     string                  `json:"message"`
	ModeratorID string                  `json:"moderator_id"`
	Timestamp   string                  `json:"timestamp"`
}

type updateStatusResponse struct {
	Success        bool                    `json:"success"`
	Report         moderatorReportResponse `json:"report"`
	Message        string                  `json:"message"`
	PreviousStatus string                  `json:"previous_status"`
	ModeratorID    string                  `json:"moderator_id"`
	Timestamp      string                  `json:"timestamp"`
}

type pendingReportResponse struct {
	ID             int64     `json:"id"`
	ContentLink    string    `json:"content_link"`
	Platform       string    `json:"platform"`
	Country        string    `json:"country"`
	Language       string    `json:"language"`
	ContentType    string    `json:"content_type"`
	Description    *string   `json:"description"`
	ActivityStatus string    `json:"activity_status"`
	ReportCount    int       `json:"report_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type pendingReportsResponse struct {
	Success    bool                    `json:"success"`
	Data       []pendingReportResponse `json:"data"`
	Pagination paginationResponse      `json:"pagination"`
	Timestamp  string                  `json:"timestamp"`
}

type statsBody struct {
	Total         int            `json:"total"`
	Pending       int            `json:"pending"`
	Approved      int            `json:"approved"`
	Rejected      int            `json:"rejected"`
	Active        int            `json:"active"`
	Deleted       int            `json:"deleted"`
	ApprovedToday int            `json:"approved_today"`
	RejectedToday int            `json:"rejected_today"`
	ByPlatform    map[string]int `json:"by_platform"`
	ByCountry     map[string]int `json:"by_country"`
}

type statsResponse struct {
	Success   bool      `json:"success"`
	Stats     statsBody `json:"stats"`
	Timestamp string    `json:"timestamp"`
}

// ApproveReport は pending の通報を承認または却下する。
// POST /approve-report
func (h *ModerationHandler) ApproveReport(w http.ResponseWriter, r *http.Request) {
	moderator, ok := middleware.ModeratorFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
		return
	}

	var req approveReportRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if len(req.ReportID) == 0 || req.Action == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing required fields: report_id, action"))
		return
	}
	reportID, err := validation.ParseReportID(req.ReportID)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}

	updated, err := h.service.ApplyModeration(r.Context(), reportID, model.ReportStatus(req.Action), *moderator)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, approveReportResponse{
		Success:     true,
		Report:      toModeratorReportResponse(updated),
		Message:     fmt.Sprintf("Report #%d has been %s", reportID, req.Action),
		ModeratorID: moderator.ID,
		Timestamp:   middleware.Timestamp(),
	})
}

// UpdateStatus は通報の掲載状態を更新する。
// POST /update-status
func (h *ModerationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	moderator, ok := middleware.ModeratorFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
		return
	}

	var req updateStatusRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if len(req.ReportID) == 0 || req.ActivityStatus == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Missing required fields: report_id, activity_status"))
		return
	}
	reportID, err := validation.ParseReportID(req.ReportID)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}

	updated, previous, err := h.service.SetActivityStatus(r.Context(), reportID, model.ActivityStatus(req.ActivityStatus), *moderator)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updateStatusResponse{
		Success:        true,
		Report:         toModeratorReportResponse(updated),
		Message:        fmt.Sprintf("Report #%d activity status updated to %s", reportID, req.ActivityStatus),
		PreviousStatus: string(previous),
		ModeratorID:    moderator.ID,
		Timestamp:      middleware.Timestamp(),
	})
}

// PendingReports は審査待ちの通報一覧を返す。
// GET /pending-reports
func (h *ModerationHandler) PendingReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.ListPending(r.Context(), q.Get("page"), q.Get("pageSize"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	data := make([]pendingReportResponse, 0, len(page.Items))
	for _, item := range page.Items {
		data = append(data, pendingReportResponse{
			ID:             item.ID,
			ContentLink:    item.ContentLink,
			Platform:       item.Platform,
			Country:        item.Country,
			Language:       item.Language,
			ContentType:    item.ContentType,
			Description:    item.Description,
			ActivityStatus: string(item.ActivityStatus),
			ReportCount:    item.ReportCount,
			CreatedAt:      item.CreatedAt,
			UpdatedAt:      item.UpdatedAt,
		})
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, pendingReportsResponse{
		Success: true,
		Data:    data,
		Pagination: paginationResponse{
			Page:       page.Page,
			PageSize:   page.PageSize,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
		Timestamp: middleware.Timestamp(),
	})
}

// ModerationStats はモデレーター向けの集計値を返す。
// GET /moderation-stats
func (h *ModerationHandler) ModerationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	body := statsBody{
		Total:         stats.Total,
		Pending:       stats.Pending,
		Approved:      stats.Approved,
		Rejected:      stats.Rejected,
		Active:        stats.Active,
		Deleted:       stats.Deleted,
		ApprovedToday: stats.ApprovedToday,
		RejectedToday: stats.RejectedToday,
		ByPlatform:    stats.ByPlatform,
		ByCountry:     stats.ByCountry,
	}
	if body.ByPlatform == nil {
		body.ByPlatform = map[string]int{}
	}
	if body.ByCountry == nil {
		body.ByCountry = map[string]int{}
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, statsResponse{
		Success:   true,
		Stats:     body,
		Timestamp: middleware.Timestamp(),
	})
}

func toModeratorReportResponse(r *model.Report) moderatorReportResponse {
	return moderatorReportResponse{
		ID:                    r.ID,
		ContentLink:           r.ContentLink,
		ContentLinkNormalized: r.ContentLinkNormalized,
		Platform:              r.Platform,
		Country:               r.Country,
		Language:              r.Language,
		ContentType:           r.ContentType,
		Description:           r.Description,
		Status:                string(r.Status),
		ActivityStatus:        string(r.ActivityStatus),
		ReportCount:           r.ReportCount,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}
