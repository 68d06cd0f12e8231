package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/brightpearl/brightpearl/internal/middleware"
	"github.com/brightpearl/brightpearl/internal/report"
)

// 通報受付のメッセージ
const (
	submitNewMessage       = "Thank you for your report. It will be reviewed by our moderators."
	submitDuplicateMessage = "Thank you. This content has been reported before. Your report has been added to the count."
)

// ReportServiceInterface は通報ハンドラーが必要とするサービスインターフェース。
type ReportServiceInterface interface {
	// Submit は通報を受け付ける。
	Submit(ctx context.Context, in report.SubmitInput) (*report.SubmitResult, error)
	// ListApproved は承認済みの通報一覧を返す。
	ListApproved(ctx context.Context, q report.ListQuery) (*report.PublicPage, error)
}

// ReportHandler は匿名ユーザー向けのHTTPハンドラー。
type ReportHandler struct {
	service  ReportServiceInterface
	cacheTTL time.Duration
}

// NewReportHandler はReportHandlerを生成する。
// cacheTTL は公開一覧の Cache-Control max-age に使用する。
func NewReportHandler(service ReportServiceInterface, cacheTTL time.Duration) *ReportHandler {
	return &ReportHandler{service: service, cacheTTL: cacheTTL}
}

// submitReportRequest は通報リクエストのボディ。
type submitReportRequest struct {
	ContentLink string  `json:"content_link"`
	Platform    string  `json:"platform"`
	Country     string  `json:"country"`
	Language    string  `json:"language"`
	ContentType string  `json:"content_type"`
	Description *string `json:"description,omitempty"`
}

type submitReportResponse struct {
	Success     bool   `json:"success"`
	ReportID    int64  `json:"report_id"`
	ReportCount int    `json:"report_count"`
	Duplicate   bool   `json:"duplicate"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
}

// publicReportResponse は公開一覧の1件分。
type publicReportResponse struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	ContentLink    string    `json:"content_link"`
	Platform       string    `json:"platform"`
	Country        string    `json:"country"`
	Language       string    `json:"language"`
	ContentType    string    `json:"content_type"`
	ActivityStatus string    `json:"activity_status"`
	ReportCount    int       `json:"report_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type paginationResponse struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type filtersResponse struct {
	Platform       *string `json:"platform"`
	Country        *string `json:"country"`
	Language       *string `json:"language"`
	ActivityStatus string  `json:"activity_status"`
}

type publicReportsResponse struct {
	Success    bool                   `json:"success"`
	Data       []publicReportResponse `json:"data"`
	Pagination paginationResponse     `json:"pagination"`
	Filters    filtersResponse        `json:"filters"`
	Timestamp  string                 `json:"timestamp"`
}

// SubmitReport は匿名の通報を受け付ける。
// POST /submit-report
func (h *ReportHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var req submitReportRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.Submit(r.Context(), report.SubmitInput{
		ContentLink: req.ContentLink,
		Platform:    req.Platform,
		Country:     req.Country,
		Language:    req.Language,
		ContentType: req.ContentType,
		Description: req.Description,
		ClientIP:    middleware.ClientIPFromContext(r.Context()),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	status, message := http.StatusCreated, submitNewMessage
	if result.Duplicate {
		status, message = http.StatusOK, submitDuplicateMessage
	}

	writeJSON(w, status, submitReportResponse{
		Success:     true,
		ReportID:    result.ReportID,
		ReportCount: result.ReportCount,
		Duplicate:   result.Duplicate,
		Message:     message,
		Timestamp:   middleware.Timestamp(),
	})
}

// GetPublicReports は承認済みの通報一覧を返す。
// GET /get-public-reports
func (h *ReportHandler) GetPublicReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.ListApproved(r.Context(), report.ListQuery{
		Page:           q.Get("page"),
		PageSize:       q.Get("pageSize"),
		Platform:       q.Get("platform"),
		Country:        q.Get("country"),
		Language:       q.Get("language"),
		ActivityStatus: q.Get("activity_status"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	data := make([]publicReportResponse, 0, len(page.Items))
	for _, item := range page.Items {
		data = append(data, toPublicReportResponse(item))
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.cacheTTL.Seconds())))
	writeJSON(w, http.StatusOK, publicReportsResponse{
		Success: true,
		Data:    data,
		Pagination: paginationResponse{
			Page:       page.Page,
			PageSize:   page.PageSize,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
		Filters: filtersResponse{
			Platform:       page.Filters.Platform,
			Country:        page.Filters.Country,
			Language:       page.Filters.Language,
			ActivityStatus: page.Filters.ActivityStatus,
		},
		Timestamp: middleware.Timestamp(),
	})
}

func toPublicReportResponse(item report.PublicReport) publicReportResponse {
	return publicReportResponse{
		ID:             item.ID,
		Title:          item.Title,
		ContentLink:    item.ContentLink,
		Platform:       item.Platform,
		Country:        item.Country,
		Language:       item.Language,
		ContentType:    item.ContentType,
		ActivityStatus: string(item.ActivityStatus),
		ReportCount:    item.ReportCount,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}
