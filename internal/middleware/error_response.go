package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/brightpearl/brightpearl/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Code          string `json:"code"`
	Timestamp     string `json:"timestamp"`
	RetryAfter    int    `json:"retryAfter,omitempty"`
	CurrentStatus string `json:"current_status,omitempty"`
}

// Timestamp はレスポンスに含める現在時刻（RFC 3339、UTC）を返す。
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// RetryAfter が設定されている場合は Retry-After ヘッダーも付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success:       false,
		Error:         apiErr.Message,
		Code:          apiErr.Code,
		Timestamp:     Timestamp(),
		RetryAfter:    apiErr.RetryAfter,
		CurrentStatus: apiErr.CurrentStatus,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには汎用のメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
