// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// HTTPステータスへの対応付けは Code を基準にハンドラ層で行う。
type APIError struct {
	Code     string // エラーコード
	Message  string // クライアントに返すメッセージ
	Category string // カテゴリ: validation, auth, rate_limit, moderation, system

	// RetryAfter はレート制限時の再試行までの秒数。
	RetryAfter int
	// CurrentStatus は競合時のレポートの現在のステータス。
	CurrentStatus string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// InternalErrorMessage はクライアントに返す汎用の内部エラーメッセージ。
// 元のエラー内容はサーバー側のログにのみ出力する。
const InternalErrorMessage = "Internal server error"

// NewValidationError は入力検証エラーを生成する。
// message は問題のフィールドと理由を含む。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
	}
}

// NewUnauthorizedError は認証情報が無い、または無効な場合のエラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	if message == "" {
		message = "Authentication required"
	}
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
	}
}

// NewForbiddenError はモデレーター権限が無い場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Moderator access required",
		Category: "auth",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError(retryAfter int) *APIError {
	return &APIError{
		Code:       ErrCodeRateLimited,
		Message:    fmt.Sprintf("Rate limit exceeded. Please try again in %d seconds.", retryAfter),
		Category:   "rate_limit",
		RetryAfter: retryAfter,
	}
}

// NewConflictError は決定済みのレポートを再度モデレーションしようとした場合のエラーを生成する。
func NewConflictError(current ReportStatus) *APIError {
	return &APIError{
		Code:          ErrCodeConflict,
		Message:       fmt.Sprintf("Report has already been moderated (current status: %s)", current),
		Category:      "moderation",
		CurrentStatus: string(current),
	}
}

// NewNotFoundError はレポートが見つからない場合のエラーを生成する。
func NewNotFoundError(reportID int64) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("Report #%d not found", reportID),
		Category: "moderation",
	}
}

// NewInternalError は汎用の内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  InternalErrorMessage,
		Category: "system",
	}
}
