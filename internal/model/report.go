package model

import "time"

// Report は通報されたコンテンツ1件を表す。
// ContentLinkNormalized が重複排除の一意キーとなる。
type Report struct {
	ID                    int64
	ContentLink           string
	ContentLinkNormalized string
	Platform              string
	Country               string
	Language              string
	ContentType           string
	Description           *string
	SubmitterIPHash       string
	Status                ReportStatus
	ActivityStatus        ActivityStatus
	ReportCount           int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ReportStatus はモデレーション状態を表す。
// pending から approved / rejected へ一度だけ遷移し、以後は変化しない。
type ReportStatus string

const (
	// StatusPending は審査待ち。
	StatusPending ReportStatus = "pending"
	// StatusApproved は承認済み。公開一覧に表示される。
	StatusApproved ReportStatus = "approved"
	// StatusRejected は却下済み。
	StatusRejected ReportStatus = "rejected"
)

// IsDecision はモデレーション操作で指定できる値かどうかを返す。
func (s ReportStatus) IsDecision() bool {
	return s == StatusApproved || s == StatusRejected
}

// ActivityStatus はコンテンツがプラットフォーム上でまだ公開されているかを表す。
// モデレーション状態とは独立して自由に切り替えられる。
type ActivityStatus string

const (
	// ActivityActive はコンテンツが公開中。
	ActivityActive ActivityStatus = "active"
	// ActivityDeleted はコンテンツが削除済み。
	ActivityDeleted ActivityStatus = "deleted"
)

// IsValid は定義済みの値かどうかを返す。
func (s ActivityStatus) IsValid() bool {
	return s == ActivityActive || s == ActivityDeleted
}

// ModeratorAction はモデレーター操作の種別を表す。
type ModeratorAction string

const (
	ActionApprove      ModeratorAction = "approve"
	ActionReject       ModeratorAction = "reject"
	ActionUpdateStatus ModeratorAction = "update_status"
)

// ActionForDecision はモデレーション結果に対応する監査ログの種別を返す。
func ActionForDecision(s ReportStatus) ModeratorAction {
	if s == StatusApproved {
		return ActionApprove
	}
	return ActionReject
}

// ModeratorActionLog は追記専用の監査ログ1件を表す。
type ModeratorActionLog struct {
	ID          int64
	ReportID    int64
	ModeratorID string
	Action      ModeratorAction
	CreatedAt   time.Time
}

// Moderator は外部の認証基盤から渡されたモデレーターの識別情報を表す。
type Moderator struct {
	ID          string
	Email       string
	IsModerator bool
}

// PublicFilter は公開一覧の絞り込み条件を表す。
// 空文字のフィールドは絞り込みを行わない。
type PublicFilter struct {
	Platform string
	Country  string
	Language string
	// ActivityStatus が空の場合は全ての activity_status を対象とする。
	ActivityStatus ActivityStatus
}

// ModerationStats はモデレーター向けの集計値を表す。
type ModerationStats struct {
	Total         int
	Pending       int
	Approved      int
	Rejected      int
	Active        int
	Deleted       int
	ApprovedToday int
	RejectedToday int
	ByPlatform    map[string]int
	ByCountry     map[string]int
}
