// Package validation は受信した各フィールドの形式・セキュリティ検証を提供する。
//
// 全ての検証関数は純粋関数であり、副作用を持たず panic しない。
// 検証に失敗した場合はクライアントにそのまま返せるメッセージを持つ error を返す。
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/brightpearl/brightpearl/internal/security"
)

// 各フィールドの上限値
const (
	MaxURLLength         = 2048
	MaxContentTypeLength = 50
	MaxDescriptionLength = 1000
)

// Platforms は通報対象として受け付けるプラットフォームの一覧。
var Platforms = []string{"twitter", "facebook", "instagram", "youtube", "tiktok", "reddit", "other"}

// ContentTypes はプラットフォームごとの代表的なコンテンツ種別。
// クライアントの入力補助向けの情報であり、検証は contentTypePattern で行う。
var ContentTypes = map[string][]string{
	"twitter":   {"tweet", "reply", "retweet", "profile"},
	"facebook":  {"post", "comment", "page", "group", "profile"},
	"instagram": {"post", "story", "reel", "comment", "profile"},
	"youtube":   {"video", "short", "comment", "channel"},
	"tiktok":    {"video", "comment", "profile"},
	"reddit":    {"post", "comment", "subreddit"},
	"other":     {"other"},
}

var (
	countryPattern     = regexp.MustCompile(`^[A-Z]{2}$`)
	languagePattern    = regexp.MustCompile(`^[a-z]{2}$`)
	contentTypePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// ErrInvalidReportID はレポートIDが正の整数でない場合のエラー。
var ErrInvalidReportID = errors.New("Invalid report ID. Must be a positive integer.")

// ValidateURL は通報URLを検証する。
// production が true の場合のみプライベート・ループバックのホストを拒否する。
func ValidateURL(raw string, production bool) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("content_link is required")
	}
	if utf8.RuneCountInString(raw) > MaxURLLength {
		return fmt.Errorf("URL too long (max %d characters)", MaxURLLength)
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return errors.New("Invalid URL format")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.New("Invalid URL protocol. Only http and https are allowed.")
	}
	if u.Hostname() == "" {
		return errors.New("Invalid URL format")
	}

	if production && security.IsPrivateHost(u.Hostname()) {
		return errors.New("Private/local URLs are not allowed")
	}
	return nil
}

// ValidatePlatform はプラットフォームが小文字で定義済みの値かを検証する。
func ValidatePlatform(platform string) error {
	for _, p := range Platforms {
		if platform == p {
			return nil
		}
	}
	return fmt.Errorf("Invalid platform. Must be one of: %s", strings.Join(Platforms, ", "))
}

// ValidateCountry は国コードが大文字2文字かを検証する。
// ISO 3166-1 alpha-2 の形式のみを確認し、実在するコードかは確認しない。
func ValidateCountry(country string) error {
	if !countryPattern.MatchString(country) {
		return errors.New("Invalid country code. Must be ISO 3166-1 alpha-2 format (e.g., US, GB, FR)")
	}
	return nil
}

// ValidateLanguage は言語コードが小文字2文字かを検証する。
func ValidateLanguage(language string) error {
	if !languagePattern.MatchString(language) {
		return errors.New("Invalid language code. Must be ISO 639-1 format (e.g., en, ar, fr)")
	}
	return nil
}

// ValidateContentType はコンテンツ種別の長さと文字種を検証する。
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return errors.New("content_type is required")
	}
	if len(contentType) > MaxContentTypeLength {
		return fmt.Errorf("Content type too long (max %d characters)", MaxContentTypeLength)
	}
	if !contentTypePattern.MatchString(contentType) {
		return errors.New("Invalid content type. Only lowercase letters, numbers, hyphens and underscores allowed.")
	}
	return nil
}

// ValidateDescription は任意項目の説明文の長さを検証する。
// 内容のフィルタリングは行わない。
func ValidateDescription(description *string) error {
	if description == nil {
		return nil
	}
	if utf8.RuneCountInString(*description) > MaxDescriptionLength {
		return fmt.Errorf("Description too long (max %d characters)", MaxDescriptionLength)
	}
	return nil
}

// ParseReportID はJSONの値から正の整数のレポートIDを取り出す。
// 文字列・小数・0以下の値は拒否する。
func ParseReportID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, ErrInvalidReportID
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || raw[0] == '"' {
		return 0, ErrInvalidReportID
	}

	if id, err := n.Int64(); err == nil {
		if id <= 0 {
			return 0, ErrInvalidReportID
		}
		return id, nil
	}

	// float64(math.MaxInt64) は 2^63 に丸められるため、等しい値も範囲外とする
	f, err := n.Float64()
	if err != nil || f <= 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, ErrInvalidReportID
	}
	return int64(f), nil
}

// Submission は通報の入力値を表す。
type Submission struct {
	ContentLink string
	Platform    string
	Country     string
	Language    string
	ContentType string
	Description *string
}

// ValidateSubmission は通報の全フィールドを順に検証し、最初の失敗を返す。
func ValidateSubmission(s Submission, production bool) error {
	checks := []func() error{
		func() error { return ValidateURL(s.ContentLink, production) },
		func() error { return ValidatePlatform(s.Platform) },
		func() error { return ValidateCountry(s.Country) },
		func() error { return ValidateLanguage(s.Language) },
		func() error { return ValidateContentType(s.ContentType) },
		func() error { return ValidateDescription(s.Description) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
