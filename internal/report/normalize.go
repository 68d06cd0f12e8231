// Package report は通報の受付（重複排除を含む）と公開一覧を提供する。
package report

import (
	"net/url"
	"strings"
)

// trackingParams は正規化時に除去するトラッキング用クエリパラメータ。
// utm_ で始まるパラメータは全て除去する。
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"msclkid": {},
	"ref":     {},
	"source":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"mkt_tok": {},
	"_hsenc":  {},
	"_hsmi":   {},
}

// NormalizeURL は通報URLを重複排除用の識別キーに正規化する。
//
// トラッキング用パラメータを除去した上で全体を小文字化する。
// それ以外のパラメータ（YouTubeの v= や t= など）は元の順序のまま残す。
// URLとして解析できない場合は小文字化とトリムのみを行う。
// 純粋関数であり NormalizeURL(NormalizeURL(x)) == NormalizeURL(x) が成り立つ。
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" {
		return strings.TrimSpace(strings.ToLower(trimmed))
	}

	if u.RawQuery != "" {
		u.RawQuery = stripTrackingParams(u.RawQuery)
	}
	u.ForceQuery = false

	if u.Host != "" && u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}

	return strings.TrimSpace(strings.ToLower(u.String()))
}

// stripTrackingParams はクエリ文字列からトラッキング用パラメータを除去する。
// 残すパラメータは元のエンコードと順序を保持する。
func stripTrackingParams(rawQuery string) string {
	segments := strings.Split(rawQuery, "&")
	kept := make([]string, 0, len(segments))

	for _, seg := range segments {
		if seg == "" {
			continue
		}
		key, _, _ := strings.Cut(seg, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if isTrackingParam(key) {
			continue
		}
		kept = append(kept, seg)
	}

	return strings.Join(kept, "&")
}

// isTrackingParam は大文字小文字を区別せずにトラッキング用パラメータかどうかを判定する。
func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	_, ok := trackingParams[k]
	return ok
}
