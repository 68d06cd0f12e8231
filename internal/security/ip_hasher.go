package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// IPHasher はクライアントIPを復元不可能な識別子に変換する。
// 生のIPアドレスは保存せず、レート制限と不正分析にはこのハッシュのみを使用する。
type IPHasher struct {
	secret []byte
}

// NewIPHasher は IPHasher を生成する。
// secret が空の場合は SHA-256、指定された場合は HMAC-SHA256 を使用する。
func NewIPHasher(secret string) *IPHasher {
	h := &IPHasher{}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

// Hash はIPアドレスの64文字の16進ハッシュを返す。
// 同じ入力に対して常に同じ値を返す。
func (h *IPHasher) Hash(ip string) string {
	if h.secret == nil {
		sum := sha256.Sum256([]byte(ip))
		return hex.EncodeToString(sum[:])
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}
