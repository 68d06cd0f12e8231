// Package auth は外部の認証基盤が発行したトークンからモデレーターの識別情報を取り出す。
//
// 認証基盤そのもの（ログインやトークン発行）はこのサービスの範囲外であり、
// ここでは署名・有効期限・ロールの検証のみを行う。
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brightpearl/brightpearl/internal/model"
)

// ModeratorRole はモデレーター権限を表すロール名。
const ModeratorRole = "moderator"

// ErrInvalidToken はトークンの署名・形式・有効期限が不正な場合のエラー。
var ErrInvalidToken = errors.New("invalid or expired authentication token")

// TokenVerifier はBearerトークンを検証してモデレーターの識別情報を返すインターフェース。
type TokenVerifier interface {
	// Verify はトークンを検証する。
	// 署名や有効期限が不正な場合は ErrInvalidToken を返す。
	// 有効だがモデレーターロールを持たない場合は IsModerator=false の識別情報を返す。
	Verify(ctx context.Context, token string) (*model.Moderator, error)
}

// moderatorClaims は認証基盤が発行するトークンのクレーム。
// ロールはトップレベルの role または app_metadata.role のどちらかで渡される。
type moderatorClaims struct {
	jwt.RegisteredClaims
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata appMetadata `json:"app_metadata,omitempty"`
}

type appMetadata struct {
	Role string `json:"role,omitempty"`
}

// JWTVerifierConfig はJWT検証の設定を保持する。
type JWTVerifierConfig struct {
	Secret string
	// Issuer が空でない場合は iss クレームの一致を要求する。
	Issuer string
	// Leeway は有効期限判定の許容誤差。
	Leeway time.Duration
}

// JWTVerifier はHS256で署名されたJWTを検証する TokenVerifier の実装。
type JWTVerifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewJWTVerifier はJWTVerifierを生成する。
func NewJWTVerifier(cfg JWTVerifierConfig) (*JWTVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &JWTVerifier{
		secret: []byte(cfg.Secret),
		opts:   opts,
	}, nil
}

// Verify は TokenVerifier インターフェースを実装する。
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*model.Moderator, error) {
	claims := &moderatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	return &model.Moderator{
		ID:          claims.Subject,
		Email:       claims.Email,
		IsModerator: claims.Role == ModeratorRole || claims.AppMetadata.Role == ModeratorRole,
	}, nil
}

var _ TokenVerifier = (*JWTVerifier)(nil)
