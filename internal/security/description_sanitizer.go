package security

import "github.com/microcosm-cc/bluemonday"

// DescriptionSanitizer はモデレーター向け応答に含める通報の説明文を無害化する。
// 説明文は受付時に加工せずそのまま保存し、出力時にのみこの処理を通す。
type DescriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer は全てのHTMLタグを除去するポリシーで DescriptionSanitizer を生成する。
func NewDescriptionSanitizer() *DescriptionSanitizer {
	return &DescriptionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したテキストを返す。nil の場合は nil を返す。
func (s *DescriptionSanitizer) Sanitize(description *string) *string {
	if description == nil {
		return nil
	}
	clean := s.policy.Sanitize(*description)
	return &clean
}
