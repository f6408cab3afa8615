// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はリモートCRMから届く自由入力テキスト
// （ディールのタイトルなど）からマークアップを除去する。
// 分析ダッシュボードはプレーンテキストのみを表示するため、
// bluemondayのStrictPolicy（全タグ除去）を適用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストサニタイズ機能のインターフェースを定義する。
// ディールの保存前（正規化時）に使用される。
type TextSanitizerService interface {
	// SanitizeText はテキストから全HTMLタグを除去してプレーンテキストを返す。
	// 実体参照はデコードし、前後の空白は取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグを一切許可しない。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はテキストから全HTMLタグを除去してプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyはタグを除去し、残ったテキストを実体参照化するため、
	// 表示用に実体参照を元のテキストへ戻す
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
