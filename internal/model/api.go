package model

// APIError はAPIエラーレスポンスの内容を表す。
// 原因カテゴリと対処方法を含む統一フォーマット。
type APIError struct {
	Code     string
	Message  string
	Category string // "client" / "remote" / "system"
	Action   string
}
