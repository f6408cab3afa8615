// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// FetchError はリモートCRM呼び出しの失敗を表す。
// 呼び出し先エンドポイントを保持し、同期は書き込みなしで中断される。
type FetchError struct {
	Endpoint string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	return fmt.Sprintf("リモートCRMの取得に失敗しました (%s): %v", e.Endpoint, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *FetchError) Unwrap() error { return e.Err }

// NormalizationError は単一レコードのフィールド型変換失敗を表す。
// 問題のフィールド名と生の値を保持する。同期全体を中断するか
// レコード単位でスキップするかはポリシー（SyncPolicy）で決まる。
type NormalizationError struct {
	Entity string // "manager" または "deal"
	Field  string
	Value  string // 診断用の生の値（文字列表現）
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s のフィールド %s の正規化に失敗しました (値: %q): %s",
		e.Entity, e.Field, e.Value, e.Reason)
}

// StorageError は永続化層のUPSERT/クエリ失敗を表す。
type StorageError struct {
	Op  string // "upsert_manager", "upsert_deal", "list_deals" など
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *StorageError) Error() string {
	return fmt.Sprintf("ストレージ操作 %s に失敗しました: %v", e.Op, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *StorageError) Unwrap() error { return e.Err }

// AsNormalizationError はエラーチェーンからNormalizationErrorを取り出す。
func AsNormalizationError(err error) (*NormalizationError, bool) {
	var ne *NormalizationError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}
