// Package cache は集計結果の明示的なキー付きキャッシュを提供する。
// キーはクエリパラメータから構築され、同期成功の度に明示的に無効化される。
// 単一インスタンス運用向けのインメモリ実装と、Redisによる実装を持つ。
package cache

import (
	"context"
	"time"
)

// ErrCacheMiss はキーが見つからない場合に返されるエラー。
var ErrCacheMiss = cacheError("cache miss")

type cacheError string

func (e cacheError) Error() string { return string(e) }

// Cache はキャッシュ操作のインターフェースを定義する。
// 実装（メモリ/Redis）はビジネスロジックを変更せずに差し替えられる。
type Cache interface {
	// Get はキーに対応する値を取得する。見つからない場合はErrCacheMissを返す。
	Get(ctx context.Context, key string) ([]byte, error)

	// Set は値をTTL付きで保存する。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete はキーに対応する値を削除する。
	Delete(ctx context.Context, key string) error

	// Clear は全エントリを削除する。同期成功後の無効化ポイントで呼ばれる。
	Clear(ctx context.Context) error
}
