// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/dealscope/internal/model"
)

// DealFilter はディール一覧取得の絞り込み条件を表す。
// すべてのフィールドは任意で、nilは条件なしを意味する。
type DealFilter struct {
	// CreatedFrom / CreatedUntil はdate_createのパース済み値に対する範囲条件。
	// CreatedFromは両端含む下限、CreatedUntilは排他的上限
	// （呼び出し側が終了日の翌日0時を渡すことで終了日を含める）。
	// 範囲指定時、日付不明（パース不能）のディールは結果から除外される。
	CreatedFrom  *time.Time
	CreatedUntil *time.Time

	// AssignedByID は担当マネージャーIDによる絞り込み。
	AssignedByID *int64
}

// ManagerRepository はマネージャーデータの永続化インターフェース。
type ManagerRepository interface {
	// Upsert はマネージャーをid単位で挿入または上書きする。
	// 同一idの再同期は重複行を作らない（冪等）。
	Upsert(ctx context.Context, manager *model.Manager) error

	// FindByID は指定IDのマネージャーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Manager, error)

	// List は全マネージャーをid昇順で返す。
	List(ctx context.Context) ([]*model.Manager, error)
}

// DealRepository はディールデータの永続化インターフェース。
type DealRepository interface {
	// Upsert はディールをid単位で挿入または上書きする。
	// 1レコードの全フィールドは単一文で更新され、読み手が
	// 部分更新された行を観測することはない。
	// assigned_by_idの参照先マネージャーが未同期でも成功する。
	Upsert(ctx context.Context, deal *model.Deal) error

	// List はフィルタ条件に合致するディールを返す。順序は不定であり、
	// 必要な並びは集計側が責任を持つ。
	List(ctx context.Context, filter DealFilter) ([]*model.Deal, error)

	// Count は全ディール数を返す。
	Count(ctx context.Context) (int, error)
}
