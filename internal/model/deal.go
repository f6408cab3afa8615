// Package model はドメインモデルを定義する。
package model

import "time"

// StageWon は成約ステージのコード。
// conversion率・平均単価・成約所要日数の集計対象を判定する。
const StageWon = "WON"

// SourceChatMarker はチャット経由の流入を示すsource_idのマーカー文字列。
// 部分一致（大文字小文字を区別するリテラル一致）で判定する。
const SourceChatMarker = "I2CRM"

// Manager はCRM上の担当マネージャーを表す。
// IDはリモートCRMが採番する整数IDで、同期をまたいで安定している。
type Manager struct {
	ID       int64
	Name     string
	LastName string
	IsAdmin  bool
}

// Deal はCRM上の商談（ディール）を表す。
// IDはリモートCRMが採番する整数IDで、同期の唯一の同一性キーとなる。
//
// 日付フィールドはリモートのテキスト表現のまま保持し、
// 正規化時にパースした値をDateCreateAt/CloseDateAtに持つ。
// パース不能な値はnil（日付不明）となり、日付条件付きの集計から
// 除外される（エラーにはしない）。
type Deal struct {
	ID          int64
	Title       string
	TypeID      string
	StageID     string
	CurrencyID  string
	SourceID    string
	Opportunity float64 // 非負の金額。正規化時に強制される

	// AssignedByID はManager.IDへのソフト参照。
	// 参照先マネージャーが未同期でも保存は成功する（書き込み時に強制しない）。
	AssignedByID int64

	BeginDate        string
	CloseDate        string // 未成約の場合は空
	DateCreate       string
	DateModify       string
	LastActivityTime string

	// 正規化時にパース済みの日付。nilは日付不明を表す。
	DateCreateAt *time.Time
	CloseDateAt  *time.Time
}
