package model

import "time"

// SyncPolicy は同期中の単一レコード正規化失敗に対するポリシーを表す。
type SyncPolicy string

const (
	// SyncPolicyFailFast は1件でも正規化に失敗した場合、
	// 書き込みを一切行わずに同期全体を中断するポリシー。
	SyncPolicyFailFast SyncPolicy = "failfast"
	// SyncPolicyBestEffort は失敗レコードをスキップして続行し、
	// SyncResultに報告するポリシー。
	SyncPolicyBestEffort SyncPolicy = "besteffort"
)

// IsValid はポリシー値が既知のものかを返す。
func (p SyncPolicy) IsValid() bool {
	return p == SyncPolicyFailFast || p == SyncPolicyBestEffort
}

// SyncResult は1回の同期実行の結果を表す。
// Fetched/Written/Skippedはマネージャーとディールの合計件数。
type SyncResult struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Policy     SyncPolicy    `json:"policy"`
	Fetched    int           `json:"fetched"`
	Written    int           `json:"written"`
	Skipped    int           `json:"skipped"`
	Errors     []RecordError `json:"errors,omitempty"`
}

// RecordError は同期中にスキップまたは中断の原因となった
// 単一レコードの失敗情報を表す。診断に必要な文脈を保持する。
type RecordError struct {
	Entity string `json:"entity"` // "manager" または "deal"
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}
