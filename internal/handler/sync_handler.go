package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/dealscope/internal/model"
)

// SyncRunner は同期トリガーハンドラーが必要とするインターフェース。
type SyncRunner interface {
	// Run は1回の同期を実行し、実行結果を返す。
	Run(ctx context.Context) (*model.SyncResult, error)
}

// SyncHandler は同期トリガーのHTTPハンドラー。
type SyncHandler struct {
	runner SyncRunner
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// Trigger は同期を実行して結果を返す。
// POST /api/sync
//
// 同期はオーケストレータ側で直列化されるため、定期実行と重なった
// 場合は先行する実行の完了を待ってから開始される。
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context())
	if err != nil {
		// 部分的な結果（実行ID、スキップ詳細）があれば
		// 診断のためにエラーレスポンスへ含める
		var ne *model.NormalizationError
		if errors.As(err, &ne) && result != nil {
			writeJSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
