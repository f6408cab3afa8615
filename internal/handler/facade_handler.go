package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/dealscope/internal/bitrix"
)

// RemoteReader はファサードハンドラーが必要とするリモート読み取りインターフェース。
type RemoteReader interface {
	// GetProfile はWebhook所有者のプロフィールを取得する。
	GetProfile(ctx context.Context) (bitrix.RawRecord, error)
	// ListDeals は案件の一覧を取得する。
	ListDeals(ctx context.Context) ([]bitrix.RawRecord, error)
}

// FacadeHandler はリモートCRMの2つの読み取りエンドポイントを
// そのまま再公開する薄いファサード。Webhook URLをクライアントへ
// 露出させずにダッシュボード側から生データを参照できるようにする。
type FacadeHandler struct {
	remote RemoteReader
}

// NewFacadeHandler はFacadeHandlerを生成する。
func NewFacadeHandler(remote RemoteReader) *FacadeHandler {
	return &FacadeHandler{remote: remote}
}

// Profile はリモートのプロフィールをそのまま返す。
// GET /api/profile
func (h *FacadeHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.remote.GetProfile(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": profile})
}

// Deals はリモートの案件一覧をそのまま返す。
// GET /api/deals
func (h *FacadeHandler) Deals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.remote.ListDeals(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": deals})
}
