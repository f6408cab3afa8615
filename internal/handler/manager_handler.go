package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/dealscope/internal/model"
)

// ManagerLister はマネージャー一覧ハンドラーが必要とするインターフェース。
type ManagerLister interface {
	// List は同期済みの全マネージャーをid昇順で返す。
	List(ctx context.Context) ([]*model.Manager, error)
}

// ManagerHandler はマネージャー一覧のHTTPハンドラー。
type ManagerHandler struct {
	managers ManagerLister
}

// NewManagerHandler はManagerHandlerを生成する。
func NewManagerHandler(managers ManagerLister) *ManagerHandler {
	return &ManagerHandler{managers: managers}
}

// managerResponse はマネージャー情報のAPIレスポンス。
type managerResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	IsAdmin  bool   `json:"is_admin"`
}

// List は同期済みマネージャーの一覧を返す。
// GET /api/managers
func (h *ManagerHandler) List(w http.ResponseWriter, r *http.Request) {
	managers, err := h.managers.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]managerResponse, len(managers))
	for i, m := range managers {
		results[i] = managerResponse{
			ID:       m.ID,
			Name:     m.Name,
			LastName: m.LastName,
			IsAdmin:  m.IsAdmin,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"managers": results})
}
