package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dealscope/internal/analytics"
	"github.com/hitoshi/dealscope/internal/model"
)

// AnalyticsServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type AnalyticsServiceInterface interface {
	// Summary は全体サマリー（ポイントメトリクス + トレンド）を返す。
	Summary(ctx context.Context, from, to *time.Time, managerID *int64) (*analytics.SummaryResult, error)
	// Forecast は全履歴のフォアキャスト系列と異常フラグを返す。
	Forecast(ctx context.Context) (*analytics.ForecastSeries, error)
	// ManagerView はマネージャー別の集計を返す。
	ManagerView(ctx context.Context, managerID int64, from, to *time.Time) (*analytics.ManagerResult, error)
}

// AnalyticsHandler は集計ビューのHTTPハンドラー。
type AnalyticsHandler struct {
	service AnalyticsServiceInterface
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// Summary は全体サマリーを返す。
// GET /api/analytics/summary?from=YYYY-MM-DD&to=YYYY-MM-DD&manager_id=N
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateParam(r.URL.Query().Get("from"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidDateError("from"))
		return
	}
	to, err := parseDateParam(r.URL.Query().Get("to"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidDateError("to"))
		return
	}

	var managerID *int64
	if raw := r.URL.Query().Get("manager_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_MANAGER_ID",
				Message:  "manager_idの形式が不正です。",
				Category: "client",
				Action:   "整数のマネージャーIDを指定してください。",
			})
			return
		}
		managerID = &id
	}

	result, err := h.service.Summary(r.Context(), from, to, managerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Forecast は全履歴のフォアキャストを返す。
// GET /api/analytics/forecast
func (h *AnalyticsHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Forecast(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ManagerView はマネージャー別の集計を返す。
// GET /api/analytics/managers/{id}?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *AnalyticsHandler) ManagerView(w http.ResponseWriter, r *http.Request) {
	managerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_MANAGER_ID",
			Message:  "マネージャーIDの形式が不正です。",
			Category: "client",
			Action:   "整数のマネージャーIDを指定してください。",
		})
		return
	}

	from, err := parseDateParam(r.URL.Query().Get("from"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidDateError("from"))
		return
	}
	to, err := parseDateParam(r.URL.Query().Get("to"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidDateError("to"))
		return
	}

	result, err := h.service.ManagerView(r.Context(), managerID, from, to)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
