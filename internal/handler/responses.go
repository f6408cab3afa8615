// Package handler はHTTP APIのハンドラー群を提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/dealscope/internal/analytics"
	"github.com/hitoshi/dealscope/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスへ変換する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var fetchErr *model.FetchError
	if errors.As(err, &fetchErr) {
		writeAPIErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     "REMOTE_UNAVAILABLE",
			Message:  "リモートCRMへのアクセスに失敗しました。",
			Category: "remote",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	if errors.Is(err, analytics.ErrManagerNotFound) {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "MANAGER_NOT_FOUND",
			Message:  "指定されたマネージャーが見つかりません。",
			Category: "client",
			Action:   "同期済みのマネージャーIDを指定してください。",
		})
		return
	}

	slog.Error("service error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// parseDateParam はクエリパラメータの日付（YYYY-MM-DD）をパースする。
// 空文字列はnil（条件なし）を返す。
func parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// invalidDateError は日付パラメータ不正の統一エラーを返す。
func invalidDateError(param string) *model.APIError {
	return &model.APIError{
		Code:     "INVALID_DATE",
		Message:  "日付パラメータ " + param + " の形式が不正です。",
		Category: "client",
		Action:   "YYYY-MM-DD形式で指定してください。",
	}
}
