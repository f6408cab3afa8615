package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/dealscope/internal/model"
)

// mockSyncRunner はテスト用のSyncRunner実装。
type mockSyncRunner struct {
	result *model.SyncResult
	err    error
	runs   int
}

func (m *mockSyncRunner) Run(ctx context.Context) (*model.SyncResult, error) {
	m.runs++
	return m.result, m.err
}

// TestTrigger_ReturnsSyncResult は同期成功時に結果が返ることを検証する。
func TestTrigger_ReturnsSyncResult(t *testing.T) {
	runner := &mockSyncRunner{
		result: &model.SyncResult{
			RunID:   "run-1",
			Policy:  model.SyncPolicyFailFast,
			Fetched: 5,
			Written: 5,
		},
	}
	h := NewSyncHandler(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	w := httptest.NewRecorder()
	h.Trigger(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if runner.runs != 1 {
		t.Errorf("runs = %d, want 1", runner.runs)
	}

	var result model.SyncResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.RunID != "run-1" {
		t.Errorf("RunID = %s, want run-1", result.RunID)
	}
	if result.Written != 5 {
		t.Errorf("Written = %d, want 5", result.Written)
	}
}

// TestTrigger_FetchFailureReturns502 はリモート取得失敗で502が返ることを検証する。
func TestTrigger_FetchFailureReturns502(t *testing.T) {
	runner := &mockSyncRunner{
		err: &model.FetchError{Endpoint: "crm.deal.list.json", Err: errors.New("timeout")},
	}
	h := NewSyncHandler(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	w := httptest.NewRecorder()
	h.Trigger(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	var errResp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if errResp.Code != "REMOTE_UNAVAILABLE" {
		t.Errorf("error code = %s, want REMOTE_UNAVAILABLE", errResp.Code)
	}
}

// TestTrigger_NormalizationFailureReturns422 はfailfast中断時に422と失敗詳細が返ることを検証する。
func TestTrigger_NormalizationFailureReturns422(t *testing.T) {
	ne := &model.NormalizationError{Entity: "deal", Field: "ID", Value: "abc", Reason: "not an integer"}
	runner := &mockSyncRunner{
		result: &model.SyncResult{
			RunID:  "run-2",
			Policy: model.SyncPolicyFailFast,
			Errors: []model.RecordError{{Entity: "deal", Field: "ID", Value: "abc", Reason: "not an integer"}},
		},
		err: ne,
	}
	h := NewSyncHandler(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	w := httptest.NewRecorder()
	h.Trigger(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}

	var result model.SyncResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Field != "ID" {
		t.Errorf("Errors = %+v, want one error on field ID", result.Errors)
	}
}

// TestTrigger_StorageFailureReturns500 はストレージ失敗で500が返ることを検証する。
func TestTrigger_StorageFailureReturns500(t *testing.T) {
	runner := &mockSyncRunner{
		err: &model.StorageError{Op: "upsert_deal", Err: errors.New("connection lost")},
	}
	h := NewSyncHandler(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	w := httptest.NewRecorder()
	h.Trigger(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
