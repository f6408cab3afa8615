package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordSyncSuccess_IncrementsCounter は同期成功カウンタが増加することを検証する。
func TestRecordSyncSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncSuccess()
	c.RecordSyncSuccess()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "dealscope_sync_success_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("sync_success_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("dealscope_sync_success_total metric not found")
	}
}

// TestRecordSyncFailure_IncrementsCounterWithLabel は同期失敗カウンタが理由ラベル付きで増加することを検証する。
func TestRecordSyncFailure_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncFailure("fetch")
	c.RecordSyncFailure("fetch")
	c.RecordSyncFailure("normalize")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "dealscope_sync_fail_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "fetch":
					if val != 2 {
						t.Errorf("sync_fail_total{reason=fetch} = %v, want 2", val)
					}
				case "normalize":
					if val != 1 {
						t.Errorf("sync_fail_total{reason=normalize} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("dealscope_sync_fail_total metric not found")
	}
}

// TestRecordRecordsUpserted_AddsToCounter はアップサートカウンタが加算されることを検証する。
func TestRecordRecordsUpserted_AddsToCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRecordsUpserted(10)
	c.RecordRecordsUpserted(5)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "dealscope_records_upserted_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 15 {
				t.Errorf("records_upserted_total = %v, want 15", val)
			}
		}
	}
	if !found {
		t.Error("dealscope_records_upserted_total metric not found")
	}
}

// TestRecordRemoteLatency_ObservesHistogram はリモートレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordRemoteLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRemoteLatency(100 * time.Millisecond)
	c.RecordRemoteLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "dealscope_remote_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("dealscope_remote_latency_seconds metric not found")
	}
}

// TestRecordRemoteHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordRemoteHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRemoteHTTPStatus(200)
	c.RecordRemoteHTTPStatus(200)
	c.RecordRemoteHTTPStatus(502)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "dealscope_remote_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("remote_http_status_total{status_code=200} = %v, want 2", val)
					}
				case "502":
					if val != 1 {
						t.Errorf("remote_http_status_total{status_code=502} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("dealscope_remote_http_status_total metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncSuccess()
	c.RecordSyncFailure("fetch")
	c.RecordRecordsUpserted(3)
	c.RecordRecordsSkipped(1)
	c.RecordRemoteLatency(500 * time.Millisecond)
	c.RecordRemoteHTTPStatus(200)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"dealscope_sync_success_total",
		"dealscope_sync_fail_total",
		"dealscope_records_upserted_total",
		"dealscope_records_skipped_total",
		"dealscope_remote_latency_seconds",
		"dealscope_remote_http_status_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}
