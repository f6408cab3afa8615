package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/dealscope/internal/model"
)

// ReportGenerator はレポートハンドラーが必要とするインターフェース。
type ReportGenerator interface {
	// SummaryPDF はサマリービューのPDFレポートを生成する。
	SummaryPDF(ctx context.Context, from, to *time.Time, managerID *int64) ([]byte, error)
}

// ReportHandler はPDFレポートのHTTPハンドラー。
type ReportHandler struct {
	generator ReportGenerator
}

// NewReportHandler はReportHandlerを生成する。
func NewReportHandler(generator ReportGenerator) *ReportHandler {
	return &ReportHandler{generator: generator}
}

// SummaryPDF はサマリーレポートのPDFを返す。
// GET /api/reports/summary.pdf?from=YYYY-MM-DD&to=YYYY-MM-DD&manager_id=N
func (h *ReportHandler) SummaryPDF(w http.ResponseWriter, r *http.Request) {
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

	pdf, err := h.generator.SummaryPDF(r.Context(), from, to, managerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="summary_report.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
