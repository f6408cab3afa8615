// Package report は集計ビューのPDFレポート生成を提供する。
package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/hitoshi/dealscope/internal/analytics"
)

// fontName はレポートで使用する組み込みフォント。
// 組み込みフォントはLatin-1のみ対応のため、レポート本文は英語で出力する。
const fontName = "Helvetica"

// AnalyticsSource はレポートが必要とする集計データの取得インターフェース。
type AnalyticsSource interface {
	Summary(ctx context.Context, from, to *time.Time, managerID *int64) (*analytics.SummaryResult, error)
}

// Service はPDFレポートを生成する。
// ファイルへは書き出さず、HTTPレスポンスでそのまま返せるようにバイト列を返す。
type Service struct {
	source AnalyticsSource
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(source AnalyticsSource) *Service {
	return &Service{source: source}
}

// SummaryPDF はサマリービューのPDFレポートを生成する。
// 集計はAnalyticsSourceに委ねるため、空範囲フォールバックや
// キャッシュの挙動はHTTPのサマリーエンドポイントと一致する。
func (s *Service) SummaryPDF(ctx context.Context, from, to *time.Time, managerID *int64) ([]byte, error) {
	summary, err := s.source.Summary(ctx, from, to, managerID)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Sales Pipeline Summary", false)
	pdf.SetAuthor("Dealscope", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	// ===== ヘッダー
	pdf.SetFont(fontName, "B", 18)
	pdf.CellFormat(0, 10, "Sales Pipeline Summary", "", 1, "C", false, 0, "")

	pdf.SetFont(fontName, "", 11)
	sub := fmt.Sprintf("Period: %s - %s    Generated: %s",
		periodLabel(from), periodLabel(to),
		time.Now().Format("2006-01-02"),
	)
	pdf.CellFormat(0, 7, sub, "", 1, "C", false, 0, "")
	if managerID != nil {
		pdf.CellFormat(0, 7, fmt.Sprintf("Manager ID: %d", *managerID), "", 1, "C", false, 0, "")
	}
	if summary.RangeFallback {
		pdf.SetFont(fontName, "I", 10)
		pdf.CellFormat(0, 6, "Note: no deals in the selected period; showing all available data.",
			"", 1, "C", false, 0, "")
	}
	hr(pdf)
	pdf.Ln(3)

	// ===== ポイントメトリクス
	sectionTitle(pdf, "Key Metrics")
	m := summary.Metrics
	kvLine(pdf, "Total deals", fmt.Sprintf("%d", m.TotalCount))
	kvLine(pdf, "Chat leads", fmt.Sprintf("%d", m.ChatCount))
	kvLine(pdf, "Meetings", fmt.Sprintf("%d", m.MeetingCount))
	kvLine(pdf, "Won deals", fmt.Sprintf("%d", m.WonCount))
	kvLine(pdf, "Conversion", fmt.Sprintf("%.1f %%", m.ConversionRate))
	kvLine(pdf, "Avg deal value", fmt.Sprintf("%.0f", m.AvgDealValue))
	kvLine(pdf, "Avg time to close", fmt.Sprintf("%.0f days", m.AvgTimeToCloseDays))
	pdf.Ln(2)
	hr(pdf)

	// ===== 日次トレンド
	sectionTitle(pdf, "Daily Activity")
	pdf.SetFont(fontName, "B", 10)
	pdf.CellFormat(50, 7, "Date", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Deals", "1", 0, "R", false, 0, "")
	pdf.CellFormat(50, 7, "Moving avg (3d)", "1", 1, "R", false, 0, "")

	pdf.SetFont(fontName, "", 10)
	for _, p := range summary.Trend {
		avg := "-"
		if p.MovingAvg != nil {
			avg = fmt.Sprintf("%.2f", *p.MovingAvg)
		}
		pdf.CellFormat(50, 6, p.Date, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", p.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, avg, "1", 1, "R", false, 0, "")
	}
	if len(summary.Trend) == 0 {
		pdf.CellFormat(140, 6, "No dated deals available", "1", 1, "C", false, 0, "")
	}

	// ===== ページ番号
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontName, "", 9)
		pdf.CellFormat(0, 10,
			fmt.Sprintf("Page %d/{nb}", pdf.PageNo()),
			"", 0, "C", false, 0, "",
		)
	})

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDFの生成に失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// periodLabel は期間境界の表示表現を返す。
func periodLabel(t *time.Time) string {
	if t == nil {
		return "all"
	}
	return t.Format("2006-01-02")
}

func sectionTitle(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont(fontName, "B", 12)
	pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 11)
}

func kvLine(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont(fontName, "B", 11)
	pdf.CellFormat(55, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontName, "", 11)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 2)
}
