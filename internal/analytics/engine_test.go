package analytics

import (
	"testing"
	"time"

	"github.com/hitoshi/dealscope/internal/model"
)

func ts(value string) *time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		panic(err)
	}
	return &t
}

// dealsWithDailyCounts は指定した日次件数になるディール集合を生成する。
// 日付は2024-03-01から1日刻み。
func dealsWithDailyCounts(counts []int) []*model.Deal {
	var deals []*model.Deal
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id := int64(1)
	for day, count := range counts {
		for i := 0; i < count; i++ {
			created := base.AddDate(0, 0, day)
			deals = append(deals, &model.Deal{
				ID:           id,
				DateCreateAt: &created,
			})
			id++
		}
	}
	return deals
}

// TestComputeMetrics_ConversionRounding は成約率が小数第1位へ丸められることを検証する。
func TestComputeMetrics_ConversionRounding(t *testing.T) {
	// 3件中1件成約: 33.333... % → 33.3 %
	deals := []*model.Deal{
		{ID: 1, StageID: model.StageWon},
		{ID: 2, StageID: "NEW"},
		{ID: 3, StageID: "LOSE"},
	}

	m := ComputeMetrics(deals)

	if m.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", m.TotalCount)
	}
	if m.WonCount != 1 {
		t.Errorf("WonCount = %d, want 1", m.WonCount)
	}
	if m.ConversionRate != 33.3 {
		t.Errorf("ConversionRate = %v, want 33.3", m.ConversionRate)
	}
}

// TestComputeMetrics_EmptySet は空集合で全メトリクスが0になることを検証する。
func TestComputeMetrics_EmptySet(t *testing.T) {
	m := ComputeMetrics(nil)

	if m.TotalCount != 0 || m.ConversionRate != 0 || m.AvgDealValue != 0 || m.AvgTimeToCloseDays != 0 {
		t.Errorf("empty set metrics = %+v, want all zero", m)
	}
}

// TestComputeMetrics_ConversionBounds は成約率が0〜100に収まることを検証する。
func TestComputeMetrics_ConversionBounds(t *testing.T) {
	allWon := []*model.Deal{
		{ID: 1, StageID: model.StageWon},
		{ID: 2, StageID: model.StageWon},
	}

	m := ComputeMetrics(allWon)
	if m.ConversionRate != 100 {
		t.Errorf("ConversionRate = %v, want 100", m.ConversionRate)
	}
}

// TestComputeMetrics_ChatCount はチャットマーカーの部分一致判定を検証する。
func TestComputeMetrics_ChatCount(t *testing.T) {
	deals := []*model.Deal{
		{ID: 1, SourceID: "I2CRM - instagram"},
		{ID: 2, SourceID: "i2crm - lowercase"}, // 大文字小文字は区別される
		{ID: 3, SourceID: "CALL"},
		{ID: 4, SourceID: ""},
	}

	m := ComputeMetrics(deals)
	if m.ChatCount != 1 {
		t.Errorf("ChatCount = %d, want 1", m.ChatCount)
	}
}

// TestComputeMetrics_AvgDealValue は平均単価が成約集合に対してのみ計算されることを検証する。
func TestComputeMetrics_AvgDealValue(t *testing.T) {
	deals := []*model.Deal{
		{ID: 1, StageID: model.StageWon, Opportunity: 1000},
		{ID: 2, StageID: model.StageWon, Opportunity: 2000},
		{ID: 3, StageID: "NEW", Opportunity: 99999},
	}

	m := ComputeMetrics(deals)
	if m.AvgDealValue != 1500 {
		t.Errorf("AvgDealValue = %v, want 1500", m.AvgDealValue)
	}
}

// TestComputeMetrics_AvgTimeToClose は成約所要日数の平均を検証する。
func TestComputeMetrics_AvgTimeToClose(t *testing.T) {
	deals := []*model.Deal{
		{
			ID:           1,
			StageID:      model.StageWon,
			DateCreateAt: ts("2024-03-01 10:00:00"),
			CloseDateAt:  ts("2024-03-05 10:00:00"), // 4日
		},
		{
			ID:           2,
			StageID:      model.StageWon,
			DateCreateAt: ts("2024-03-01 10:00:00"),
			CloseDateAt:  ts("2024-03-03 10:00:00"), // 2日
		},
		{
			// 日付不明の成約ディールは所要日数の平均から除外される
			ID:      3,
			StageID: model.StageWon,
		},
	}

	m := ComputeMetrics(deals)
	if m.AvgTimeToCloseDays != 3 {
		t.Errorf("AvgTimeToCloseDays = %v, want 3", m.AvgTimeToCloseDays)
	}
}

// TestComputeMetrics_AvgTimeToClose_FloorsTowardNegative は日数の
// 端数が負方向へ切り捨てられることを検証する。
func TestComputeMetrics_AvgTimeToClose_FloorsTowardNegative(t *testing.T) {
	deals := []*model.Deal{
		{
			// 2.5日 → 2日
			ID:           1,
			StageID:      model.StageWon,
			DateCreateAt: ts("2024-03-01 00:00:00"),
			CloseDateAt:  ts("2024-03-03 12:00:00"),
		},
		{
			// 成約日が作成日より前の不正レコード: -1.5日 → -2日
			ID:           2,
			StageID:      model.StageWon,
			DateCreateAt: ts("2024-03-10 00:00:00"),
			CloseDateAt:  ts("2024-03-08 12:00:00"),
		},
	}

	m := ComputeMetrics(deals)
	// mean(2, -2) = 0
	if m.AvgTimeToCloseDays != 0 {
		t.Errorf("AvgTimeToCloseDays = %v, want 0", m.AvgTimeToCloseDays)
	}
}

// TestComputeTrend_MovingAverageWindow は移動平均の定義例を検証する。
// 件数[5, 7, 9, 6]に対して移動平均は[null, null, 7.0, 7.33]。
func TestComputeTrend_MovingAverageWindow(t *testing.T) {
	deals := dealsWithDailyCounts([]int{5, 7, 9, 6})

	trend := ComputeTrend(deals)
	if len(trend) != 4 {
		t.Fatalf("len(trend) = %d, want 4", len(trend))
	}

	if trend[0].MovingAvg != nil || trend[1].MovingAvg != nil {
		t.Error("first two buckets must have null moving average")
	}
	if trend[2].MovingAvg == nil || *trend[2].MovingAvg != 7.0 {
		t.Errorf("trend[2].MovingAvg = %v, want 7.0", trend[2].MovingAvg)
	}
	if trend[3].MovingAvg == nil || *trend[3].MovingAvg != 7.33 {
		t.Errorf("trend[3].MovingAvg = %v, want 7.33", trend[3].MovingAvg)
	}

	for i, want := range []int{5, 7, 9, 6} {
		if trend[i].Count != want {
			t.Errorf("trend[%d].Count = %d, want %d", i, trend[i].Count, want)
		}
	}
}

// TestComputeTrend_GapsNotBackfilled は日付の空白がゼロ埋めされないことを検証する。
func TestComputeTrend_GapsNotBackfilled(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	deals := []*model.Deal{
		{ID: 1, DateCreateAt: &d1},
		{ID: 2, DateCreateAt: &d2},
	}

	trend := ComputeTrend(deals)
	if len(trend) != 2 {
		t.Fatalf("len(trend) = %d, want 2 (gaps must not be backfilled)", len(trend))
	}
	if trend[0].Date != "2024-03-01" || trend[1].Date != "2024-03-10" {
		t.Errorf("trend dates = %s, %s, want 2024-03-01, 2024-03-10", trend[0].Date, trend[1].Date)
	}
}

// TestComputeTrend_UnknownDatesExcluded は日付不明のディールが系列から除外されることを検証する。
func TestComputeTrend_UnknownDatesExcluded(t *testing.T) {
	d := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	deals := []*model.Deal{
		{ID: 1, DateCreateAt: &d},
		{ID: 2}, // 日付不明
	}

	trend := ComputeTrend(deals)
	if len(trend) != 1 {
		t.Fatalf("len(trend) = %d, want 1", len(trend))
	}
	if trend[0].Count != 1 {
		t.Errorf("trend[0].Count = %d, want 1", trend[0].Count)
	}
}

// TestComputeForecast_AnomalyDetected は件数[10, 10, 10, 4]で異常が検出されることを検証する。
// 最終バケットのフォアキャスト（直前3バケットの平均 = 10.0）を実測値4が下回る。
func TestComputeForecast_AnomalyDetected(t *testing.T) {
	deals := dealsWithDailyCounts([]int{10, 10, 10, 4})

	series := ComputeForecast(deals)
	if len(series.Points) != 4 {
		t.Fatalf("len(points) = %d, want 4", len(series.Points))
	}

	last := series.Points[3]
	if last.Forecast != 10.0 {
		t.Errorf("last forecast = %v, want 10.0", last.Forecast)
	}
	if !series.Anomaly {
		t.Error("Anomaly = false, want true")
	}
}

// TestComputeForecast_NoAnomaly は件数[10, 10, 10, 12]で異常にならないことを検証する。
func TestComputeForecast_NoAnomaly(t *testing.T) {
	deals := dealsWithDailyCounts([]int{10, 10, 10, 12})

	series := ComputeForecast(deals)
	if series.Anomaly {
		t.Error("Anomaly = true, want false")
	}
}

// TestComputeForecast_MinPeriods はフォアキャストが2番目のバケットから先行点のみで定義されることを検証する。
func TestComputeForecast_MinPeriods(t *testing.T) {
	deals := dealsWithDailyCounts([]int{4, 8, 6})

	series := ComputeForecast(deals)
	if len(series.Points) != 3 {
		t.Fatalf("len(points) = %d, want 3", len(series.Points))
	}

	// 先頭バケットは先行点がないため実測値そのもの
	if series.Points[0].Forecast != 4 {
		t.Errorf("points[0].Forecast = %v, want 4", series.Points[0].Forecast)
	}
	// 2番目は先行1点の平均
	if series.Points[1].Forecast != 4 {
		t.Errorf("points[1].Forecast = %v, want 4", series.Points[1].Forecast)
	}
	// 3番目は先行2点の平均
	if series.Points[2].Forecast != 6 {
		t.Errorf("points[2].Forecast = %v, want 6", series.Points[2].Forecast)
	}
}

// TestComputeForecast_SingleBucketNoAnomaly はバケットが1つの場合に異常判定されないことを検証する。
func TestComputeForecast_SingleBucketNoAnomaly(t *testing.T) {
	deals := dealsWithDailyCounts([]int{1})

	series := ComputeForecast(deals)
	if series.Anomaly {
		t.Error("Anomaly = true for single bucket, want false")
	}
}

// TestComputeConversionSeries はマネージャービューの日次成約率系列を検証する。
func TestComputeConversionSeries(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		d := base.AddDate(0, 0, offset)
		return &d
	}

	deals := []*model.Deal{
		// 1日目: 2件中1件成約 → 0.5
		{ID: 1, StageID: model.StageWon, DateCreateAt: day(0)},
		{ID: 2, StageID: "NEW", DateCreateAt: day(0)},
		// 2日目: 1件中0件成約 → 0
		{ID: 3, StageID: "LOSE", DateCreateAt: day(1)},
		// 3日目: 1件中1件成約 → 1.0
		{ID: 4, StageID: model.StageWon, DateCreateAt: day(2)},
	}

	series := ComputeConversionSeries(deals)
	if len(series) != 3 {
		t.Fatalf("len(series) = %d, want 3", len(series))
	}

	if series[0].Rate != 0.5 {
		t.Errorf("series[0].Rate = %v, want 0.5", series[0].Rate)
	}
	if series[1].Rate != 0 {
		t.Errorf("series[1].Rate = %v, want 0", series[1].Rate)
	}
	if series[2].Rate != 1.0 {
		t.Errorf("series[2].Rate = %v, want 1.0", series[2].Rate)
	}

	// 率は常に[0,1]に収まる
	for i, p := range series {
		if p.Rate < 0 || p.Rate > 1 {
			t.Errorf("series[%d].Rate = %v, out of [0,1]", i, p.Rate)
		}
	}

	// 移動平均は3番目のバケットから定義され、(0.5 + 0 + 1.0) / 3 = 0.5
	if series[0].MovingAvg != nil || series[1].MovingAvg != nil {
		t.Error("first two buckets must have null moving average")
	}
	if series[2].MovingAvg == nil || *series[2].MovingAvg != 0.5 {
		t.Errorf("series[2].MovingAvg = %v, want 0.5", series[2].MovingAvg)
	}
}

// TestFilterByRange_InclusiveBounds は範囲の両端が含まれることを検証する。
func TestFilterByRange_InclusiveBounds(t *testing.T) {
	deals := []*model.Deal{
		{ID: 1, DateCreateAt: ts("2024-03-01 00:00:00")},
		{ID: 2, DateCreateAt: ts("2024-03-05 23:59:59")},
		{ID: 3, DateCreateAt: ts("2024-03-06 00:00:01")},
		{ID: 4}, // 日付不明は常に除外
	}

	from := ts("2024-03-01 00:00:00")
	to := ts("2024-03-05 23:59:59")

	filtered := FilterByRange(deals, from, to)
	if len(filtered) != 2 {
		t.Fatalf("len(filtered) = %d, want 2", len(filtered))
	}
	if filtered[0].ID != 1 || filtered[1].ID != 2 {
		t.Errorf("filtered IDs = %d, %d, want 1, 2", filtered[0].ID, filtered[1].ID)
	}
}
