// Package analytics はディール集合から時系列メトリクスを導出する集計エンジンを提供する。
//
// エンジン（本ファイル）はクエリ済みのディール集合に対する純粋関数で、
// 状態を持たない。日付範囲のフォールバックやキャッシュはServiceが担う。
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/dealscope/internal/model"
)

// movingAvgWindow はトレンドの移動平均とフォアキャストの窓幅。
const movingAvgWindow = 3

// dateKeyLayout は日次バケットのキー表現。
const dateKeyLayout = "2006-01-02"

// Metrics は選択範囲に対するポイントメトリクス。
type Metrics struct {
	TotalCount   int     `json:"total_count"`
	ChatCount    int     `json:"chat_count"`
	MeetingCount int     `json:"meeting_count"`
	WonCount     int     `json:"won_count"`
	// ConversionRate はパーセント表記（0〜100）、小数第1位に丸め。
	ConversionRate float64 `json:"conversion_rate"`
	// AvgDealValue は成約ディールの平均金額。成約なしの場合は0。
	AvgDealValue float64 `json:"avg_deal_value"`
	// AvgTimeToCloseDays は成約ディールの作成から成約までの平均日数。
	// 両日付がパース可能な成約ディールのみが対象。対象なしの場合は0。
	AvgTimeToCloseDays float64 `json:"avg_time_to_close_days"`
}

// TrendPoint は日次トレンド系列の1バケット。
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	// MovingAvg は窓幅3の後方移動平均（小数第2位に丸め）。
	// 先頭2バケットは先行点が不足するためnull。
	MovingAvg *float64 `json:"moving_avg"`
}

// ForecastPoint はフォアキャスト系列の1バケット。
type ForecastPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	// Forecast は直前最大3バケットの平均（min_periods=1相当）。
	// 先頭バケットは先行点がないため実測値そのものになる。
	Forecast float64 `json:"forecast"`
}

// ForecastSeries は全履歴に対するフォアキャスト系列と異常フラグ。
type ForecastSeries struct {
	Points []ForecastPoint `json:"points"`
	// Anomaly はバケットが2つ以上あり、かつ最新の実測値が
	// 最新のフォアキャスト値を厳密に下回る場合にtrue。
	Anomaly bool `json:"anomaly"`
}

// ConversionPoint はマネージャー別ビューの日次成約率系列の1バケット。
type ConversionPoint struct {
	Date  string `json:"date"`
	Total int    `json:"total"`
	Won   int    `json:"won"`
	// Rate は0〜1の割合。
	Rate float64 `json:"rate"`
	// MovingAvg は窓幅3の後方移動平均。先頭2バケットはnull。
	MovingAvg *float64 `json:"moving_avg"`
}

// ComputeMetrics はディール集合のポイントメトリクスを計算する。
func ComputeMetrics(deals []*model.Deal) Metrics {
	m := Metrics{TotalCount: len(deals)}

	var wonValueSum float64
	var closeDaysSum float64
	var closeDaysCount int

	for _, d := range deals {
		if strings.Contains(d.SourceID, model.SourceChatMarker) {
			m.ChatCount++
		}
		if d.CloseDateAt != nil {
			m.MeetingCount++
		}
		if d.StageID != model.StageWon {
			continue
		}
		m.WonCount++
		wonValueSum += d.Opportunity
		if d.DateCreateAt != nil && d.CloseDateAt != nil {
			// 日数は負方向へ切り捨てる（-1.5日 → -2日）。
			// 成約日が作成日より前の不正レコードも一貫した値で平均に入る。
			days := d.CloseDateAt.Sub(*d.DateCreateAt).Hours() / 24
			closeDaysSum += math.Floor(days)
			closeDaysCount++
		}
	}

	if m.TotalCount > 0 {
		m.ConversionRate = round1(float64(m.WonCount) / float64(m.TotalCount) * 100)
	}
	if m.WonCount > 0 {
		m.AvgDealValue = wonValueSum / float64(m.WonCount)
	}
	if closeDaysCount > 0 {
		m.AvgTimeToCloseDays = closeDaysSum / float64(closeDaysCount)
	}

	return m
}

// ComputeTrend は日次の件数トレンドと窓幅3の後方移動平均を計算する。
// 日付不明（パース不能）のディールは系列から除外される。
// バケットはカレンダー日付の存在するものだけで構成され、
// 空白日がゼロ埋めされることはない。
func ComputeTrend(deals []*model.Deal) []TrendPoint {
	dates, counts := dailyCounts(deals)

	points := make([]TrendPoint, len(dates))
	for i := range dates {
		points[i] = TrendPoint{Date: dates[i], Count: counts[i]}
		if i >= movingAvgWindow-1 {
			sum := 0
			for j := i - movingAvgWindow + 1; j <= i; j++ {
				sum += counts[j]
			}
			avg := round2(float64(sum) / movingAvgWindow)
			points[i].MovingAvg = &avg
		}
	}

	return points
}

// ComputeForecast は全履歴の日次件数に対するフォアキャスト系列を計算する。
// 各バケットのフォアキャストは直前の最大3バケットの平均
// （先行点が1つでもあれば定義される）。
func ComputeForecast(deals []*model.Deal) ForecastSeries {
	dates, counts := dailyCounts(deals)

	points := make([]ForecastPoint, len(dates))
	var lastForecast float64
	for i := range dates {
		var forecast float64
		if i == 0 {
			forecast = float64(counts[0])
		} else {
			from := i - movingAvgWindow
			if from < 0 {
				from = 0
			}
			sum := 0
			for j := from; j < i; j++ {
				sum += counts[j]
			}
			forecast = float64(sum) / float64(i-from)
		}
		lastForecast = forecast
		points[i] = ForecastPoint{
			Date:     dates[i],
			Count:    counts[i],
			Forecast: round2(forecast),
		}
	}

	series := ForecastSeries{Points: points}
	if len(counts) >= 2 && float64(counts[len(counts)-1]) < lastForecast {
		series.Anomaly = true
	}

	return series
}

// ComputeConversionSeries は日次の成約率系列と窓幅3の後方移動平均を計算する。
// 率は0〜1の割合で表す。日付不明のディールは系列から除外される。
func ComputeConversionSeries(deals []*model.Deal) []ConversionPoint {
	type bucket struct {
		total int
		won   int
	}
	buckets := make(map[string]*bucket)
	for _, d := range deals {
		if d.DateCreateAt == nil {
			continue
		}
		key := d.DateCreateAt.Format(dateKeyLayout)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.total++
		if d.StageID == model.StageWon {
			b.won++
		}
	}

	dates := sortedKeys(buckets)
	rates := make([]float64, len(dates))
	points := make([]ConversionPoint, len(dates))
	for i, date := range dates {
		b := buckets[date]
		rates[i] = float64(b.won) / float64(b.total)
		points[i] = ConversionPoint{
			Date:  date,
			Total: b.total,
			Won:   b.won,
			Rate:  round2(rates[i]),
		}
		if i >= movingAvgWindow-1 {
			sum := 0.0
			for j := i - movingAvgWindow + 1; j <= i; j++ {
				sum += rates[j]
			}
			avg := round2(sum / movingAvgWindow)
			points[i].MovingAvg = &avg
		}
	}

	return points
}

// FilterByRange はdate_createのパース済み値が[from, to]（両端含む）に
// 収まるディールだけを返す。日付不明のディールは常に除外される。
// fromまたはtoがnilの場合、その側の条件は課さない。
func FilterByRange(deals []*model.Deal, from, to *time.Time) []*model.Deal {
	filtered := make([]*model.Deal, 0, len(deals))
	for _, d := range deals {
		if d.DateCreateAt == nil {
			continue
		}
		if from != nil && d.DateCreateAt.Before(*from) {
			continue
		}
		if to != nil && d.DateCreateAt.After(*to) {
			continue
		}
		filtered = append(filtered, d)
	}
	return filtered
}

// dailyCounts は日付不明を除いたディールを日次バケットへ集計し、
// 日付昇順のキーと件数を返す。
func dailyCounts(deals []*model.Deal) ([]string, []int) {
	counts := make(map[string]int)
	for _, d := range deals {
		if d.DateCreateAt == nil {
			continue
		}
		counts[d.DateCreateAt.Format(dateKeyLayout)]++
	}

	dates := make([]string, 0, len(counts))
	for date := range counts {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	ordered := make([]int, len(dates))
	for i, date := range dates {
		ordered[i] = counts[date]
	}
	return dates, ordered
}

// sortedKeys はマップのキーを昇順で返す。
func sortedKeys[V any](m map[string]*V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// round1 は小数第1位へ丸める。
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// round2 は小数第2位へ丸める。
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
