package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/dealscope/internal/cache"
	"github.com/hitoshi/dealscope/internal/model"
	"github.com/hitoshi/dealscope/internal/repository"
)

// ErrManagerNotFound は指定IDのマネージャーが存在しない場合に返される。
var ErrManagerNotFound = errors.New("マネージャーが見つかりません")

// SummaryResult は全体サマリービューの出力契約。
type SummaryResult struct {
	Metrics Metrics      `json:"metrics"`
	Trend   []TrendPoint `json:"trend"`
	// RangeFallback は選択範囲にディールが1件もなく、
	// 全期間のデータへフォールバックした場合にtrue。
	RangeFallback bool `json:"range_fallback"`
}

// ManagerResult はマネージャー別ビューの出力契約。
type ManagerResult struct {
	Manager       ManagerInfo       `json:"manager"`
	Metrics       Metrics           `json:"metrics"`
	Trend         []TrendPoint      `json:"trend"`
	Conversion    []ConversionPoint `json:"conversion"`
	RangeFallback bool              `json:"range_fallback"`
}

// ManagerInfo はビューに含めるマネージャーの基本情報。
type ManagerInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	IsAdmin  bool   `json:"is_admin"`
}

// Service は集計ビューの問い合わせ窓口。
// リポジトリへのクエリ、空範囲フォールバック、クエリパラメータを
// キーとするキャッシュを担い、計算そのものはエンジンの純粋関数に委ねる。
type Service struct {
	deals    repository.DealRepository
	managers repository.ManagerRepository
	cache    cache.Cache
	logger   *slog.Logger
	cacheTTL time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	deals repository.DealRepository,
	managers repository.ManagerRepository,
	c cache.Cache,
	logger *slog.Logger,
	cacheTTL time.Duration,
) *Service {
	return &Service{
		deals:    deals,
		managers: managers,
		cache:    c,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Summary は全体サマリー（ポイントメトリクス + 日次トレンド）を返す。
//
// fromとtoは日付（その日の0時）で、範囲は両端を含む。
// 選択範囲にディールが1件もない場合は全期間のデータへ
// フォールバックし、RangeFallbackフラグで通知する。
func (s *Service) Summary(ctx context.Context, from, to *time.Time, managerID *int64) (*SummaryResult, error) {
	key := fmt.Sprintf("summary:%s:%s:%s", dateParam(from), dateParam(to), idParam(managerID))
	if cached, ok := s.fromCache(ctx, key); ok {
		var result SummaryResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}

	deals, fallback, err := s.queryWithFallback(ctx, from, to, managerID)
	if err != nil {
		return nil, err
	}

	result := &SummaryResult{
		Metrics:       ComputeMetrics(deals),
		Trend:         ComputeTrend(deals),
		RangeFallback: fallback,
	}

	s.toCache(ctx, key, result)
	return result, nil
}

// Forecast は全履歴に対するフォアキャスト系列と異常フラグを返す。
// 日付範囲では絞り込まない（既知の全履歴に対して計算する）。
func (s *Service) Forecast(ctx context.Context) (*ForecastSeries, error) {
	const key = "forecast"
	if cached, ok := s.fromCache(ctx, key); ok {
		var result ForecastSeries
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}

	deals, err := s.deals.List(ctx, repository.DealFilter{})
	if err != nil {
		return nil, err
	}

	result := ComputeForecast(deals)
	s.toCache(ctx, key, &result)
	return &result, nil
}

// ManagerView は指定マネージャーに絞った集計
// （メトリクス + トレンド + 日次成約率系列）を返す。
// マネージャーが未同期の場合はErrManagerNotFoundを返す。
func (s *Service) ManagerView(ctx context.Context, managerID int64, from, to *time.Time) (*ManagerResult, error) {
	manager, err := s.managers.FindByID(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if manager == nil {
		return nil, ErrManagerNotFound
	}

	key := fmt.Sprintf("manager:%d:%s:%s", managerID, dateParam(from), dateParam(to))
	if cached, ok := s.fromCache(ctx, key); ok {
		var result ManagerResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}

	deals, fallback, err := s.queryWithFallback(ctx, from, to, &managerID)
	if err != nil {
		return nil, err
	}

	result := &ManagerResult{
		Manager: ManagerInfo{
			ID:       manager.ID,
			Name:     manager.Name,
			LastName: manager.LastName,
			IsAdmin:  manager.IsAdmin,
		},
		Metrics:       ComputeMetrics(deals),
		Trend:         ComputeTrend(deals),
		Conversion:    ComputeConversionSeries(deals),
		RangeFallback: fallback,
	}

	s.toCache(ctx, key, result)
	return result, nil
}

// queryWithFallback は日付範囲付きでディールを取得し、結果が空の場合は
// 日付条件を外して再取得する。2番目の戻り値はフォールバックの発生を示す。
func (s *Service) queryWithFallback(ctx context.Context, from, to *time.Time, managerID *int64) ([]*model.Deal, bool, error) {
	filter := repository.DealFilter{AssignedByID: managerID}
	if from != nil {
		filter.CreatedFrom = from
	}
	if to != nil {
		// 終了日を含めるため、排他的上限として翌日0時を渡す
		until := to.AddDate(0, 0, 1)
		filter.CreatedUntil = &until
	}

	deals, err := s.deals.List(ctx, filter)
	if err != nil {
		return nil, false, err
	}

	hasRange := from != nil || to != nil
	if len(deals) > 0 || !hasRange {
		return deals, false, nil
	}

	// 空範囲フォールバック: 日付条件だけを外して再取得する
	deals, err = s.deals.List(ctx, repository.DealFilter{AssignedByID: managerID})
	if err != nil {
		return nil, false, err
	}
	return deals, true, nil
}

// fromCache はキャッシュからの取得を試みる。ヒットした場合はtrueを返す。
func (s *Service) fromCache(ctx context.Context, key string) ([]byte, bool) {
	value, err := s.cache.Get(ctx, key)
	if err != nil {
		if err != cache.ErrCacheMiss {
			s.logger.Warn("analytics cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	return value, true
}

// toCache は計算結果をキャッシュへ保存する。失敗してもビューは返す。
func (s *Service) toCache(ctx context.Context, key string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, encoded, s.cacheTTL); err != nil {
		s.logger.Warn("analytics cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// dateParam はキャッシュキー用の日付表現を返す。
func dateParam(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateKeyLayout)
}

// idParam はキャッシュキー用のID表現を返す。
func idParam(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}
