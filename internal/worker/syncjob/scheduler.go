// Package syncjob はCRM同期の定期実行を提供する。
// ティッカー駆動で同期を実行し、実行後にフォアキャストの
// 異常チェックと通知を行う。
package syncjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/dealscope/internal/analytics"
	"github.com/hitoshi/dealscope/internal/model"
	"github.com/hitoshi/dealscope/internal/notify"
)

// SyncRunner は同期実行のインターフェース。
type SyncRunner interface {
	// Run は1回の同期を実行する。
	Run(ctx context.Context) (*model.SyncResult, error)
}

// ForecastSource は異常チェックに使うフォアキャストの取得インターフェース。
type ForecastSource interface {
	Forecast(ctx context.Context) (*analytics.ForecastSeries, error)
}

// Scheduler はCRM同期の定期実行を行う。
// 同期の直列化はオーケストレータ側のロックが保証するため、
// HTTPトリガーと重なっても二重書き込みは起きない。
type Scheduler struct {
	runner   SyncRunner
	forecast ForecastSource
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(
	runner SyncRunner,
	forecast ForecastSource,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		runner:   runner,
		forecast: forecast,
		notifier: notifier,
		logger:   logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は同期を1回実行し、成功時にフォアキャストの異常チェックを行う。
// 同期失敗は次のティックで再試行されるため、エラーはログに記録するのみ。
func (s *Scheduler) RunOnce(ctx context.Context) {
	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("定期同期に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("定期同期が完了しました",
		slog.String("run_id", result.RunID),
		slog.Int("written", result.Written),
		slog.Int("skipped", result.Skipped),
	)

	s.checkAnomaly(ctx)
}

// checkAnomaly は最新のフォアキャストを確認し、異常時に通知を送信する。
func (s *Scheduler) checkAnomaly(ctx context.Context) {
	series, err := s.forecast.Forecast(ctx)
	if err != nil {
		s.logger.Error("フォアキャストの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	if !series.Anomaly {
		return
	}

	last := series.Points[len(series.Points)-1]
	text := fmt.Sprintf(
		"⚠️ Активность сегодня ниже прогноза. Возможен спад!\n%s: сделок %d, прогноз %.2f",
		last.Date, last.Count, last.Forecast,
	)

	if err := s.notifier.Send(ctx, text); err != nil {
		s.logger.Error("異常通知の送信に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Warn("activity anomaly detected",
		slog.String("date", last.Date),
		slog.Int("actual", last.Count),
		slog.Float64("forecast", last.Forecast),
	)
}
