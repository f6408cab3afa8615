package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dealscope/internal/bitrix"
	"github.com/hitoshi/dealscope/internal/cache"
	"github.com/hitoshi/dealscope/internal/metrics"
	"github.com/hitoshi/dealscope/internal/model"
	"github.com/hitoshi/dealscope/internal/repository"
)

// RemoteClient はリモートCRM呼び出しのインターフェースを定義する。
type RemoteClient interface {
	// GetProfile はWebhook所有者のプロフィールを取得する。
	GetProfile(ctx context.Context) (bitrix.RawRecord, error)
	// ListDeals は案件の一覧を取得する。
	ListDeals(ctx context.Context) ([]bitrix.RawRecord, error)
}

// Orchestrator は同期パイプライン全体を統括する。
// 取得 → 正規化 → アップサートの順で実行し、成功時に
// 集計キャッシュを無効化する。同時実行は直列化される。
type Orchestrator struct {
	client     RemoteClient
	normalizer *Normalizer
	managers   repository.ManagerRepository
	deals      repository.DealRepository
	cache      cache.Cache
	collector  metrics.MetricsCollector
	logger     *slog.Logger
	policy     model.SyncPolicy

	// mu は同期実行を直列化する。HTTPトリガーと定期実行が
	// 重なっても同一レコードへの書き込みが競合しないようにする。
	mu stdsync.Mutex
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	client RemoteClient,
	normalizer *Normalizer,
	managers repository.ManagerRepository,
	deals repository.DealRepository,
	c cache.Cache,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	policy model.SyncPolicy,
) *Orchestrator {
	return &Orchestrator{
		client:     client,
		normalizer: normalizer,
		managers:   managers,
		deals:      deals,
		cache:      c,
		collector:  collector,
		logger:     logger,
		policy:     policy,
	}
}

// Run は1回の同期を実行する。
//
// failfastポリシーでは全レコードの正規化が完了してから書き込みを
// 開始するため、1件でも正規化に失敗した場合はデータベースに
// 一切書き込まれない。besteffortポリシーでは失敗レコードを
// スキップして続行し、結果に失敗の詳細を含める。
//
// 取得失敗（FetchError）はポリシーに関係なく書き込みなしで中断する。
func (o *Orchestrator) Run(ctx context.Context) (*model.SyncResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := &model.SyncResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Policy:    o.policy,
	}

	o.logger.Info("starting sync run",
		slog.String("run_id", result.RunID),
		slog.String("policy", string(o.policy)),
	)

	// 取得フェーズ
	rawProfile, err := o.client.GetProfile(ctx)
	if err != nil {
		return o.fail(result, "fetch", err)
	}
	rawDeals, err := o.client.ListDeals(ctx)
	if err != nil {
		return o.fail(result, "fetch", err)
	}
	result.Fetched = 1 + len(rawDeals)

	// 正規化フェーズ: 書き込み前に全レコードを変換する
	manager, err := o.normalizer.NormalizeManager(rawProfile)
	if err != nil {
		if ne, ok := model.AsNormalizationError(err); ok {
			result.Errors = append(result.Errors, recordError(ne))
		}
		if o.policy == model.SyncPolicyFailFast {
			return o.fail(result, "normalize", err)
		}
		result.Skipped++
	}

	normalized := make([]*model.Deal, 0, len(rawDeals))
	for _, raw := range rawDeals {
		deal, err := o.normalizer.NormalizeDeal(raw)
		if err != nil {
			if ne, ok := model.AsNormalizationError(err); ok {
				result.Errors = append(result.Errors, recordError(ne))
			}
			if o.policy == model.SyncPolicyFailFast {
				return o.fail(result, "normalize", err)
			}
			result.Skipped++
			continue
		}
		normalized = append(normalized, deal)
	}

	// 書き込みフェーズ
	if manager != nil {
		if err := o.managers.Upsert(ctx, manager); err != nil {
			return o.fail(result, "storage", err)
		}
		result.Written++
	}
	for _, deal := range normalized {
		if err := o.deals.Upsert(ctx, deal); err != nil {
			return o.fail(result, "storage", err)
		}
		result.Written++
	}

	// 同期成功: 集計キャッシュを無効化する
	if err := o.cache.Clear(ctx); err != nil {
		// キャッシュ無効化の失敗は同期自体を失敗にしない。
		// TTLで自然に失効するまで古い集計が返る可能性がある。
		o.logger.Warn("failed to clear analytics cache",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()),
		)
	}

	result.FinishedAt = time.Now()
	o.collector.RecordSyncSuccess()
	o.collector.RecordRecordsUpserted(result.Written)
	o.collector.RecordRecordsSkipped(result.Skipped)

	o.logger.Info("sync run completed",
		slog.String("run_id", result.RunID),
		slog.Int("fetched", result.Fetched),
		slog.Int("written", result.Written),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// fail は失敗した同期実行を記録して結果とエラーを返す。
func (o *Orchestrator) fail(result *model.SyncResult, reason string, err error) (*model.SyncResult, error) {
	result.FinishedAt = time.Now()
	o.collector.RecordSyncFailure(reason)
	o.logger.Error("sync run failed",
		slog.String("run_id", result.RunID),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	return result, fmt.Errorf("同期に失敗しました (run_id: %s): %w", result.RunID, err)
}

// recordError はNormalizationErrorを結果レポート用の形式へ変換する。
func recordError(ne *model.NormalizationError) model.RecordError {
	return model.RecordError{
		Entity: ne.Entity,
		Field:  ne.Field,
		Value:  ne.Value,
		Reason: ne.Reason,
	}
}
