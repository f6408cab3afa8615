package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/dealscope/internal/metrics"
	"github.com/hitoshi/dealscope/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	AnalyticsService AnalyticsServiceInterface
	SyncRunner       SyncRunner
	RemoteReader     RemoteReader
	ManagerLister    ManagerLister
	ReportGenerator  ReportGenerator

	// 運用
	DB       Pinger
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// /healthと/metricsはレート制限の外に配置する（監視系からの定期アクセスを妨げない）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsService)
	syncHandler := NewSyncHandler(deps.SyncRunner)
	facadeHandler := NewFacadeHandler(deps.RemoteReader)
	managerHandler := NewManagerHandler(deps.ManagerLister)
	reportHandler := NewReportHandler(deps.ReportGenerator)
	healthHandler := NewHealthHandler(deps.DB)

	// --- 運用ルート（レート制限の外） ---
	r.Get("/health", healthHandler.Check)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- APIルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// リモートCRMのファサード
		r.Get("/api/profile", facadeHandler.Profile)
		r.Get("/api/deals", facadeHandler.Deals)

		// 同期トリガー（リモート呼び出しを伴うため専用レート制限を追加）
		r.With(deps.RateLimiter.SyncTriggerMiddleware()).Post("/api/sync", syncHandler.Trigger)

		// 集計ビュー
		r.Route("/api/analytics", func(r chi.Router) {
			r.Get("/summary", analyticsHandler.Summary)
			r.Get("/forecast", analyticsHandler.Forecast)
			r.Get("/managers/{id}", analyticsHandler.ManagerView)
		})

		// マネージャー一覧
		r.Get("/api/managers", managerHandler.List)

		// PDFレポート
		r.Get("/api/reports/summary.pdf", reportHandler.SummaryPDF)
	})

	return r
}
