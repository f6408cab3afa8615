package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/dealscope/internal/analytics"
	"github.com/hitoshi/dealscope/internal/bitrix"
	"github.com/hitoshi/dealscope/internal/cache"
	"github.com/hitoshi/dealscope/internal/config"
	"github.com/hitoshi/dealscope/internal/database"
	"github.com/hitoshi/dealscope/internal/handler"
	"github.com/hitoshi/dealscope/internal/logger"
	"github.com/hitoshi/dealscope/internal/metrics"
	"github.com/hitoshi/dealscope/internal/middleware"
	"github.com/hitoshi/dealscope/internal/notify"
	"github.com/hitoshi/dealscope/internal/report"
	"github.com/hitoshi/dealscope/internal/repository"
	"github.com/hitoshi/dealscope/internal/security"
	syncpkg "github.com/hitoshi/dealscope/internal/sync"
	"github.com/hitoshi/dealscope/internal/worker/syncjob"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再セットアップする
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("sync_policy", string(cfg.SyncPolicy)),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSync:
		return runSync(cfg)
	default:
		return runServe(cfg)
	}
}

// pipeline は同期と集計に関わる依存一式。
// serve / worker / sync の各モードで同じワイヤリングを共有する。
type pipeline struct {
	registry     *prometheus.Registry
	remote       *bitrix.Client
	cache        cache.Cache
	managers     repository.ManagerRepository
	orchestrator *syncpkg.Orchestrator
	analytics    *analytics.Service
}

// close はキャッシュ実装が保持する接続・バックグラウンドゴルーチンを解放する。
func (p *pipeline) close() {
	if closer, ok := p.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("failed to close cache", slog.String("error", err.Error()))
		}
	}
}

// buildPipeline はリモートクライアントから集計サービスまでの依存関係を構築する。
func buildPipeline(cfg *config.Config, db *sql.DB) (*pipeline, error) {
	// 1. リモートCRMクライアント（SSRF防止付きHTTPクライアント）
	ssrfGuard := security.NewSSRFGuard()
	if err := ssrfGuard.ValidateURL(cfg.BitrixWebhookBase); err != nil {
		return nil, fmt.Errorf("invalid BITRIX_WEBHOOK_BASE: %w", err)
	}
	httpClient := ssrfGuard.NewSafeClient(cfg.SyncTimeout)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	remote := bitrix.NewClient(cfg.BitrixWebhookBase, httpClient, slog.Default(), collector, cfg.SyncMaxSize)

	// 2. リポジトリ
	managerRepo := repository.NewPostgresManagerRepo(db)
	dealRepo := repository.NewPostgresDealRepo(db)

	// 3. キャッシュ（REDIS_ADDR未設定時はインメモリ）
	c, err := newCache(cfg)
	if err != nil {
		return nil, err
	}

	// 4. 同期オーケストレータ
	sanitizer := security.NewTextSanitizer()
	normalizer := syncpkg.NewNormalizer(sanitizer)
	orchestrator := syncpkg.NewOrchestrator(
		remote, normalizer, managerRepo, dealRepo,
		c, collector, slog.Default(), cfg.SyncPolicy,
	)

	// 5. 集計サービス
	analyticsSvc := analytics.NewService(dealRepo, managerRepo, c, slog.Default(), cfg.CacheTTL)

	return &pipeline{
		registry:     registry,
		remote:       remote,
		cache:        c,
		managers:     managerRepo,
		orchestrator: orchestrator,
		analytics:    analyticsSvc,
	}, nil
}

// newCache は設定に応じたCache実装を生成する。
func newCache(cfg *config.Config) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		slog.Info("using in-memory cache")
		return cache.NewMemoryCache(), nil
	}

	c, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
	}

	slog.Info("using redis cache", slog.String("addr", cfg.RedisAddr))
	return c, nil
}

// newNotifier は設定に応じたNotifier実装を生成する。
// Telegramトークン未設定の場合は何もしないNotifierを返す。
func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.TelegramBotToken == "" {
		slog.Info("telegram notifications disabled (no token)")
		return &notify.NoopNotifier{}, nil
	}

	n, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
	}
	return n, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 同期・集計パイプラインの構築
	p, err := buildPipeline(cfg, db)
	if err != nil {
		return err
	}
	defer p.close()

	// 3. PDFレポートサービス
	reportSvc := report.NewService(p.analytics)

	// 4. レート制限（configのreq/min単位をreq/secに変換）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitSync > 0 {
		rateLimiterCfg.SyncRate = rate.Limit(float64(cfg.RateLimitSync) / 60.0)
		rateLimiterCfg.SyncBurst = cfg.RateLimitSync
	}

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 5. ルーターの構築
	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AnalyticsService: p.analytics,
		SyncRunner:       p.orchestrator,
		RemoteReader:     p.remote,
		ManagerLister:    p.managers,
		ReportGenerator:  reportSvc,

		DB:       db,
		Gatherer: p.registry,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は定期同期ワーカーモードで起動する。
// DB接続を開き、同期スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 同期・集計パイプラインの構築
	p, err := buildPipeline(cfg, db)
	if err != nil {
		return err
	}
	defer p.close()

	// 3. 異常通知
	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}

	// 4. スケジューラの構築
	scheduler := syncjob.NewScheduler(p.orchestrator, p.analytics, notifier, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runSync はCRM同期を1回だけ実行して終了する。
// 初回データ投入やcronからの実行を想定した手動サブコマンド。
func runSync(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	p, err := buildPipeline(cfg, db)
	if err != nil {
		return err
	}
	defer p.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := p.orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	slog.Info("sync completed",
		slog.String("run_id", result.RunID),
		slog.Int("fetched", result.Fetched),
		slog.Int("written", result.Written),
		slog.Int("skipped", result.Skipped),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
