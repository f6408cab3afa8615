// Package bitrix はBitrix24系CRMのWebhook APIクライアントを提供する。
// プロフィール取得と案件一覧取得の2つのエンドポイントを呼び出す。
package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/dealscope/internal/metrics"
	"github.com/hitoshi/dealscope/internal/model"
)

const (
	// profileEndpoint はプロフィール取得エンドポイントのパス。
	profileEndpoint = "profile.json"
	// dealListEndpoint は案件一覧取得エンドポイントのパス。
	dealListEndpoint = "crm.deal.list.json"
	// defaultMaxResponseSize はレスポンスボディサイズ上限の既定値（5MiB）。
	defaultMaxResponseSize = 5 * 1024 * 1024
)

// RawRecord はCRMから返される1レコードの生データ。
// リモート側のフィールド型は安定しないため、正規化層で型を確定させる。
type RawRecord map[string]any

// Client はCRM Webhook APIのクライアント。
// ベースURLは運用者が設定するWebhook URLで、SSRF防止済みの
// HTTPクライアントを通じてアクセスする。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	collector  metrics.MetricsCollector
	limiter    *rate.Limiter
	baseURL    string
	maxSize    int64
}

// NewClient はClientの新しいインスタンスを生成する。
// リモートCRMのAPIレート制限（毎秒2リクエスト程度）を尊重するため、
// クライアント側でもレートリミッタを持つ。
// maxSizeはレスポンスボディの許容バイト数で、0以下の場合は既定値を使う。
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector, maxSize int64) *Client {
	if maxSize <= 0 {
		maxSize = defaultMaxResponseSize
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		collector:  collector,
		limiter:    rate.NewLimiter(rate.Limit(2), 2),
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxSize:    maxSize,
	}
}

// GetProfile はWebhook所有者のプロフィールを取得する。
func (c *Client) GetProfile(ctx context.Context) (RawRecord, error) {
	body, err := c.get(ctx, profileEndpoint)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result RawRecord `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &model.FetchError{
			Endpoint: profileEndpoint,
			Err:      fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err),
		}
	}
	if payload.Result == nil {
		return nil, &model.FetchError{
			Endpoint: profileEndpoint,
			Err:      fmt.Errorf("レスポンスにresultフィールドがありません"),
		}
	}

	return payload.Result, nil
}

// ListDeals は案件の一覧を取得する。
// レスポンスのresult配列をそのまま生レコードのスライスとして返す。
func (c *Client) ListDeals(ctx context.Context) ([]RawRecord, error) {
	body, err := c.get(ctx, dealListEndpoint)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result []RawRecord `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &model.FetchError{
			Endpoint: dealListEndpoint,
			Err:      fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err),
		}
	}
	if payload.Result == nil {
		return nil, &model.FetchError{
			Endpoint: dealListEndpoint,
			Err:      fmt.Errorf("レスポンスにresultフィールドがありません"),
		}
	}

	return payload.Result, nil
}

// get はレート制限を待ってからGETリクエストを実行し、ボディを返す。
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.FetchError{Endpoint: endpoint, Err: err}
	}

	reqURL := c.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &model.FetchError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err),
		}
	}
	req.Header.Set("User-Agent", "Dealscope/1.0 CRM Sync")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.collector.RecordRemoteLatency(time.Since(start))
	if err != nil {
		c.logger.Error("CRM APIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, &model.FetchError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	c.collector.RecordRemoteHTTPStatus(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("CRM APIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &model.FetchError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("CRM APIがステータス %d を返しました", resp.StatusCode),
		}
	}

	// 上限+1バイトで読み取りを打ち切り、超過をサイズで判定する
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, &model.FetchError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err),
		}
	}
	if int64(len(body)) > c.maxSize {
		c.logger.Error("CRM APIのレスポンスがサイズ上限を超えました",
			slog.String("endpoint", endpoint),
			slog.Int64("max_size", c.maxSize),
		)
		return nil, &model.FetchError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("レスポンスボディがサイズ上限 %d バイトを超えました", c.maxSize),
		}
	}

	return body, nil
}
