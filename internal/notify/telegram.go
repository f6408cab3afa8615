// Package notify は運用者向けの通知送信を提供する。
// 現在のチャネルはTelegramのみで、フォアキャストの異常検出時に使用される。
package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier は通知送信のインターフェースを定義する。
type Notifier interface {
	// Send はテキスト通知を送信する。
	Send(ctx context.Context, text string) error
}

// TelegramNotifier はNotifierのTelegram実装。
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier はTelegram Bot APIへ接続してTelegramNotifierを生成する。
// トークン検証（getMe）に失敗した場合はエラーを返す。
func NewTelegramNotifier(token string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("Telegram Botの初期化に失敗しました: %w", err)
	}

	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}, nil
}

// Send はテキスト通知を送信する。
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("failed to send telegram notification",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("Telegram通知の送信に失敗しました: %w", err)
	}

	n.logger.Info("telegram notification sent",
		slog.Int64("chat_id", n.chatID),
	)
	return nil
}

// NoopNotifier は通知を送信しないNotifier実装。
// トークン未設定の環境（開発、テスト）で使用される。
type NoopNotifier struct{}

// Send は何もせずに成功を返す。
func (n *NoopNotifier) Send(ctx context.Context, text string) error { return nil }

// compile-time interface checks
var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*NoopNotifier)(nil)
)
