package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification 封装一条套利机会告警。
type Notification struct {
	CardName        string
	SetName         string
	Rarity          string
	BuyMarketplace  string
	BuyPrice        decimal.Decimal
	SellMarketplace string
	SellPrice       decimal.Decimal
	NetProfit       decimal.Decimal
	ProfitPct       decimal.Decimal
	Score           float64
	Rationale       string
	ExpiresAt       time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("card", note.CardName).
		Str("buy", note.BuyMarketplace).
		Str("sell", note.SellMarketplace).
		Float64("score", note.Score).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Card Arbitrage Alert]\n")
	builder.WriteString(fmt.Sprintf("Card: %s", note.CardName))
	if note.SetName != "" {
		builder.WriteString(fmt.Sprintf(" (%s)", note.SetName))
	}
	builder.WriteString("\n")
	if note.Rarity != "" {
		builder.WriteString(fmt.Sprintf("Rarity: %s\n", note.Rarity))
	}
	builder.WriteString(fmt.Sprintf("Buy: %s @ $%s\n", note.BuyMarketplace, note.BuyPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Sell: %s @ $%s\n", note.SellMarketplace, note.SellPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Net profit: $%s (%s%%)\n", note.NetProfit.StringFixed(2), note.ProfitPct.Mul(decimal.NewFromInt(100)).StringFixed(1)))
	builder.WriteString(fmt.Sprintf("Score: %.1f/10\n", note.Score))
	if note.Rationale != "" {
		builder.WriteString(note.Rationale + "\n")
	}
	if !note.ExpiresAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Expires: %s UTC\n", note.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
