package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"plus-ev-alerts/internal/odds"
)

// Notification is one newly recommended opportunity.
type Notification struct {
	Opportunity odds.Opportunity
	// Location renders the start time; nil means UTC.
	Location *time.Location
}

// Notifier delivers notifications to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
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

// Name implements Notifier.
func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
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
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram: ok=false: %s", result.Description)
	}

	n.logger.Info().Str("opportunity_id", note.Opportunity.ID).Msg("alert sent")
	return nil
}

// DiscordNotifier posts messages to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs a Discord webhook notifier.
func NewDiscordNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Name implements Notifier.
func (d *DiscordNotifier) Name() string { return "discord" }

// Notify posts the rendered text as webhook content.
func (d *DiscordNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.Marshal(map[string]string{"content": RenderMessage(note)})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	d.logger.Info().Str("opportunity_id", note.Opportunity.ID).Msg("alert sent")
	return nil
}

// RenderMessage formats one opportunity for a chat channel.
func RenderMessage(note Notification) string {
	o := note.Opportunity
	loc := note.Location
	if loc == nil {
		loc = time.UTC
	}

	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("%s %s\n", o.StartTime.In(loc).Format("01/02 03:04 PM MST"), o.Matchup()))
	b.WriteString(fmt.Sprintf("Bet on %s Moneyline with %s\n", o.Outcome, o.Sportsbook))
	b.WriteString(fmt.Sprintf("Current Odds: %s (%s).\n", decimal.NewFromFloat(o.DecimalOdds).StringFixed(2), FormatAmerican(o.DecimalOdds)))
	b.WriteString(fmt.Sprintf("The bet is good if the odds are at least %s (%s)\n", decimal.NewFromFloat(o.Thresh).StringFixed(2), FormatAmerican(o.Thresh)))
	b.WriteString(fmt.Sprintf("Expected value: %s per unit staked\n", decimal.NewFromFloat(o.ExpectedValue).StringFixed(3)))
	b.WriteString("Kelly criterion stake as a share of bankroll:\n")
	b.WriteString(fmt.Sprintf("Full Kelly: %s%%\n", percent(o.Kelly)))
	b.WriteString(fmt.Sprintf("Half Kelly: %s%%\n", percent(o.HalfKelly)))
	return b.String()
}

// FormatAmerican renders decimal odds as signed American odds.
func FormatAmerican(decimalOdds float64) string {
	american := odds.DecimalToAmerican(decimalOdds)
	if american > 0 {
		return fmt.Sprintf("+%d", american)
	}
	return fmt.Sprintf("%d", american)
}

func percent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Shift(2).StringFixed(1)
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*DiscordNotifier)(nil)
)
