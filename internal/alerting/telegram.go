// Package alerting provides the alert channel collaborator: a Telegram
// implementation for live deployments and an in-memory one for tests and
// disabled configurations.
package alerting

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"arbagent/internal/models"
)

const historyCap = 100

// TelegramAlerter sends alerts through the Telegram Bot API.
type TelegramAlerter struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	limiter        *rate.Limiter

	mu      sync.Mutex
	history []models.AlertRecord
}

// NewTelegramAlerter creates a Telegram alerter. perMinute caps the send
// rate so alert bursts stay inside the Bot API limits.
func NewTelegramAlerter(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, perMinute int) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if perMinute <= 0 {
		perMinute = 20
	}

	return &TelegramAlerter{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}, nil
}

// Name implements the integration lifecycle contract.
func (a *TelegramAlerter) Name() string { return "alerter" }

// Initialize verifies the bot identity is reachable.
func (a *TelegramAlerter) Initialize(ctx context.Context) error {
	if _, err := a.bot.GetMe(); err != nil {
		return fmt.Errorf("telegram bot unreachable: %w", err)
	}
	return nil
}

// HealthCheck reports whether the bot API responds.
func (a *TelegramAlerter) HealthCheck(ctx context.Context) error {
	_, err := a.bot.GetMe()
	return err
}

// Shutdown stops any update polling.
func (a *TelegramAlerter) Shutdown(ctx context.Context) error {
	a.bot.StopReceivingUpdates()
	return nil
}

// SendAlert delivers an alert message and records it in history.
func (a *TelegramAlerter) SendAlert(ctx context.Context, message, severity, opportunityID string) (models.AlertRecord, error) {
	rec := models.AlertRecord{
		ID:            uuid.New().String(),
		Message:       message,
		Severity:      severity,
		OpportunityID: opportunityID,
		SentAt:        time.Now(),
	}

	err := a.deliver(ctx, message, severity)
	rec.Delivered = err == nil
	a.record(rec)
	if err != nil {
		return rec, err
	}
	return rec, nil
}

func (a *TelegramAlerter) deliver(ctx context.Context, message, severity string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	text := fmt.Sprintf("🚨 *%s*\n%s", escapeMarkdownV2(strings.ToUpper(severity)), escapeMarkdownV2(message))
	msg := tgbotapi.NewMessage(a.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < a.maxRetries; i++ {
		if _, err := a.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", a.maxRetries, lastErr)
}

func (a *TelegramAlerter) record(rec models.AlertRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, rec)
	if len(a.history) > historyCap {
		a.history = a.history[len(a.history)-historyCap:]
	}
}

// History returns sent alerts, most recent first.
func (a *TelegramAlerter) History(limit int) []models.AlertRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return reversedTail(a.history, limit)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

func reversedTail(records []models.AlertRecord, limit int) []models.AlertRecord {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	out := make([]models.AlertRecord, 0, limit)
	for i := len(records) - 1; i >= len(records)-limit; i-- {
		out = append(out, records[i])
	}
	return out
}
