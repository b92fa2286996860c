// Package notify fans approval lifecycle events out to desktop
// notifications, Telegram and a JSON webhook. Delivery is best effort:
// failures are logged and never block the approval flow.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
	"github.com/gen2brain/beeep"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EventType represents a notification event type.
type EventType string

const (
	EventPending  EventType = "approval_pending"
	EventWarning  EventType = "approval_warning"
	EventResolved EventType = "approval_resolved"
	EventExpired  EventType = "approval_expired"
)

// Event describes a notification event.
type Event struct {
	Type      EventType
	RequestID string
	Tool      string
	Title     string
	Message   string
	Timestamp time.Time
}

// PendingEvent builds the event for a newly surfaced request.
func PendingEvent(req approval.Request) Event {
	return Event{
		Type:      EventPending,
		RequestID: req.ID,
		Tool:      req.ToolName,
		Title:     req.DisplayTitle(),
		Message:   req.DisplayDescription(),
	}
}

// WarningEvent builds the event for a request entering the warning phase.
func WarningEvent(req approval.Request, remaining time.Duration) Event {
	return Event{
		Type:      EventWarning,
		RequestID: req.ID,
		Tool:      req.ToolName,
		Title:     req.DisplayTitle(),
		Message:   fmt.Sprintf("Approval expires in %s", remaining.Round(time.Second)),
	}
}

// ResolvedEvent builds the event for a terminal decision.
func ResolvedEvent(req approval.Request, decision approval.Decision) Event {
	eventType := EventResolved
	message := fmt.Sprintf("Decision: %s", decision.Kind)
	if decision.Kind == approval.DecisionAutoExpired {
		eventType = EventExpired
		message = "Request expired without a decision"
	}
	return Event{
		Type:      eventType,
		RequestID: req.ID,
		Tool:      req.ToolName,
		Title:     req.DisplayTitle(),
		Message:   message,
	}
}

// TelegramConfig holds Telegram bot delivery settings.
type TelegramConfig struct {
	Enabled bool
	Token   string
	ChatID  int64
}

// Config selects notification channels.
type Config struct {
	Desktop    bool
	WebhookURL string
	Telegram   TelegramConfig
}

// Dispatcher sends notifications to configured channels.
type Dispatcher struct {
	cfg    Config
	client *http.Client

	botMu sync.Mutex
	bot   *tgbotapi.BotAPI
}

// NewDispatcher creates a Dispatcher with sensible defaults.
func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Notify delivers the event to every enabled channel.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	title := strings.TrimSpace(event.Title)
	if title == "" {
		title = "CodingBridge"
	}
	message := strings.TrimSpace(event.Message)
	if message == "" {
		message = string(event.Type)
	}
	if len(message) > 800 {
		message = message[:800] + "..."
	}

	if d.cfg.Desktop {
		if err := beeep.Notify(title, message, ""); err != nil {
			slog.Debug("desktop notification failed", "error", err)
		}
	}

	if d.cfg.WebhookURL != "" {
		if err := d.postWebhook(ctx, event, title, message); err != nil {
			slog.Warn("webhook notification failed", "request_id", event.RequestID, "error", err)
		}
	}

	if d.cfg.Telegram.Enabled {
		if err := d.sendTelegram(title, message); err != nil {
			slog.Warn("telegram notification failed", "request_id", event.RequestID, "error", err)
		}
	}
}

func (d *Dispatcher) postWebhook(ctx context.Context, event Event, title, message string) error {
	payload := map[string]any{
		"event":      event.Type,
		"request_id": event.RequestID,
		"tool":       event.Tool,
		"title":      title,
		"message":    message,
		"timestamp":  event.Timestamp.Unix(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) sendTelegram(title, message string) error {
	bot, err := d.telegramBot()
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(d.cfg.Telegram.ChatID, title+"\n"+message)
	_, err = bot.Send(msg)
	return err
}

func (d *Dispatcher) telegramBot() (*tgbotapi.BotAPI, error) {
	d.botMu.Lock()
	defer d.botMu.Unlock()

	if d.bot != nil {
		return d.bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(d.cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	d.bot = bot
	return bot, nil
}
