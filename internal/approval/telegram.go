package approval

import (
	"context"
	"fmt"
	"slices"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	callbackApprove = "approve:"
	callbackDeny    = "deny:"

	// maxSnippet keeps messages below Telegram's 4096 character limit.
	maxSnippet = 1500
)

// Decider resolves pending requests.
type Decider interface {
	Decide(ctx context.Context, requestID string, approved bool, by string) (Decision, error)
}

// botAPI is the part of tgbotapi.BotAPI the connector uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramConfig configures the Telegram connector.
type TelegramConfig struct {
	Token string

	// ChatID receives approval requests and results.
	ChatID int64

	// AllowFrom lists user IDs allowed to decide. Empty allows everyone in
	// the chat.
	AllowFrom []int64
}

// Telegram sends approval requests with inline approve/deny buttons and
// turns button presses into decisions.
type Telegram struct {
	bot     botAPI
	cfg     TelegramConfig
	decider Decider
	logger  *zap.Logger
}

var _ Notifier = (*Telegram)(nil)

// NewTelegram authorizes the bot token.
func NewTelegram(cfg TelegramConfig, decider Decider, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	t := newTelegram(bot, cfg, decider, logger)
	t.logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return t, nil
}

func newTelegram(bot botAPI, cfg TelegramConfig, decider Decider, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{bot: bot, cfg: cfg, decider: decider, logger: logger}
}

func (t *Telegram) Name() string { return "telegram" }

// NotifyRequest posts the request with approve and deny buttons.
func (t *Telegram) NotifyRequest(_ context.Context, req Request) error {
	msg := tgbotapi.NewMessage(t.cfg.ChatID, formatRequest(req))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", callbackApprove+req.ID),
			tgbotapi.NewInlineKeyboardButtonData("Deny", callbackDeny+req.ID),
		),
	)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send approval request: %w", err)
	}
	return nil
}

// NotifyResult posts the outcome of an approved operation.
func (t *Telegram) NotifyResult(_ context.Context, ticketID string, success bool, message string) error {
	status := "succeeded"
	if !success {
		status = "failed"
	}
	text := fmt.Sprintf("Ticket %s: remote operation %s\n%s", ticketID, status, truncate(message, maxSnippet))
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.cfg.ChatID, text)); err != nil {
		return fmt.Errorf("telegram: send result: %w", err)
	}
	return nil
}

// Start long-polls for callback queries until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"callback_query"}

	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info("telegram approval listener started")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.CallbackQuery != nil {
				t.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.logger.Info("telegram approval listener stopped")
			return ctx.Err()
		}
	}
}

func (t *Telegram) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil {
		return
	}
	if len(t.cfg.AllowFrom) > 0 && !slices.Contains(t.cfg.AllowFrom, q.From.ID) {
		t.logger.Warn("unauthorized approval attempt", zap.Int64("user_id", q.From.ID))
		t.answer(q.ID, "Not allowed")
		return
	}

	var approved bool
	var requestID string
	switch {
	case strings.HasPrefix(q.Data, callbackApprove):
		approved, requestID = true, strings.TrimPrefix(q.Data, callbackApprove)
	case strings.HasPrefix(q.Data, callbackDeny):
		requestID = strings.TrimPrefix(q.Data, callbackDeny)
	default:
		t.answer(q.ID, "Unknown action")
		return
	}

	by := "telegram:" + q.From.UserName
	if q.From.UserName == "" {
		by = fmt.Sprintf("telegram:%d", q.From.ID)
	}

	if _, err := t.decider.Decide(ctx, requestID, approved, by); err != nil {
		t.logger.Warn("telegram decision rejected", zap.String("request_id", requestID), zap.Error(err))
		t.answer(q.ID, "Request is no longer pending")
		return
	}

	verdict := "Denied"
	if approved {
		verdict = "Approved"
	}
	t.answer(q.ID, verdict)

	if q.Message != nil && q.Message.Chat != nil {
		edit := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID,
			q.Message.Text+"\n\n"+verdict+" by "+by)
		if _, err := t.bot.Send(edit); err != nil {
			t.logger.Debug("editing approval message failed", zap.Error(err))
		}
	}
}

func (t *Telegram) answer(callbackID, text string) {
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		t.logger.Debug("answering callback failed", zap.Error(err))
	}
}

func formatRequest(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval required\n\nTicket: %s\nOperation: %s\n", req.TicketID, req.InstructionType)
	if req.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", req.Description)
	}
	if req.Command != "" {
		fmt.Fprintf(&b, "Command: %s\n", req.Command)
	}
	if req.PolicyName != "" {
		fmt.Fprintf(&b, "Policy: %s\n", req.PolicyName)
	}
	if req.SQL != "" {
		fmt.Fprintf(&b, "SQL:\n%s\n", truncate(req.SQL, maxSnippet))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
