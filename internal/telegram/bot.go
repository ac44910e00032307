package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"macro-meal-engine/internal/chat"
	"macro-meal-engine/internal/config"
	"macro-meal-engine/internal/metrics"
	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Engine is the session the bot drives. *app.Engine implements it.
type Engine interface {
	Snapshot() session.State
	Subscribe(fn session.Subscriber) func()
	SetCalories(calories int) session.State
	SetExclusions(exclusions string) session.State
	Submit(ctx context.Context, message string) (chat.Result, error)
	Retry()
	Usage() *metrics.Store
	DataDir() string
}

// Sender sends messages to Telegram. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot is the Telegram surface of one engine. Only the configured user may
// talk to it; plan updates are pushed to that user's chat.
type Bot struct {
	api    Sender
	engine Engine
	cfg    *config.Config
	logger *slog.Logger

	mu     sync.Mutex
	chatID int64
	closed bool

	unsubscribe func()
	wg          sync.WaitGroup
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, engine Engine, logger *slog.Logger) (*Bot, error) {
	if err := cfg.RequireTelegram(); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Authorized on account", "username", api.Self.UserName)

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("Webhook set", "description", resp.Description)

	return newBot(api, cfg, engine, logger), nil
}

func newBot(api Sender, cfg *config.Config, engine Engine, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		api:    api,
		engine: engine,
		cfg:    cfg,
		logger: logger,
		// Pushes go to the allowed user's private chat until they write.
		chatID: cfg.TelegramAllowUserID,
	}
	b.unsubscribe = engine.Subscribe(b.observe)
	return b
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// Close stops pushing updates and waits for message handlers to finish.
func (b *Bot) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.unsubscribe()
	b.wg.Wait()
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warn("Error parsing update", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.allowed(msg.From.ID) {
		b.logger.Warn("Unauthorized access attempt", "user_id", msg.From.ID, "username", msg.From.UserName)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.chatID = msg.Chat.ID
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.processMessage(context.Background(), msg)
	}()
}

func (b *Bot) allowed(userID int64) bool {
	return userID != 0 && (userID == b.cfg.TelegramAllowUserID || userID == b.cfg.AdminTelegramID)
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.handleChat(ctx, msg)
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		b.sendMarkdown(msg.Chat.ID, helpText)
	case "calories":
		b.handleCalories(msg.Chat.ID, args)
	case "exclude":
		state := b.engine.SetExclusions(args)
		b.sendMarkdown(msg.Chat.ID, fmt.Sprintf("🚫 Exclusions: %s\n_Regenerating..._", exclusionsLabel(state.Params.Exclusions)))
	case "retry":
		b.engine.Retry()
		b.sendMarkdown(msg.Chat.ID, "🔄 _Regenerating with the current settings..._")
	case "plan", "status":
		b.sendMarkdown(msg.Chat.ID, formatSummary(b.engine.Snapshot()))
	case "breakfast", "lunch", "dinner":
		b.sendMarkdown(msg.Chat.ID, formatSlot(b.engine.Snapshot(), planner.MealSlot(msg.Command())))
	case "metrics":
		b.handleMetricsRequest(ctx, msg)
	default:
		b.sendMarkdown(msg.Chat.ID, "Unknown command.\n\n"+helpText)
	}
}

func (b *Bot) handleCalories(chatID int64, args string) {
	n, err := strconv.Atoi(args)
	if err != nil {
		b.sendMarkdown(chatID, fmt.Sprintf("Usage: /calories N (%d-%d)", planner.MinCalories, planner.MaxCalories))
		return
	}
	state := b.engine.SetCalories(n)
	b.sendMarkdown(chatID, fmt.Sprintf("🎯 Target: *%d kcal*\n_Regenerating..._", state.Params.Calories))
}

func (b *Bot) handleChat(ctx context.Context, msg *tgbotapi.Message) {
	res, err := b.engine.Submit(ctx, msg.Text)
	switch {
	case errors.Is(err, chat.ErrBusy):
		b.sendMarkdown(msg.Chat.ID, "⏳ Still working on your last message.")
	case errors.Is(err, chat.ErrEmptyMessage):
		return
	case err != nil:
		b.sendPlain(msg.Chat.ID, chat.ErrorReply)
	default:
		b.sendPlain(msg.Chat.ID, res.Reply)
		if res.Params != nil {
			b.sendMarkdown(msg.Chat.ID, fmt.Sprintf("⚙️ *%d kcal* · Exclusions: %s\n_Regenerating..._",
				res.Params.Calories, exclusionsLabel(res.Params.Exclusions)))
		}
	}
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if b.cfg.AdminTelegramID == 0 || msg.From.ID != b.cfg.AdminTelegramID {
		b.sendMarkdown(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}

	var usage []metrics.DailyUsage
	if store := b.engine.Usage(); store != nil {
		var err error
		usage, err = store.GetDailyUsage(ctx, 7)
		if err != nil {
			b.logger.Error("Failed to fetch usage", "error", err)
			b.sendPlain(msg.Chat.ID, "❌ Error fetching metrics.")
			return
		}
	}
	b.sendMarkdown(msg.Chat.ID, formatUsageReport(usage, metrics.GetSysHealth(b.engine.DataDir())))
}

// observe pushes generation outcomes to the user's chat.
func (b *Bot) observe(prev, next session.State, action session.Action) {
	var text string
	switch action.(type) {
	case session.GenerationSucceeded:
		text = formatSummary(next)
	case session.GenerationFailed:
		text = fmt.Sprintf("❌ *%s*\nSend /retry to try again.", escapeMarkdown(next.ErrorMessage))
	default:
		return
	}

	// The store may still deliver a notification it copied before Close
	// unsubscribed; closed is checked under the same lock as wg.Add.
	b.mu.Lock()
	chatID := b.chatID
	if b.closed || chatID == 0 {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	// Subscribers run on the dispatching goroutine; keep the network off it.
	go func() {
		defer b.wg.Done()
		b.sendMarkdown(chatID, text)
	}()
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	b.send(msg)
}

func (b *Bot) sendPlain(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	start := time.Now()
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn("Failed to send telegram message", "error", err, "elapsed", time.Since(start))
	}
}
