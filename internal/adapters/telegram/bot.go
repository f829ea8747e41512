package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
	"eventsim/pkg/ratelimit"
	"eventsim/pkg/retry"
)

// API is the subset of *tgbotapi.BotAPI the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Config contains Telegram bot configuration
type Config struct {
	Token         string
	ChatID        int64
	Debug         bool
	HTTPTimeout   time.Duration
	RateLimitRate float64 // messages per second, default 20
}

// Bot sends rate-limited messages to one operator chat and dispatches callback queries
type Bot struct {
	api     API
	chatID  int64
	limiter *ratelimit.Limiter
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewBot authorizes against the Bot API
func NewBot(cfg Config, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token and chat id are required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	// long polling holds requests for up to 60s
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout + 60*time.Second}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log.Infow("Telegram bot authorized", "account", api.Self.UserName)
	return NewBotWithAPI(api, cfg.ChatID, cfg.RateLimitRate, log), nil
}

// NewBotWithAPI wraps an existing API client
func NewBotWithAPI(api API, chatID int64, ratePerSecond float64, log *logger.Logger) *Bot {
	if ratePerSecond <= 0 {
		ratePerSecond = 20 // Telegram allows ~30/s per bot
	}
	return &Bot{
		api:     api,
		chatID:  chatID,
		limiter: ratelimit.NewLimiter("telegram", ratePerSecond, int(ratePerSecond)),
		retrier: retry.New(retry.Config{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Retryable:    isRetryable,
		}),
		log:     log.With("component", "telegram_bot"),
	}
}

// SendMarkdown sends text to the operator chat with an optional inline keyboard
func (b *Bot) SendMarkdown(ctx context.Context, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	// a lost prompt leaves the operator nothing to press
	var sent tgbotapi.Message
	err := b.retrier.Do(ctx, func() error {
		var sendErr error
		sent, sendErr = b.api.Send(msg)
		return sendErr
	})
	if err != nil {
		return 0, errors.Wrap(err, "send telegram message")
	}
	return sent.MessageID, nil
}

// isRetryable retries transport failures, throttling and Bot API server errors
func isRetryable(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return retry.IsTransient(err)
}

// EditText replaces the text of a sent message and drops its keyboard
func (b *Bot) EditText(ctx context.Context, messageID int, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(b.chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		return errors.Wrap(err, "edit telegram message")
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its spinner
func (b *Bot) AnswerCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Warnw("Failed to answer callback", "error", err)
	}
}

// CallbackHandler handles one callback query from the operator chat
type CallbackHandler func(ctx context.Context, q *tgbotapi.CallbackQuery)

// Run polls updates until ctx is cancelled and hands callback queries from
// the operator chat to handle. Other updates are ignored.
func (b *Bot) Run(ctx context.Context, handle CallbackHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"callback_query"}

	updates := b.api.GetUpdatesChan(u)
	b.log.Infow("Telegram bot polling for callbacks")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Infow("Telegram bot stopped")
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			q := update.CallbackQuery
			if q == nil {
				continue
			}
			if q.Message == nil || q.Message.Chat == nil || q.Message.Chat.ID != b.chatID {
				b.log.Warnw("Callback from foreign chat ignored", "from", q.From)
				continue
			}
			handle(ctx, q)
		}
	}
}
