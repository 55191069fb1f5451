package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/pitopup/pitopup/pkg/logger"
)

// TelegramNotificator posts alerts to a single operator chat.
type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot

	chatID string
}

func NewTelegramNotificator(logger *logger.Logger, token, chatID string) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger,
		chatID: chatID,
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %s", err)
	}
	provider.bot = b

	if chatID == "" {
		logger.Warn("TELEGRAM_CHAT_ID is empty; send /start to the bot to get the chat id")
	}
	return provider, nil
}

// Start polls for bot updates until ctx is cancelled.
func (t *TelegramNotificator) Start(ctx context.Context) {
	go t.bot.Start(ctx)
}

func (t *TelegramNotificator) Name() string {
	return "telegram"
}

func (t *TelegramNotificator) Send(message string) error {
	if t.chatID == "" {
		return fmt.Errorf("no telegram chat configured")
	}
	return t.sendTo(t.chatID, message)
}

func (t *TelegramNotificator) sendTo(chatID, message string) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	}
	if _, err := t.bot.SendMessage(context.Background(), params); err != nil {
		return fmt.Errorf("failed to send telegram message: %s", err)
	}
	return nil
}

func (t *TelegramNotificator) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	user := update.Message.From
	t.logger.Debug("Telegram update", "username", user.Username, "text", update.Message.Text)

	if update.Message.Text == "/start" {
		chatID := fmt.Sprint(update.Message.Chat.ID)
		t.logger.Info("Telegram chat registered", "username", user.Username, "chat_id", chatID)
		if err := t.sendTo(chatID, "Set TELEGRAM_CHAT_ID="+chatID+" to receive PiTopUp alerts in this chat."); err != nil {
			t.logger.Error("Failed to answer /start", "error", err)
		}
	}
}
