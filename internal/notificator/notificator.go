package notificator

import (
	"runtime/debug"

	"github.com/pitopup/pitopup/internal/config"
	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/pkg/logger"
)

// Channel delivers a rendered alert to one destination.
type Channel interface {
	Name() string
	Send(message string) error
}

// Notificator fans alerts out to every configured channel.
type Notificator struct {
	logger *logger.Logger

	channels []Channel
}

func NewNotificator(logger *logger.Logger, channels ...Channel) *Notificator {
	return &Notificator{logger: logger, channels: channels}
}

// FromConfig builds the channels enabled in cfg. The telegram notificator is
// returned separately so the caller can start its update loop; it is nil
// when telegram is not configured.
func FromConfig(cfg *config.Config, logger *logger.Logger) (*Notificator, *TelegramNotificator, error) {
	var channels []Channel
	var tg *TelegramNotificator

	if cfg.TelegramBotToken != "" {
		var err error
		tg, err = NewTelegramNotificator(logger, cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, tg)
	}
	if cfg.SMTPHost != "" && cfg.AlertEmail != "" {
		channels = append(channels, NewEmailNotificator(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender, cfg.AlertEmail))
	}
	if len(channels) == 0 {
		logger.Warn("No alert channels configured; alerts are only logged")
	}
	return NewNotificator(logger, channels...), tg, nil
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) SendAlert(alert *models.Alert) {
	if alert == nil {
		return
	}
	message := alert.String()
	n.logger.Info("Operator alert", "kind", alert.Kind, "user", alert.UserID, "message", alert.Message)

	for _, ch := range n.channels {
		ch := ch
		n.safeCall(func() {
			if err := ch.Send(message); err != nil {
				n.logger.Error("Failed to deliver alert", "channel", ch.Name(), "kind", alert.Kind, "error", err)
			}
		}, ch.Name()+"Alert")
	}
}
