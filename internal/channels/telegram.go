package channels

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"duewatch/internal/types"
)

// TelegramSender delivers notifications through the Telegram Bot API. The
// destination is the chat ID, kept as a string so numeric IDs and @channel
// names both pass through unchanged.
type TelegramSender struct {
	bot    *bot.Bot
	logger types.Logger
}

var _ Sender = (*TelegramSender)(nil)

// NewTelegramSender creates a sender backed by a bot instance for the given
// token. Extra bot options are forwarded, which lets tests point the client
// at a local server with bot.WithServerURL and bot.WithSkipGetMe.
func NewTelegramSender(token string, logger types.Logger, opts ...bot.Option) (*TelegramSender, error) {
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamTelegram,
			"failed to initialize telegram bot", err)
	}
	return &TelegramSender{bot: b, logger: logger}, nil
}

// Type implements Sender.
func (s *TelegramSender) Type() types.ChannelType {
	return types.ChannelTelegram
}

// Send implements Sender. The message is rendered as Markdown.
func (s *TelegramSender) Send(ctx context.Context, payload types.Payload, destination string) error {
	text, err := FormatTelegram(payload)
	if err != nil {
		return err
	}

	_, err = s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    destination,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamTelegram,
			fmt.Sprintf("failed to send telegram message to chat %s", destination), err)
	}

	s.logger.Debug("telegram message sent", "chat_id", destination, "kind", payload.Kind)
	return nil
}
