// Package telegram connects the relay to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"relaybot/pkg/delivery"
	"relaybot/pkg/imagegen"
	"relaybot/pkg/logx"
	"relaybot/pkg/pager"
	"relaybot/pkg/render"
)

// Callback identifiers of the navigation controls.
const (
	UniquePrev = "pg_prev"
	UniqueStay = "pg_stay"
	UniqueNext = "pg_next"
)

// NewBot creates a long-polling bot. offline skips the getMe handshake (tests).
func NewBot(token, apiURL string, pollTimeout time.Duration, offline bool) (*tele.Bot, error) {
	bot, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Poller:  &tele.LongPoller{Timeout: pollTimeout},
		Offline: offline,
		OnError: func(err error, _ tele.Context) {
			logx.NewLogger("telegram").Error("update handler failed: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start telegram bot: %w", err)
	}
	return bot, nil
}

// Transport sends and edits messages through a bot.
type Transport struct {
	bot    *tele.Bot
	logger *logx.Logger
}

// NewTransport wraps bot.
func NewTransport(bot *tele.Bot) *Transport {
	return &Transport{bot: bot, logger: logx.NewLogger("telegram")}
}

func parseMode(f render.Format) tele.ParseMode {
	switch f {
	case render.FormatMarkdown:
		return tele.ModeMarkdown
	case render.FormatHTML:
		return tele.ModeHTML
	default:
		return tele.ModeDefault
	}
}

// Controls builds the inline keyboard for a paged message.
func Controls(nav *delivery.Nav) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	if nav == nil {
		return markup
	}
	markup.Inline(markup.Row(
		markup.Data("◀", UniquePrev),
		markup.Data(nav.Label(), UniqueStay),
		markup.Data("▶", UniqueNext),
	))
	return markup
}

func sendOptions(msg delivery.Message) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: parseMode(msg.Format), DisableWebPagePreview: true}
	if msg.Nav != nil {
		opts.ReplyMarkup = Controls(msg.Nav)
	}
	return opts
}

// Send posts a new message.
func (t *Transport) Send(_ context.Context, chatID int64, msg delivery.Message) (pager.MessageID, error) {
	sent, err := t.bot.Send(tele.ChatID(chatID), msg.Text, sendOptions(msg))
	if err != nil {
		return pager.MessageID{}, err //nolint:wrapcheck // Classified by the delivery adapter
	}
	return pager.MessageID{ChatID: chatID, MessageID: sent.ID}, nil
}

// Edit replaces the text and controls of an existing message.
func (t *Transport) Edit(_ context.Context, id pager.MessageID, msg delivery.Message) error {
	target := tele.StoredMessage{MessageID: strconv.Itoa(id.MessageID), ChatID: id.ChatID}
	_, err := t.bot.Edit(target, msg.Text, sendOptions(msg))
	return err //nolint:wrapcheck // Classified by the delivery adapter
}

// Notify sends a short plain-text reply.
func (t *Transport) Notify(_ context.Context, chatID int64, text string) error {
	if _, err := t.bot.Send(tele.ChatID(chatID), text); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// SendImage posts a photo by URL.
func (t *Transport) SendImage(_ context.Context, chatID int64, img imagegen.Image) error {
	photo := &tele.Photo{File: tele.FromURL(img.URL), Caption: truncateCaption(img.RevisedPrompt)}
	if _, err := t.bot.Send(tele.ChatID(chatID), photo); err != nil {
		return fmt.Errorf("failed to send image: %w", err)
	}
	return nil
}

// Typing shows the typing indicator; failures are only logged.
func (t *Transport) Typing(_ context.Context, chatID int64) {
	if err := t.bot.Notify(tele.ChatID(chatID), tele.Typing); err != nil {
		t.logger.Debug("typing indicator for chat %d failed: %v", chatID, err)
	}
}

const captionLimit = 1024

func truncateCaption(s string) string {
	runes := []rune(s)
	if len(runes) <= captionLimit {
		return s
	}
	return string(runes[:captionLimit-1]) + "…"
}

// Classifier recognizes Bot API rejections. The Bot API only reports them as text.
type Classifier struct{}

// IsParseError reports a rejected parse mode payload.
func (Classifier) IsParseError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}

// IsNotModified reports an edit with identical content and controls.
func (Classifier) IsNotModified(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
