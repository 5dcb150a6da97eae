package telegram

import (
	"context"
	"io"

	tele "gopkg.in/telebot.v4"

	"relaybot/pkg/logx"
	"relaybot/pkg/pager"
	"relaybot/pkg/relay"
)

// Handler serves chat requests.
type Handler interface {
	Handle(ctx context.Context, req relay.Request)
}

// Navigator serves navigation events.
type Navigator interface {
	Handle(ctx context.Context, id pager.MessageID, action pager.Action) pager.Ack
}

// Router feeds bot updates to the relay and the navigation controller.
type Router struct {
	bot     *tele.Bot
	handler Handler
	nav     Navigator
	ctx     context.Context
	logger  *logx.Logger
}

// NewRouter registers the update handlers on bot.
func NewRouter(bot *tele.Bot, handler Handler, nav Navigator) *Router {
	r := &Router{bot: bot, handler: handler, nav: nav, ctx: context.Background(), logger: logx.NewLogger("telegram")}
	bot.Handle(tele.OnText, r.onText)
	bot.Handle(tele.OnDocument, r.onDocument)
	bot.Handle(&tele.Btn{Unique: UniquePrev}, r.onNavigate(pager.ActionPrev))
	bot.Handle(&tele.Btn{Unique: UniqueStay}, r.onNavigate(pager.ActionStay))
	bot.Handle(&tele.Btn{Unique: UniqueNext}, r.onNavigate(pager.ActionNext))
	return r
}

// Run polls for updates until ctx is cancelled. Handlers run with ctx.
func (r *Router) Run(ctx context.Context) error {
	r.ctx = ctx
	r.logger.Info("🤖 Polling Telegram as @%s", r.bot.Me.Username)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.bot.Start()
	}()

	<-ctx.Done()
	r.bot.Stop()
	<-done
	r.logger.Info("Telegram polling stopped")
	return nil
}

func (r *Router) onText(c tele.Context) error {
	r.handler.Handle(r.ctx, relay.Request{ChatID: c.Chat().ID, Text: c.Text()})
	return nil
}

func (r *Router) onDocument(c tele.Context) error {
	msg := c.Message()
	doc := msg.Document
	r.handler.Handle(r.ctx, relay.Request{
		ChatID: c.Chat().ID,
		Document: &relay.Document{
			Name:    doc.FileName,
			MIME:    doc.MIME,
			Size:    doc.FileSize,
			Caption: msg.Caption,
			Open: func(context.Context) (io.ReadCloser, error) {
				return r.bot.File(&doc.File)
			},
		},
	})
	return nil
}

// onNavigate always answers the callback so the client stops its spinner.
func (r *Router) onNavigate(action pager.Action) tele.HandlerFunc {
	return func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || cb.Message == nil {
			return c.Respond()
		}
		id := pager.MessageID{ChatID: cb.Message.Chat.ID, MessageID: cb.Message.ID}
		ack := r.nav.Handle(r.ctx, id, action)
		return c.Respond(&tele.CallbackResponse{Text: ack.Text})
	}
}
