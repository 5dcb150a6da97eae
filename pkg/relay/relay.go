// Package relay dispatches chat requests to the model gate and delivers the answers.
//
// Each conversation is served one request at a time; different conversations run
// concurrently and only share the gate's slot pool. Every failure is turned into a
// short reply at this boundary.
package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"relaybot/pkg/chunker"
	"relaybot/pkg/config"
	"relaybot/pkg/gate"
	"relaybot/pkg/history"
	"relaybot/pkg/imagegen"
	"relaybot/pkg/llm"
	"relaybot/pkg/lockmap"
	"relaybot/pkg/logx"
	"relaybot/pkg/pager"
	"relaybot/pkg/render"
)

// Caller runs a model call through the gate.
type Caller interface {
	Call(ctx context.Context, model string, messages []llm.Message, maxTokens int, temperature float32) gate.Result
}

// Deliverer sends a paged answer as a new message.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, st *pager.State, existing *pager.MessageID) (pager.MessageID, error)
}

// Notifier sends short replies and media.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
	SendImage(ctx context.Context, chatID int64, img imagegen.Image) error
	Typing(ctx context.Context, chatID int64)
}

// Request is one incoming chat message.
type Request struct {
	ChatID   int64
	Text     string
	Document *Document
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Config   *config.Config
	Gate     Caller
	Delivery Deliverer
	Notifier Notifier
	Images   imagegen.Generator
	History  *history.Store
}

// Dispatcher routes requests to the chat, code, file and image surfaces.
type Dispatcher struct {
	cfg      *config.Config
	gate     Caller
	delivery Deliverer
	notifier Notifier
	images   imagegen.Generator
	history  *history.Store
	locks    *lockmap.Map[int64]
	logger   *logx.Logger
}

// New creates a dispatcher.
func New(deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:      deps.Config,
		gate:     deps.Gate,
		delivery: deps.Delivery,
		notifier: deps.Notifier,
		images:   deps.Images,
		history:  deps.History,
		locks:    lockmap.New[int64](),
		logger:   logx.NewLogger("relay"),
	}
}

// Handle serves one request. It does not return errors; failures are reported to
// the user and logged.
func (d *Dispatcher) Handle(ctx context.Context, req Request) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic handling chat %d: %v\n%s", req.ChatID, r, debug.Stack())
			d.notify(ctx, req.ChatID, MsgInternal)
		}
	}()

	logx.Debug(ctx, "relay", "handling %s", req)
	if req.Document != nil {
		d.withConversation(ctx, req.ChatID, func() { d.handleDocument(ctx, req) })
		return
	}

	cmd, arg := splitCommand(req.Text)
	switch normalizeSlashCommand(cmd) {
	case "":
		if arg != "" {
			d.withConversation(ctx, req.ChatID, func() { d.handleChat(ctx, req.ChatID, arg) })
		}
	case "/start", "/help":
		d.notify(ctx, req.ChatID, MsgHelp)
	case "/code":
		if arg == "" {
			d.notify(ctx, req.ChatID, MsgCodeUsage)
			return
		}
		d.withConversation(ctx, req.ChatID, func() { d.handleCode(ctx, req.ChatID, arg) })
	case "/img":
		if arg == "" {
			d.notify(ctx, req.ChatID, MsgImageUsage)
			return
		}
		d.withConversation(ctx, req.ChatID, func() { d.handleImage(ctx, req.ChatID, arg) })
	case "/reset":
		d.withConversation(ctx, req.ChatID, func() {
			d.history.Reset(req.ChatID)
			d.notify(ctx, req.ChatID, MsgReset)
		})
	default:
		d.notify(ctx, req.ChatID, MsgUnknownCommand)
	}
}

func (d *Dispatcher) withConversation(ctx context.Context, chatID int64, fn func()) {
	unlock, err := d.locks.Lock(ctx, chatID)
	if err != nil {
		d.logger.Debug("chat %d: gave up waiting for conversation: %v", chatID, err)
		return
	}
	defer unlock()
	fn()
}

func (d *Dispatcher) handleChat(ctx context.Context, chatID int64, text string) {
	messages := d.conversation(chatID, chatSystemPrompt, text)
	b := d.cfg.Budgets
	answer, ok := d.call(ctx, chatID, d.cfg.Models.Chat, messages, b.ChatMaxTokens, float32(b.ChatTemperature))
	if !ok {
		return
	}
	d.history.AppendExchange(chatID, text, answer)
	d.deliver(ctx, chatID, answer, chunker.ModeProse, "")
}

func (d *Dispatcher) handleCode(ctx context.Context, chatID int64, request string) {
	messages := d.conversation(chatID, codeSystemPrompt, request)
	b := d.cfg.Budgets
	answer, ok := d.call(ctx, chatID, d.cfg.Models.Code, messages, b.CodeMaxTokens, float32(b.CodeTemperature))
	if !ok {
		return
	}
	d.history.AppendExchange(chatID, request, answer)

	code, tag := render.ExtractCode(answer)
	d.deliver(ctx, chatID, code, chunker.ModeCode, render.DetectLanguage(code, tag))
}

func (d *Dispatcher) handleImage(ctx context.Context, chatID int64, description string) {
	if d.images == nil {
		d.notify(ctx, chatID, MsgNotConfigured)
		return
	}
	d.notifier.Typing(ctx, chatID)

	genCtx, cancel := context.WithTimeout(ctx, d.cfg.Gate.RequestTimeout()+d.cfg.Gate.Grace())
	defer cancel()
	img, err := d.images.Generate(genCtx, description)
	switch {
	case errors.Is(err, config.ErrMissingCredential):
		d.notify(ctx, chatID, MsgNotConfigured)
	case errors.Is(err, context.DeadlineExceeded):
		d.notify(ctx, chatID, MsgTimeout)
	case err != nil:
		d.logger.Warn("chat %d: image generation failed: %v", chatID, err)
		d.notify(ctx, chatID, MsgImageFailed)
	default:
		if err := d.notifier.SendImage(ctx, chatID, img); err != nil {
			d.logger.Warn("chat %d: failed to send image: %v", chatID, err)
			d.notify(ctx, chatID, MsgDeliveryFailed)
		}
	}
}

// conversation builds the prompt: system instructions, retained turns, the new input.
func (d *Dispatcher) conversation(chatID int64, system, input string) []llm.Message {
	past := d.history.Snapshot(chatID)
	messages := make([]llm.Message, 0, len(past)+2)
	messages = append(messages, llm.SystemMessage(system))
	messages = append(messages, past...)
	return append(messages, llm.UserMessage(input))
}

// call runs the model call and reports failures to the user.
func (d *Dispatcher) call(ctx context.Context, chatID int64, model string, messages []llm.Message, maxTokens int, temperature float32) (string, bool) {
	d.notifier.Typing(ctx, chatID)
	res := d.gate.Call(ctx, model, messages, maxTokens, temperature)
	if res.OK() {
		return res.Text, true
	}
	if msg := failureMessage(res); msg != "" {
		d.notify(ctx, chatID, msg)
	}
	return "", false
}

// failureMessage maps a failed gate result to a reply. Cancellation means we are
// shutting down and gets none.
func failureMessage(res gate.Result) string {
	switch res.Outcome {
	case gate.OutcomeTimeout:
		return MsgTimeout
	case gate.OutcomeUnconfigured:
		return MsgNotConfigured
	case gate.OutcomeCanceled:
		return ""
	default:
		return MsgUnavailable
	}
}

func (d *Dispatcher) deliver(ctx context.Context, chatID int64, text string, mode chunker.Mode, language string) {
	pages := chunker.Split(text, d.cfg.Pager.PageSize, mode)
	st := pager.NewState(pages, mode, language)
	id, err := d.delivery.Deliver(ctx, chatID, st, nil)
	if err != nil {
		d.logger.Error("chat %d: %v", chatID, err)
		d.notify(ctx, chatID, MsgDeliveryFailed)
		return
	}
	logx.Debug(ctx, "relay", "chat %d: delivered %s as %d page(s) in %s mode", chatID, id, len(pages), st.Mode)
}

func (d *Dispatcher) notify(ctx context.Context, chatID int64, text string) {
	if err := d.notifier.Notify(ctx, chatID, text); err != nil {
		d.logger.Warn("chat %d: failed to send notice: %v", chatID, err)
	}
}

func splitCommand(text string) (cmd, rest string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// normalizeSlashCommand lowercases a command and strips a "@BotName" suffix.
func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func (r Request) String() string {
	if r.Document != nil {
		return fmt.Sprintf("chat %d document %q", r.ChatID, r.Document.Name)
	}
	return fmt.Sprintf("chat %d text (%d chars)", r.ChatID, chunker.Len(r.Text))
}
