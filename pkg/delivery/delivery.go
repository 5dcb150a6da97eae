// Package delivery sends or edits paged messages, degrading the markup when the chat
// transport rejects it.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"relaybot/pkg/chunker"
	"relaybot/pkg/logx"
	"relaybot/pkg/metrics"
	"relaybot/pkg/pager"
	"relaybot/pkg/render"
)

// Nav describes the navigation controls attached to a paged message.
type Nav struct {
	Cursor int
	Total  int
}

// Label is the text of the middle control.
func (n Nav) Label() string {
	return fmt.Sprintf("%d / %d", n.Cursor+1, n.Total)
}

// Message is what a transport puts on the wire. Nav is nil for single-page content.
type Message struct {
	render.Payload
	Nav *Nav
}

// Transport sends and edits chat messages.
type Transport interface {
	Send(ctx context.Context, chatID int64, msg Message) (pager.MessageID, error)
	Edit(ctx context.Context, id pager.MessageID, msg Message) error
}

// Classifier interprets transport rejections.
type Classifier interface {
	// IsParseError reports a rejection of the markup itself.
	IsParseError(err error) bool
	// IsNotModified reports an edit that would not change the message.
	IsNotModified(err error) bool
}

// ErrDeliveryFailed wraps the last transport error once every fallback tier failed.
var ErrDeliveryFailed = errors.New("delivery failed")

type step int

const (
	stepPrimary step = iota
	stepPlain
	stepToggled
	stepAbandon
)

func (s step) tier() string {
	switch s {
	case stepPlain:
		return metrics.TierPlain
	case stepToggled:
		return metrics.TierToggled
	default:
		return metrics.TierPrimary
	}
}

// Adapter delivers pager states and binds the resulting message to them.
type Adapter struct {
	transport  Transport
	classifier Classifier
	store      pager.Store
	recorder   metrics.Recorder
	logger     *logx.Logger
}

// NewAdapter creates an adapter. A nil recorder disables metrics.
func NewAdapter(transport Transport, classifier Classifier, store pager.Store, recorder metrics.Recorder) *Adapter {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Adapter{
		transport:  transport,
		classifier: classifier,
		store:      store,
		recorder:   recorder,
		logger:     logx.NewLogger("delivery"),
	}
}

// Deliver renders the current page of st and edits existing in place, or sends a new
// message when existing is nil. At most three attempts are made: the primary render,
// a plain-text retry when the markup was rejected, and a retry with the render mode
// toggled. A successful toggle is kept in st and in the store; after total failure
// st is left as it was.
func (a *Adapter) Deliver(ctx context.Context, chatID int64, st *pager.State, existing *pager.MessageID) (pager.MessageID, error) {
	original := st.Mode
	var nav *Nav
	if st.Paged() {
		nav = &Nav{Cursor: st.Cursor, Total: st.Total()}
	}

	var lastErr error
	for s := stepPrimary; s != stepAbandon; {
		msg := Message{Payload: a.payload(s, st, original), Nav: nav}
		id, err := a.attempt(ctx, chatID, existing, msg)
		if err == nil {
			a.recorder.IncDelivery(s.tier(), "ok")
			if s != stepPrimary {
				a.logger.Info("delivered to chat %d on %s tier", chatID, s.tier())
			}
			if err := a.store.Put(ctx, id, st); err != nil {
				a.logger.Warn("delivered %s but could not bind pager state: %v", id, err)
			}
			return id, nil
		}

		a.recorder.IncDelivery(s.tier(), "rejected")
		a.logger.Warn("%s delivery to chat %d rejected (%s): %v", s.tier(), chatID, msg.Format, err)
		lastErr = err
		s = a.next(ctx, s, err)
	}

	st.Mode = original
	return pager.MessageID{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, lastErr)
}

func (a *Adapter) payload(s step, st *pager.State, original chunker.Mode) render.Payload {
	switch s {
	case stepPlain:
		return render.Plain(render.Render(st))
	case stepToggled:
		st.Mode = original.Toggle()
		return render.Render(st)
	default:
		return render.Render(st)
	}
}

func (a *Adapter) next(ctx context.Context, s step, err error) step {
	if ctx.Err() != nil {
		return stepAbandon
	}
	switch s {
	case stepPrimary:
		if a.classifier.IsParseError(err) {
			return stepPlain
		}
		return stepToggled
	case stepPlain:
		return stepToggled
	default:
		return stepAbandon
	}
}

func (a *Adapter) attempt(ctx context.Context, chatID int64, existing *pager.MessageID, msg Message) (pager.MessageID, error) {
	if existing == nil {
		return a.transport.Send(ctx, chatID, msg) //nolint:wrapcheck // Classified by the caller
	}
	err := a.transport.Edit(ctx, *existing, msg)
	if err != nil && a.classifier.IsNotModified(err) {
		err = nil
	}
	return *existing, err //nolint:wrapcheck // Classified by the caller
}
