package pager

import (
	"context"

	"relaybot/pkg/lockmap"
	"relaybot/pkg/logx"
	"relaybot/pkg/metrics"
)

// Action is a navigation request carried by a control on a paged message.
type Action string

const (
	ActionPrev Action = "prev"
	ActionStay Action = "stay"
	ActionNext Action = "next"
)

// Notices shown to the user in the navigation acknowledgement.
const (
	NoticeExpired = "This page is no longer available."
	NoticeFailed  = "Could not update the page, please try again."
)

// Deliverer re-renders a state into an existing message.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, st *State, existing *MessageID) (MessageID, error)
}

// Ack is the acknowledgement for a navigation event. Text is empty for a silent ack.
type Ack struct {
	Text string
}

// Controller applies navigation events to stored pager state.
type Controller struct {
	store     Store
	deliverer Deliverer
	locks     *lockmap.Map[MessageID]
	recorder  metrics.Recorder
	logger    *logx.Logger
}

// NewController creates a navigation controller. A nil recorder disables metrics.
func NewController(store Store, deliverer Deliverer, recorder metrics.Recorder) *Controller {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Controller{
		store:     store,
		deliverer: deliverer,
		locks:     lockmap.New[MessageID](),
		recorder:  recorder,
		logger:    logx.NewLogger("pager"),
	}
}

// Handle moves the cursor of the message's state and edits the message in place.
// It never fails: every outcome maps to an acknowledgement.
func (c *Controller) Handle(ctx context.Context, id MessageID, action Action) Ack {
	ack, result := c.handle(ctx, id, action)
	c.recorder.IncNavigation(string(action), result)
	return ack
}

func (c *Controller) handle(ctx context.Context, id MessageID, action Action) (Ack, string) {
	if action != ActionPrev && action != ActionNext {
		return Ack{}, "noop"
	}

	unlock, err := c.locks.Lock(ctx, id)
	if err != nil {
		return Ack{}, "canceled"
	}
	defer unlock()

	st, ok, err := c.store.Get(ctx, id)
	if err != nil {
		c.logger.Warn("failed to load pager state for %s: %v", id, err)
		return Ack{Text: NoticeFailed}, "error"
	}
	if !ok {
		return Ack{Text: NoticeExpired}, "unbound"
	}

	moved := st.Prev
	if action == ActionNext {
		moved = st.Next
	}
	if !moved() {
		return Ack{}, "unchanged"
	}

	if _, err := c.deliverer.Deliver(ctx, id.ChatID, st, &id); err != nil {
		c.logger.Warn("failed to show page %d/%d of %s: %v", st.Cursor+1, st.Total(), id, err)
		return Ack{Text: NoticeFailed}, "error"
	}
	logx.Debug(ctx, "pager", "%s %s -> page %d/%d", id, action, st.Cursor+1, st.Total())
	return Ack{}, "moved"
}
