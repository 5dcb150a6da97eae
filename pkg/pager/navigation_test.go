package pager

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/chunker"
)

// fakeDeliverer stands in for the delivery adapter: it records edits and binds the
// delivered state on success.
type fakeDeliverer struct {
	store Store
	err   error

	mu    sync.Mutex
	edits []int
}

func (f *fakeDeliverer) Deliver(ctx context.Context, _ int64, st *State, existing *MessageID) (MessageID, error) {
	f.mu.Lock()
	f.edits = append(f.edits, st.Cursor)
	f.mu.Unlock()
	if f.err != nil {
		return MessageID{}, f.err
	}
	return *existing, f.store.Put(ctx, *existing, st)
}

func setupNavigation(t *testing.T, pages ...string) (*Controller, *fakeDeliverer, Store, MessageID) {
	t.Helper()
	store, err := NewMemoryStore(8)
	require.NoError(t, err)
	id := MessageID{ChatID: 5, MessageID: 500}
	require.NoError(t, store.Put(context.Background(), id, NewState(pages, chunker.ModeProse, "")))
	d := &fakeDeliverer{store: store}
	return NewController(store, d, nil), d, store, id
}

func cursorOf(t *testing.T, store Store, id MessageID) int {
	t.Helper()
	st, ok, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	return st.Cursor
}

func TestNavigateNextAndPrev(t *testing.T) {
	c, d, store, id := setupNavigation(t, "a", "b", "c")
	ctx := context.Background()

	assert.Equal(t, Ack{}, c.Handle(ctx, id, ActionNext))
	assert.Equal(t, 1, cursorOf(t, store, id))

	assert.Equal(t, Ack{}, c.Handle(ctx, id, ActionPrev))
	assert.Equal(t, 0, cursorOf(t, store, id))

	assert.Equal(t, []int{1, 0}, d.edits)
}

// next at the last page leaves the cursor alone and is still acknowledged.
func TestNavigateNextAtLastPage(t *testing.T) {
	c, d, store, id := setupNavigation(t, "a", "b")
	ctx := context.Background()

	c.Handle(ctx, id, ActionNext)
	ack := c.Handle(ctx, id, ActionNext)

	assert.Equal(t, Ack{}, ack)
	assert.Equal(t, 1, cursorOf(t, store, id))
	assert.Len(t, d.edits, 1, "no edit when nothing changed")
}

func TestNavigatePrevAtFirstPage(t *testing.T) {
	c, d, store, id := setupNavigation(t, "a", "b")

	c.Handle(context.Background(), id, ActionPrev)

	assert.Equal(t, 0, cursorOf(t, store, id))
	assert.Empty(t, d.edits)
}

func TestNavigateStayIsNoop(t *testing.T) {
	c, d, store, id := setupNavigation(t, "a", "b")

	assert.Equal(t, Ack{}, c.Handle(context.Background(), id, ActionStay))
	assert.Equal(t, 0, cursorOf(t, store, id))
	assert.Empty(t, d.edits)
}

func TestNavigateUnboundMessage(t *testing.T) {
	c, d, store, _ := setupNavigation(t, "a", "b")
	unknown := MessageID{ChatID: 5, MessageID: 1}

	ack := c.Handle(context.Background(), unknown, ActionNext)

	assert.Equal(t, NoticeExpired, ack.Text)
	assert.Empty(t, d.edits)
	n, _ := store.Len(context.Background())
	assert.Equal(t, 1, n, "nothing created for an unbound message")
}

func TestNavigateDeliveryFailureKeepsState(t *testing.T) {
	c, d, store, id := setupNavigation(t, "a", "b")
	d.err = errors.New("edit rejected")

	ack := c.Handle(context.Background(), id, ActionNext)

	assert.Equal(t, NoticeFailed, ack.Text)
	assert.Equal(t, 0, cursorOf(t, store, id))
}

func TestNavigateConcurrentEventsStayInBounds(t *testing.T) {
	c, _, store, id := setupNavigation(t, "a", "b", "c", "d")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := ActionNext
			if i%3 == 0 {
				action = ActionPrev
			}
			c.Handle(context.Background(), id, action)
		}(i)
	}
	wg.Wait()

	cursor := cursorOf(t, store, id)
	assert.GreaterOrEqual(t, cursor, 0)
	assert.Less(t, cursor, 4)
}
