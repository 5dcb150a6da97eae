package pager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/chunker"
)

func TestStateCursorBounds(t *testing.T) {
	st := NewState([]string{"a", "b", "c"}, chunker.ModeProse, "")

	assert.False(t, st.Prev(), "prev at the first page is a no-op")
	assert.Equal(t, 0, st.Cursor)

	assert.True(t, st.Next())
	assert.True(t, st.Next())
	assert.Equal(t, "c", st.Page())

	assert.False(t, st.Next(), "next at the last page is a no-op")
	assert.Equal(t, 2, st.Cursor)

	assert.True(t, st.Prev())
	assert.Equal(t, "b", st.Page())
	require.NoError(t, st.Validate())
}

func TestStateEmptyGetsOnePage(t *testing.T) {
	st := NewState(nil, chunker.ModeCode, "go")
	assert.Equal(t, 1, st.Total())
	assert.False(t, st.Paged())
	assert.False(t, st.Next())
	require.NoError(t, st.Validate())
}

func TestStateCloneIsIndependent(t *testing.T) {
	st := NewState([]string{"a", "b"}, chunker.ModeCode, "go")
	c := st.Clone()
	c.Pages[0] = "changed"
	c.Next()

	assert.Equal(t, "a", st.Pages[0])
	assert.Equal(t, 0, st.Cursor)
}

func TestStateValidate(t *testing.T) {
	assert.ErrorIs(t, (&State{}).Validate(), ErrNoPages)
	assert.Error(t, (&State{Pages: []string{"a"}, Cursor: 1}).Validate())
	assert.Error(t, (&State{Pages: []string{"a"}, Cursor: -1}).Validate())
}

func TestMessageIDString(t *testing.T) {
	assert.Equal(t, "-100123:42", MessageID{ChatID: -100123, MessageID: 42}.String())
}
