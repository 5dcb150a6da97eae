package history

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/config"
	"relaybot/pkg/llm"
)

func TestRingKeepsMostRecent(t *testing.T) {
	r := NewRing(3, 0)
	for i := 1; i <= 5; i++ {
		r.Append(llm.RoleUser, fmt.Sprint(i))
	}

	msgs := r.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "3", msgs[0].Content)
	assert.Equal(t, "5", msgs[2].Content)
	assert.Equal(t, 3, r.Len())
}

func TestRingTruncatesContent(t *testing.T) {
	r := NewRing(2, 4)
	r.Append(llm.RoleAssistant, "привет мир")

	msgs := r.Messages()
	assert.Equal(t, "прив", msgs[0].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[0].Role)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "日本", Truncate("日本語", 2))
}

func TestStoreIsolatesConversations(t *testing.T) {
	s, err := NewStore(config.HistoryConfig{Turns: 4, MaxChars: 100, Conversations: 10})
	require.NoError(t, err)

	s.AppendExchange(1, "hi", "hello")
	s.AppendExchange(2, "other", "reply")

	assert.Equal(t, []llm.Message{
		llm.UserMessage("hi"),
		llm.AssistantMessage("hello"),
	}, s.Snapshot(1))
	assert.Len(t, s.Snapshot(2), 2)
	assert.Nil(t, s.Snapshot(3))

	s.Reset(1)
	assert.Nil(t, s.Snapshot(1))
	assert.Equal(t, 1, s.Len())
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s, err := NewStore(config.HistoryConfig{Turns: 4})
	require.NoError(t, err)
	s.Append(1, llm.RoleUser, "original")

	snap := s.Snapshot(1)
	snap[0].Content = "mutated"

	assert.Equal(t, "original", s.Snapshot(1)[0].Content)
}

func TestStoreSnapshotOpensOnUserTurn(t *testing.T) {
	s, err := NewStore(config.HistoryConfig{Turns: 3, Conversations: 10})
	require.NoError(t, err)

	s.AppendExchange(1, "q1", "a1")
	s.AppendExchange(1, "q2", "a2")

	assert.Equal(t, []llm.Message{
		llm.UserMessage("q2"),
		llm.AssistantMessage("a2"),
	}, s.Snapshot(1))

	s.Append(1, llm.RoleUser, "q3")
	assert.Equal(t, []llm.Message{
		llm.UserMessage("q2"),
		llm.AssistantMessage("a2"),
		llm.UserMessage("q3"),
	}, s.Snapshot(1))
}

func TestStoreBoundsConversations(t *testing.T) {
	s, err := NewStore(config.HistoryConfig{Turns: 2, Conversations: 3})
	require.NoError(t, err)

	for id := int64(1); id <= 5; id++ {
		s.Append(id, llm.RoleUser, "x")
	}

	assert.Equal(t, 3, s.Len())
	assert.Nil(t, s.Snapshot(1), "least recently active conversation dropped")
	assert.NotNil(t, s.Snapshot(5))
}

func TestStoreConcurrentAppends(t *testing.T) {
	s, err := NewStore(config.HistoryConfig{Turns: 12, MaxChars: 10})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Append(int64(i%2), llm.RoleUser, strings.Repeat("z", 20))
			}
		}(i)
	}
	wg.Wait()

	for _, conv := range []int64{0, 1} {
		msgs := s.Snapshot(conv)
		assert.Len(t, msgs, 12)
		for _, m := range msgs {
			assert.Len(t, m.Content, 10)
		}
	}
}
