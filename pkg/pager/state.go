// Package pager keeps the paging state bound to delivered messages and moves the
// cursor in response to navigation events.
package pager

import (
	"errors"
	"fmt"
	"strconv"

	"relaybot/pkg/chunker"
)

// MessageID identifies a delivered message: the chat it lives in and its id there.
type MessageID struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

func (id MessageID) String() string {
	return strconv.FormatInt(id.ChatID, 10) + ":" + strconv.Itoa(id.MessageID)
}

// State is the paging state of one delivered message.
type State struct {
	Pages    []string     `json:"pages"`
	Cursor   int          `json:"cursor"`
	Mode     chunker.Mode `json:"mode"`
	Language string       `json:"language,omitempty"`
}

// ErrNoPages is returned when a state has nothing to show.
var ErrNoPages = errors.New("pager state has no pages")

// NewState creates a state positioned on the first page.
func NewState(pages []string, mode chunker.Mode, language string) *State {
	if len(pages) == 0 {
		pages = []string{""}
	}
	return &State{Pages: pages, Mode: mode, Language: language}
}

// Page returns the page under the cursor.
func (s *State) Page() string {
	return s.Pages[s.Cursor]
}

// Total returns the number of pages.
func (s *State) Total() int {
	return len(s.Pages)
}

// Paged reports whether navigation controls apply.
func (s *State) Paged() bool {
	return len(s.Pages) > 1
}

// Prev moves one page back. It reports whether the cursor changed.
func (s *State) Prev() bool {
	if s.Cursor <= 0 {
		return false
	}
	s.Cursor--
	return true
}

// Next moves one page forward. It reports whether the cursor changed.
func (s *State) Next() bool {
	if s.Cursor >= len(s.Pages)-1 {
		return false
	}
	s.Cursor++
	return true
}

// Clone returns a copy that shares no mutable fields with s.
func (s *State) Clone() *State {
	c := *s
	c.Pages = append([]string(nil), s.Pages...)
	return &c
}

// Validate checks the cursor invariant.
func (s *State) Validate() error {
	if len(s.Pages) == 0 {
		return ErrNoPages
	}
	if s.Cursor < 0 || s.Cursor >= len(s.Pages) {
		return fmt.Errorf("cursor %d out of range [0, %d)", s.Cursor, len(s.Pages))
	}
	return nil
}
