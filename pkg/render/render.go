// Package render turns the current page of a pager state into a chat payload.
package render

import (
	"strings"

	"relaybot/pkg/chunker"
	"relaybot/pkg/config"
	"relaybot/pkg/pager"
)

// Format is the markup interpretation requested from the chat transport.
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatHTML:
		return "html"
	default:
		return "plain"
	}
}

// Payload is rendered text plus the format it must be sent with.
type Payload struct {
	Text   string
	Format Format
}

// Render renders the page under the cursor. Code pages become a fenced block tagged
// with the language hint and are sent as Markdown; prose pages are sent as-is with
// HTML interpretation. The result depends only on the state.
func Render(st *pager.State) Payload {
	page := st.Page()
	if st.Mode == chunker.ModeCode {
		return Payload{Text: Fence(page, st.Language), Format: FormatMarkdown}
	}
	return Payload{Text: page, Format: FormatHTML}
}

// Plain returns the same text without markup interpretation.
func Plain(p Payload) Payload {
	return Payload{Text: p.Text, Format: FormatPlain}
}

// Fence wraps code in a Markdown code fence.
func Fence(code, language string) string {
	if chunker.Len(language) > config.MaxFenceLanguage {
		language = FallbackLanguage
	}
	var b strings.Builder
	b.Grow(len(code) + len(language) + 8)
	b.WriteString("```")
	b.WriteString(language)
	b.WriteByte('\n')
	b.WriteString(code)
	b.WriteString("\n```")
	return b.String()
}
