// Package chunker splits generated text into pages that fit a chat message.
//
// Prose is packed line by line. Code is first grouped into blocks (a line with no
// leading whitespace and everything indented under it) and whole blocks are packed,
// so a function or class body is only split when it alone exceeds the page size.
// Lines are never split; a single line longer than the page size gets a page of its own.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode selects the splitting strategy and, later, how a page is rendered.
type Mode int

const (
	ModeProse Mode = iota
	ModeCode
)

func (m Mode) String() string {
	if m == ModeCode {
		return "code"
	}
	return "prose"
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeCode {
		return ModeProse
	}
	return ModeCode
}

// ParseMode parses "code" or "prose".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prose", "":
		return ModeProse, nil
	case "code":
		return ModeCode, nil
	default:
		return ModeProse, fmt.Errorf("unknown render mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Len is the page length measure: characters, not bytes.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Split divides text into pages of at most pageSize characters. It always returns at
// least one page. A pageSize of zero or less disables splitting.
//
// Pages keep every line of the text, blank lines included, so joining them with
// "\n" gives the text back. The one exception is a run of blank lines too long to
// share a page with anything visible: such a page is dropped.
func Split(text string, pageSize int, mode Mode) []string {
	text = strings.TrimRightFunc(strings.ReplaceAll(text, "\r\n", "\n"), unicode.IsSpace)
	text = trimLeadingBlankLines(text)
	if pageSize <= 0 || Len(text) <= pageSize {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	var pages []string
	if mode == ModeCode {
		pages = packBlocks(blocks(lines), pageSize)
	} else {
		pages = packLines(lines, pageSize)
	}
	return tidy(pages)
}

// packer accumulates lines into pages.
type packer struct {
	size  int
	pages []string
	cur   []string
	n     int
}

func (p *packer) add(text string) {
	n := Len(text)
	if len(p.cur) > 0 {
		if p.n+1+n > p.size {
			p.flush()
		} else {
			n++
		}
	}
	p.cur = append(p.cur, text)
	p.n += n
}

func (p *packer) flush() {
	if len(p.cur) == 0 {
		return
	}
	p.pages = append(p.pages, strings.Join(p.cur, "\n"))
	p.cur = nil
	p.n = 0
}

func packLines(lines []string, size int) []string {
	p := &packer{size: size}
	for _, line := range lines {
		p.add(line)
	}
	p.flush()
	return p.pages
}

func packBlocks(blocks [][]string, size int) []string {
	p := &packer{size: size}
	for _, block := range blocks {
		text := strings.Join(block, "\n")
		if Len(text) > size {
			p.flush()
			pages := packLines(block, size)
			// Trailing blank lines of a split block open the next page.
			if last := pages[len(pages)-1]; len(pages) > 1 && strings.TrimSpace(last) == "" {
				pages = pages[:len(pages)-1]
				p.cur = strings.Split(last, "\n")
				p.n = Len(last)
			}
			p.pages = append(p.pages, pages...)
			continue
		}
		p.add(text)
	}
	p.flush()
	return p.pages
}

// blocks groups code lines. A block starts at a line with no leading whitespace;
// blank lines, indented lines and closing brackets continue the current block.
func blocks(lines []string) [][]string {
	var out [][]string
	var cur []string
	for _, line := range lines {
		if len(cur) > 0 && startsBlock(line) {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func startsBlock(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(line)
	if unicode.IsSpace(r) {
		return false
	}
	switch r {
	case '}', ')', ']':
		return false
	}
	return true
}

// tidy drops pages with nothing visible.
func tidy(pages []string) []string {
	out := pages[:0]
	for _, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		out = append(out, page)
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func trimLeadingBlankLines(s string) string {
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 || strings.TrimSpace(s[:i]) != "" {
			return s
		}
		s = s[i+1:]
	}
}
