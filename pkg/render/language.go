package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// FallbackLanguage tags code whose language could not be determined.
const FallbackLanguage = "text"

// ExtractCode unwraps an answer that is a single fenced block and returns the fence
// tag. Anything else is returned unchanged with an empty tag.
func ExtractCode(answer string) (code, tag string) {
	trimmed := strings.TrimSpace(answer)
	if !strings.HasPrefix(trimmed, "```") {
		return answer, ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return answer, ""
	}
	body := lines[1 : len(lines)-1]
	for _, line := range body {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			return answer, ""
		}
	}

	tag = strings.TrimSpace(strings.TrimPrefix(lines[0], "```"))
	if i := strings.IndexAny(tag, " \t{"); i >= 0 {
		tag = tag[:i]
	}
	return strings.Join(body, "\n"), tag
}

// DetectLanguage returns a fence tag for code. A non-empty hint is normalized through
// the lexer registry; otherwise the language is guessed from the source.
func DetectLanguage(code, hint string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		if lexer := lexers.Get(hint); lexer != nil {
			return tagOf(lexer.Config().Name, lexer.Config().Aliases)
		}
		return strings.ToLower(hint)
	}
	if lexer := lexers.Analyse(code); lexer != nil {
		return tagOf(lexer.Config().Name, lexer.Config().Aliases)
	}
	return FallbackLanguage
}

func tagOf(name string, aliases []string) string {
	if len(aliases) > 0 {
		return aliases[0]
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", ""))
}
