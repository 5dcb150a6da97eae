package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"relaybot/pkg/chunker"
)

// Document is an uploaded file. Open is called at most once.
type Document struct {
	Name    string
	MIME    string
	Size    int64
	Caption string
	Open    func(ctx context.Context) (io.ReadCloser, error)
}

var (
	errNotText  = errors.New("document is not plain text")
	errTooLarge = errors.New("document exceeds size limit")
)

//nolint:gochecknoglobals // Static lookup table
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".tsv": true, ".log": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".xml": true,
	".html": true, ".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".c": true, ".h": true, ".cpp": true, ".rs": true, ".rb": true, ".sh": true, ".sql": true,
}

// isTextDocument accepts text/* MIME types and well-known text extensions.
func isTextDocument(doc *Document) bool {
	if mediaType, _, err := mime.ParseMediaType(doc.MIME); err == nil {
		if strings.HasPrefix(mediaType, "text/") {
			return true
		}
		switch mediaType {
		case "application/json", "application/xml", "application/x-yaml", "application/x-sh":
			return true
		}
	}
	return textExtensions[strings.ToLower(filepath.Ext(doc.Name))]
}

// readText reads at most limit bytes of UTF-8 text.
func readText(ctx context.Context, doc *Document, limit int) (string, error) {
	rc, err := doc.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, int64(limit)+1))
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	if len(data) > limit {
		return "", errTooLarge
	}
	if !utf8.Valid(data) {
		return "", errNotText
	}
	return string(data), nil
}

func (d *Dispatcher) handleDocument(ctx context.Context, req Request) {
	doc := req.Document
	limit := d.cfg.Files.MaxBytes
	switch {
	case !isTextDocument(doc):
		d.notify(ctx, req.ChatID, MsgUnsupported)
		return
	case doc.Size > int64(limit):
		d.notify(ctx, req.ChatID, MsgFileTooLarge)
		return
	}

	text, err := readText(ctx, doc, limit)
	switch {
	case errors.Is(err, errTooLarge):
		d.notify(ctx, req.ChatID, MsgFileTooLarge)
		return
	case errors.Is(err, errNotText):
		d.notify(ctx, req.ChatID, MsgUnsupported)
		return
	case err != nil:
		d.logger.Warn("chat %d: %v", req.ChatID, err)
		d.notify(ctx, req.ChatID, MsgInternal)
		return
	}
	if strings.TrimSpace(text) == "" {
		d.notify(ctx, req.ChatID, MsgEmptyFile)
		return
	}

	instruction := strings.TrimSpace(req.Document.Caption)
	if instruction == "" {
		instruction = "Summarize this document."
	}
	prompt := fmt.Sprintf("%s\n\nDocument %q:\n\n%s", instruction, doc.Name, text)
	messages := d.conversation(req.ChatID, fileSystemPrompt, prompt)

	b := d.cfg.Budgets
	answer, ok := d.call(ctx, req.ChatID, d.cfg.Models.File, messages, b.FileMaxTokens, float32(b.ChatTemperature))
	if !ok {
		return
	}
	d.history.AppendExchange(req.ChatID, fmt.Sprintf("%s [document %s]", instruction, doc.Name), answer)
	d.deliver(ctx, req.ChatID, answer, chunker.ModeProse, "")
}
