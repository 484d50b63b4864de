package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/loqalabs/voicechat/internal/execcmd"
)

// ErrUnsupported is returned when a document type cannot be read.
var ErrUnsupported = errors.New("unsupported document type")

// ErrEmpty is returned when a document contains no text.
var ErrEmpty = errors.New("document contains no text")

// Document is an uploaded file.
type Document struct {
	Name string
	Data []byte
}

// Extractor turns a document into plain text.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (string, error)
}

var textExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".markdown": {}, ".csv": {}, ".json": {}, ".yaml": {},
	".yml": {}, ".log": {}, ".html": {}, ".xml": {}, ".go": {}, ".rst": {},
}

// IsText reports whether doc looks like a UTF-8 text document.
func IsText(doc Document) bool {
	if _, ok := textExtensions[strings.ToLower(filepath.Ext(doc.Name))]; ok {
		return utf8.Valid(doc.Data)
	}
	ct := http.DetectContentType(doc.Data)
	return strings.HasPrefix(ct, "text/") && utf8.Valid(doc.Data)
}

// Plain reads UTF-8 text documents as-is.
type Plain struct{}

func (Plain) Extract(_ context.Context, doc Document) (string, error) {
	if !IsText(doc) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, doc.Name)
	}
	text := strings.TrimSpace(string(doc.Data))
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Command pipes non-text documents through an external converter such as
// "pdftotext - -". Text documents are read directly.
type Command struct {
	cmd *execcmd.Command
}

func NewCommand(command string) (*Command, error) {
	cmd, err := execcmd.Parse("extract", command)
	if err != nil {
		return nil, err
	}
	return &Command{cmd: cmd}, nil
}

func (c *Command) Extract(ctx context.Context, doc Document) (string, error) {
	if IsText(doc) {
		return Plain{}.Extract(ctx, doc)
	}
	out, err := c.cmd.Run(ctx, doc.Data)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// New returns a Command extractor when command is set and Plain otherwise.
func New(command string) (Extractor, error) {
	if strings.TrimSpace(command) == "" {
		return Plain{}, nil
	}
	return NewCommand(command)
}

// Truncate shortens text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
