// Package textsource extracts the plain text to tokenize from documents: plain text, Markdown,
// PDF and DOCX files.
//
// Paragraphs (or PDF pages) are separated by an empty line, so that the tokenizer sees a
// whitespace boundary between them. Text extracted from Markdown, PDF and DOCX documents is
// normalized to NFC, so accented letters are single characters for the tokenizer. Plain text
// is returned unchanged, so that offsets into it are offsets into the file.
package textsource

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
	"k8s.io/klog/v2"
)

const paragraphSeparator = "\n\n"

// SupportedExtensions lists the file extensions that can be read.
var SupportedExtensions = []string{".txt", ".text", ".md", ".markdown", ".pdf", ".docx"}

// ReadFile extracts the text of the file, based on its extension.
func ReadFile(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	content, err := Read(f, filePath)
	if err != nil {
		return "", errors.WithMessagef(err, "reading %q", filePath)
	}
	return content, nil
}

// Read extracts the text from r, whose format is given by the extension of filename.
func Read(r io.Reader, filename string) (string, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "failed to read document")
	}
	var content string
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".txt", ".text", "":
		return string(src), nil
	case ".md", ".markdown":
		content = markdownText(src)
	case ".pdf":
		content, err = pdfText(src)
	case ".docx":
		content, err = docxText(src)
	default:
		return "", errors.Errorf("unsupported document extension %q (supported: %s)", ext, strings.Join(SupportedExtensions, ", "))
	}
	if err != nil {
		return "", err
	}
	return norm.NFC.String(content), nil
}

// markdownText returns the text of the Markdown blocks, without markup.
func markdownText(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var paragraphs []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		paragraphs = appendBlockText(paragraphs, n, src)
	}
	return strings.Join(paragraphs, paragraphSeparator)
}

// appendBlockText appends the text of the leaf blocks under n.
func appendBlockText(paragraphs []string, n ast.Node, src []byte) []string {
	switch n.Kind() {
	case ast.KindList, ast.KindListItem, ast.KindBlockquote:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			paragraphs = appendBlockText(paragraphs, c, src)
		}
		return paragraphs
	case ast.KindThematicBreak, ast.KindHTMLBlock:
		return paragraphs
	}
	if t := inlineText(n, src); t != "" {
		paragraphs = append(paragraphs, t)
	}
	return paragraphs
}

func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Kind() == ast.KindCodeBlock || n.Kind() == ast.KindFencedCodeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		if s, ok := c.(*ast.String); ok {
			buf.Write(s.Value)
			continue
		}
		buf.WriteString(inlineText(c, src))
	}
	return strings.TrimSpace(buf.String())
}

// pdfText returns the plain text of each page. Unreadable pages are skipped.
func pdfText(src []byte) (string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse pdf")
	}
	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			klog.Warningf("Skipping pdf page %d: %v", i, err)
			continue
		}
		if content = strings.TrimSpace(content); content != "" {
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, paragraphSeparator), nil
}

// docxText returns the text of the document paragraphs.
func docxText(src []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse docx")
	}
	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		var buf strings.Builder
		for _, child := range para.Children {
			run, ok := child.(*docx.Run)
			if !ok {
				continue
			}
			for _, rc := range run.Children {
				if t, ok := rc.(*docx.Text); ok {
					buf.WriteString(t.Text)
				}
			}
		}
		if t := strings.TrimSpace(buf.String()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	return strings.Join(paragraphs, paragraphSeparator), nil
}
