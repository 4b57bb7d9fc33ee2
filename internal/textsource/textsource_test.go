package textsource

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	content, err := Read(strings.NewReader("Hello world.\nBye!"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.\nBye!", content)

	// Plain text is not normalized: offsets must match the input.
	content, err = Read(strings.NewReader("Citta\u0300 e\u0301"), "decomposed.txt")
	require.NoError(t, err)
	assert.Equal(t, "Citta\u0300 e\u0301", content)
	assert.Len(t, []rune(content), 9)

	filePath := filepath.Join(t.TempDir(), "input")
	require.NoError(t, os.WriteFile(filePath, []byte("No extension."), 0o644))
	content, err = ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "No extension.", content)
}

func TestMarkdown(t *testing.T) {
	input := "# Title\n\nIntro *text* with a [link](http://example.com).\n\n" +
		"- first item\n- second item\n\n> Quoted.\n\n---\n\n```\ncode();\n```\n"
	content, err := Read(strings.NewReader(input), "doc.MD")
	require.NoError(t, err)
	assert.Equal(t, "Title\n\nIntro text with a link.\n\nfirst item\n\nsecond item\n\nQuoted.\n\ncode();", content)

	content, err = Read(strings.NewReader("Citta\u0300 e\u0301"), "decomposed.md")
	require.NoError(t, err)
	assert.Equal(t, "Città é", content)
	assert.Len(t, []rune(content), 7)
}

func TestDocx(t *testing.T) {
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("First paragraph.")
	w.AddParagraph()
	w.AddParagraph().AddText("  Second  ")
	w.AddParagraph().AddText("Third.")
	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)

	content, err := Read(&buf, "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\n\nSecond\n\nThird.", content)
}

func TestErrors(t *testing.T) {
	_, err := Read(strings.NewReader("a,b"), "table.csv")
	require.Error(t, err)
	_, err = Read(strings.NewReader("not a pdf"), "broken.pdf")
	require.Error(t, err)
	_, err = Read(strings.NewReader("not a docx"), "broken.docx")
	require.Error(t, err)
	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
