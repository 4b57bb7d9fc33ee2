// Package abbreviations holds per-language sets of known abbreviations (e.g. "mr.", "e.g."),
// used to tell an abbreviation's period apart from a sentence-final one.
//
// Tables for a few languages are embedded in the binary (see data/<iso code>.txt); others
// can be loaded from files with one abbreviation per line.
package abbreviations

import (
	"bufio"
	"embed"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
)

//go:embed data/*.txt
var embedded embed.FS

// Table is a set of abbreviations of one language. Entries are stored case-folded.
//
// A Table is read-only after construction and safe for concurrent use.
type Table struct {
	entries map[string]struct{}
	maxLen  int // in runes
}

// ForLanguage returns the embedded table for the given ISO 639-1 code, or nil if there is
// none. A nil *Table is valid and contains nothing.
func ForLanguage(language string) *Table {
	f, err := embedded.Open("data/" + strings.ToLower(language) + ".txt")
	if err != nil {
		return nil
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil
	}
	return t
}

// Languages lists the ISO codes of the embedded tables.
func Languages() []string {
	entries, err := fs.ReadDir(embedded, "data")
	if err != nil {
		return nil
	}
	codes := make([]string, 0, len(entries))
	for _, e := range entries {
		codes = append(codes, strings.TrimSuffix(e.Name(), ".txt"))
	}
	return codes
}

// LoadFile reads a table from a file with one abbreviation per line.
func LoadFile(filePath string) (*Table, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open abbreviations file %q", filePath)
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading abbreviations file %q", filePath)
	}
	return t, nil
}

// Read a table from r, one abbreviation per line. Blank lines are ignored.
func Read(r io.Reader) (*Table, error) {
	var entries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan abbreviations")
	}
	return New(entries...), nil
}

// New creates a table with the given entries.
func New(entries ...string) *Table {
	t := &Table{entries: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		folded := fold(e)
		t.entries[folded] = struct{}{}
		t.maxLen = max(t.maxLen, utf8.RuneCountInString(folded))
	}
	return t
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// MaxLen is the length in runes of the longest entry.
func (t *Table) MaxLen() int {
	if t == nil {
		return 0
	}
	return t.maxLen
}

// Contains reports whether s, compared case-insensitively, is in the table.
func (t *Table) Contains(s string) bool {
	if t == nil {
		return false
	}
	_, found := t.entries[fold(s)]
	return found
}

// IsEndOfAbbreviation reports whether text[i] is the period closing a known abbreviation.
//
// The candidate starts after the closest whitespace before i, but it is never longer than the
// longest entry of the table: the search backwards stops there.
func (t *Table) IsEndOfAbbreviation(text []rune, i int) bool {
	if t == nil || i <= 0 || i >= len(text) || text[i] != '.' {
		return false
	}
	start := i
	for start > 0 && i-start+1 < t.maxLen && !api.IsSpacing(text[start-1]) {
		start--
	}
	return t.Contains(string(text[start : i+1]))
}

func fold(s string) string {
	return cases.Fold().String(s)
}
