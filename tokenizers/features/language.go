package features

import "strings"

// Language holds the language-dependent capabilities of the tagger, resolved once when a
// model is built.
type Language struct {
	// Code is the ISO 639-1 code, e.g. "en".
	Code string

	// NoWhitespaceSegmentation is set for languages written without spaces between words
	// (scriptio continua): every character is then a potential token boundary.
	NoWhitespaceSegmentation bool
}

var scriptioContinua = map[string]bool{
	"zh": true,
	"ja": true,
	"th": true,
	"lo": true,
	"km": true,
	"my": true,
	"bo": true,
}

// NewLanguage resolves the capabilities of the given ISO code.
func NewLanguage(code string) Language {
	code = strings.ToLower(strings.TrimSpace(code))
	return Language{
		Code:                     code,
		NoWhitespaceSegmentation: scriptioContinua[code],
	}
}
