package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gomlx/go-neuraltokenizer/internal/config"
	"github.com/gomlx/go-neuraltokenizer/internal/textsource"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/segmenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTokenizeCmd(cfg config.Config) *cobra.Command {
	var (
		model          modelFlags
		maxSegmentSize int
		spaceTokens    bool
		asJSON         bool
	)
	cmd := &cobra.Command{
		Use:   "tokenize [FILE...]",
		Short: "Split documents into sentences and tokens",
		Long: "Split documents into sentences and tokens. Files can be plain text, Markdown, PDF or DOCX; " +
			"with no files the text is read from the standard input.\n\n" +
			"Positions are character offsets into the input for plain text. For Markdown, PDF and DOCX " +
			"they are offsets into the extracted text, normalized to NFC.",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := model.load()
			if err != nil {
				return err
			}
			options := []segmenter.Option{segmenter.WithSpaceTokens(spaceTokens)}
			if maxSegmentSize > 0 {
				options = append(options, segmenter.WithMaxSegmentSize(maxSegmentSize))
			}
			tokenizer := segmenter.New(m, options...)

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				content, err := textsource.Read(cmd.InOrStdin(), "")
				if err != nil {
					return errors.WithMessage(err, "standard input")
				}
				return printSentences(out, "", tokenizer.Tokenize(content), asJSON)
			}
			for _, path := range args {
				content, err := textsource.ReadFile(path)
				if err != nil {
					return err
				}
				if err := printSentences(out, path, tokenizer.Tokenize(content), asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}
	model.register(cmd, cfg)
	flags := cmd.Flags()
	flags.IntVar(&maxSegmentSize, "max-segment-size", 0, "Window size, in characters (default: the model's)")
	flags.BoolVar(&spaceTokens, "space-tokens", false, "Emit whitespace characters inside sentences as tokens")
	flags.BoolVar(&asJSON, "json", false, "Print the sentences as JSON")
	return cmd
}

// documentJSON is the JSON output of one document.
type documentJSON struct {
	File      string         `json:"file,omitempty"`
	Sentences []api.Sentence `json:"sentences"`
}

func printSentences(w io.Writer, file string, sentences []api.Sentence, asJSON bool) error {
	if asJSON {
		if sentences == nil {
			sentences = []api.Sentence{}
		}
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return errors.Wrap(enc.Encode(documentJSON{File: file, Sentences: sentences}), "failed to write JSON")
	}

	if file != "" {
		_, _ = fmt.Fprintln(w, headingStyle.Render(file))
	}
	separator := mutedStyle.Render(" | ")
	for _, sentence := range sentences {
		forms := make([]string, 0, len(sentence.Tokens))
		for _, token := range sentence.Tokens {
			if token.IsSpace {
				continue
			}
			forms = append(forms, token.Form)
		}
		_, _ = fmt.Fprintf(w, "%s %s\n",
			mutedStyle.Render(fmt.Sprintf("[%d:%d]", sentence.Position.Start, sentence.Position.End)),
			sentenceStyle.Render(strings.Join(forms, separator)))
	}
	return nil
}
