package main

import (
	"fmt"

	"github.com/gomlx/go-neuraltokenizer/dataset"
	"github.com/gomlx/go-neuraltokenizer/internal/config"
	"github.com/gomlx/go-neuraltokenizer/internal/textsource"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/segmenter"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newDatasetCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect and convert annotated datasets",
	}

	convertCmd := &cobra.Command{
		Use:   "convert INPUT OUTPUT",
		Short: "Convert a dataset between the JSON and Parquet formats, based on the file extensions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dataset.Load(args[0])
			if err != nil {
				return err
			}
			if err := d.Save(args[1]); err != nil {
				return err
			}
			klog.Infof("Converted %d sentences from %q to %q", len(d), args[0], args[1])
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats DATASET...",
		Short: "Print the number of sentences, characters and boundaries of datasets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, path := range args {
				d, err := dataset.Load(path)
				if err != nil {
					return err
				}
				var counts [api.NumCharClasses]int
				for _, s := range d {
					for _, c := range s.Classes {
						counts[c]++
					}
				}
				_, _ = fmt.Fprintln(out, headingStyle.Render(path))
				_, _ = fmt.Fprintf(out, "sentences: %d\ncharacters: %d\n", len(d), d.NumChars())
				for c, n := range counts {
					_, _ = fmt.Fprintf(out, "%s: %d\n", api.CharClass(c), n)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(convertCmd, statsCmd, newAnnotateCmd(cfg))
	return cmd
}

func newAnnotateCmd(cfg config.Config) *cobra.Command {
	var (
		model  modelFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "annotate DOCUMENT...",
		Short: "Tokenize documents with a model and save the result as an annotated dataset",
		Long: "Tokenize documents with a model and save the result as an annotated dataset, one entry per " +
			"sentence, to be corrected by hand and used as training data.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := model.load()
			if err != nil {
				return err
			}
			tokenizer := segmenter.New(m)
			var d dataset.Dataset
			for _, path := range args {
				content, err := textsource.ReadFile(path)
				if err != nil {
					return err
				}
				sentences := tokenizer.Tokenize(content)
				d = append(d, splitSentences(dataset.Annotate(content, sentences), sentences)...)
			}
			if err := d.Save(output); err != nil {
				return err
			}
			klog.Infof("Annotated %d sentences from %d documents into %q", len(d), len(args), output)
			return nil
		},
	}
	model.register(cmd, cfg)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Dataset file to write (.json or .parquet)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// splitSentences cuts the annotated document into one entry per sentence: each entry runs up
// to the start of the next sentence, so the entries merge back into the whole document.
func splitSentences(document dataset.AnnotatedSentence, sentences []api.Sentence) dataset.Dataset {
	runes := []rune(document.Text)
	var d dataset.Dataset
	start := 0
	for i := range sentences {
		end := len(runes)
		if i+1 < len(sentences) {
			end = sentences[i+1].Position.Start
		}
		d = append(d, dataset.AnnotatedSentence{Text: string(runes[start:end]), Classes: document.Classes[start:end]})
		start = end
	}
	return d
}
