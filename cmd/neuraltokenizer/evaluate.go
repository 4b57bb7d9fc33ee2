package main

import (
	"fmt"

	"github.com/gomlx/go-neuraltokenizer/dataset"
	"github.com/gomlx/go-neuraltokenizer/evaluation"
	"github.com/gomlx/go-neuraltokenizer/internal/config"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/segmenter"
	"github.com/spf13/cobra"
)

func newEvaluateCmd(cfg config.Config) *cobra.Command {
	var (
		model          modelFlags
		maxSegmentSize int
	)
	cmd := &cobra.Command{
		Use:   "evaluate DATASET...",
		Short: "Evaluate a boundary model on annotated datasets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := model.load()
			if err != nil {
				return err
			}
			var options []segmenter.Option
			if maxSegmentSize > 0 {
				options = append(options, segmenter.WithMaxSegmentSize(maxSegmentSize))
			}
			tokenizer := segmenter.New(m, options...)

			out := cmd.OutOrStdout()
			for _, path := range args {
				d, err := dataset.Load(path)
				if err != nil {
					return err
				}
				result, err := evaluation.Evaluate(tokenizer, d)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%s (%d sentences)", path, len(d))))
				result.Report(out)
				_, _ = fmt.Fprintln(out)
			}
			return nil
		},
	}
	model.register(cmd, cfg)
	cmd.Flags().IntVar(&maxSegmentSize, "max-segment-size", 0, "Window size, in characters (default: the model's)")
	return cmd
}
