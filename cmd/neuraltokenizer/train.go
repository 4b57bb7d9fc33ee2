package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/gomlx/go-neuraltokenizer/dataset"
	"github.com/gomlx/go-neuraltokenizer/internal/config"
	"github.com/gomlx/go-neuraltokenizer/internal/files"
	"github.com/gomlx/go-neuraltokenizer/models/boundary"
	"github.com/gomlx/go-neuraltokenizer/training"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newTrainCmd(cfg config.Config) *cobra.Command {
	var (
		model       modelFlags
		language    string
		trainPaths  []string
		validPath   string
		resume      bool
		shuffle     bool
		modelConfig = boundary.DefaultConfig(cfg.Language)
		options     = training.DefaultOptions()
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a boundary model on annotated datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (config.Config{ModelPath: model.path}).RequireModel(); err != nil {
				return err
			}
			if len(trainPaths) == 0 {
				return errors.New("no training dataset: use --train")
			}
			var train dataset.Dataset
			for _, path := range trainPaths {
				d, err := dataset.Load(path)
				if err != nil {
					return err
				}
				train = append(train, d...)
			}
			if validPath != "" {
				d, err := dataset.Load(validPath)
				if err != nil {
					return err
				}
				options.Validation = d
			}

			var m *boundary.Model
			var err error
			if resume && files.Exists(model.path) {
				m, err = boundary.Load(model.path)
				klog.Infof("Resuming training of %q", model.path)
			} else {
				modelConfig.Language = language
				m, err = boundary.New(modelConfig)
			}
			if err != nil {
				return err
			}
			if err := model.applyAbbreviations(m); err != nil {
				return err
			}

			options.ModelPath = model.path
			if shuffle {
				options.Shuffler = rand.New(rand.NewPCG(modelConfig.Seed, modelConfig.Seed+1))
			}
			helper, err := training.New(m, options)
			if err != nil {
				return err
			}
			history, err := helper.Train(cmd.Context(), train)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Training run %s", helper.RunID)))
			for _, stats := range history {
				line := fmt.Sprintf("epoch %d: loss %.5f over %d windows", stats.Epoch, stats.Loss, stats.Windows)
				if stats.Validation != nil {
					line += ", " + stats.Validation.String()
				}
				if stats.Saved {
					line += mutedStyle.Render(" (saved)")
				}
				_, _ = fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	model.register(cmd, cfg)
	flags := cmd.Flags()
	flags.StringVarP(&language, "language", "l", cfg.Language, "ISO 639-1 code of the text language")
	flags.StringSliceVar(&trainPaths, "train", nil, "Training datasets (.json or .parquet), comma separated or repeated")
	flags.StringVar(&validPath, "validation", "", "Validation dataset: the model is saved only when the validation metric improves")
	flags.BoolVar(&resume, "resume", false, "Continue training the model at --model, if it exists")
	flags.BoolVar(&shuffle, "shuffle", true, "Shuffle the training sentences at every epoch")
	flags.IntVar(&options.Epochs, "epochs", options.Epochs, "Number of epochs")
	flags.IntVar(&options.BatchSize, "batch-size", options.BatchSize, "Number of windows per optimizer update")
	flags.Float64Var(&options.LearningRate, "learning-rate", options.LearningRate, "Adam learning rate")
	flags.IntVar(&modelConfig.MaxSegmentSize, "max-segment-size", modelConfig.MaxSegmentSize, "Window size, in characters")
	flags.IntVar(&modelConfig.CharEmbeddingsSize, "char-embeddings-size", modelConfig.CharEmbeddingsSize, "Size of the character embeddings")
	flags.IntVar(&modelConfig.HiddenSize, "hidden-size", modelConfig.HiddenSize, "Size of the recurrent encoder state")
	flags.Uint64Var(&modelConfig.Seed, "seed", modelConfig.Seed, "Random seed for initialization and shuffling")
	return cmd
}
