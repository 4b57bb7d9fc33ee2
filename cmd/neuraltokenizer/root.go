package main

import (
	"flag"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/go-neuraltokenizer/internal/config"
	"github.com/gomlx/go-neuraltokenizer/models/boundary"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/abbreviations"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	headingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sentenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle    = lipgloss.NewStyle().Faint(true)
)

func newRootCmd(cfg config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neuraltokenizer",
		Short: "Neural sentence and token boundary tagger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			return cfg.Validate()
		},
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		newTrainCmd(cfg),
		newEvaluateCmd(cfg),
		newTokenizeCmd(cfg),
		newServeCmd(cfg),
		newDatasetCmd(cfg),
	)
	return rootCmd
}

// modelFlags are the flags shared by the commands that load a model.
type modelFlags struct {
	path          string
	abbreviations string
}

func (f *modelFlags) register(cmd *cobra.Command, cfg config.Config) {
	cmd.Flags().StringVarP(&f.path, "model", "m", cfg.ModelPath, "Boundary model file")
	cmd.Flags().StringVar(&f.abbreviations, "abbreviations", "",
		"File with one abbreviation per line, replacing the built-in table of the model language "+
			"(built-in: "+strings.Join(abbreviations.Languages(), ", ")+")")
}

func (f *modelFlags) load() (*boundary.Model, error) {
	if err := (config.Config{ModelPath: f.path}).RequireModel(); err != nil {
		return nil, err
	}
	model, err := boundary.Load(f.path)
	if err != nil {
		return nil, err
	}
	if err := f.applyAbbreviations(model); err != nil {
		return nil, err
	}
	klog.V(1).Infof("Loaded %q model from %q (run %s)", model.Language().Code, f.path, model.RunID)
	return model, nil
}

func (f *modelFlags) applyAbbreviations(model *boundary.Model) error {
	if f.abbreviations == "" {
		if abbreviations.ForLanguage(model.Language().Code) == nil {
			klog.Warningf("No abbreviation table for language %q (built-in: %s): abbreviation features disabled, use --abbreviations to provide one",
				model.Language().Code, strings.Join(abbreviations.Languages(), ", "))
		}
		return nil
	}
	table, err := abbreviations.LoadFile(f.abbreviations)
	if err != nil {
		return errors.WithMessage(err, "--abbreviations")
	}
	model.SetAbbreviations(table)
	return nil
}
