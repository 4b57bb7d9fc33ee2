// Package training trains boundary models on annotated datasets.
//
// Each epoch concatenates the (optionally shuffled) dataset into one text, and slides a window
// over it the same way the segmenter does at inference, except that the next window start is
// decided by the gold labels. Gradients of the windows are accumulated and applied once per
// batch.
package training

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/gomlx/go-neuraltokenizer/dataset"
	"github.com/gomlx/go-neuraltokenizer/evaluation"
	"github.com/gomlx/go-neuraltokenizer/models/boundary"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/api"
	"github.com/gomlx/go-neuraltokenizer/tokenizers/segmenter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Options of a training run.
type Options struct {
	// BatchSize is the number of windows whose gradients are accumulated before each update.
	BatchSize int

	Epochs int

	// LearningRate, Beta1 and Beta2 of the Adam optimizer.
	LearningRate, Beta1, Beta2 float64

	// Shuffler, if set, shuffles the sentences at the start of every epoch.
	Shuffler *rand.Rand

	// Validation set, evaluated after every epoch. If set, the model is saved only when the
	// combined metric improves.
	Validation dataset.Dataset

	// ModelPath where the model is saved. If empty the model is not saved.
	ModelPath string
}

// DefaultOptions returns the default training options.
func DefaultOptions() Options {
	return Options{
		BatchSize:    32,
		Epochs:       10,
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
	}
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch   int
	Windows int
	Loss    float64 // mean loss per window

	// Validation is set if a validation set was given.
	Validation *evaluation.Result

	// Saved is true if the model was saved after this epoch.
	Saved bool
}

// Helper trains one model. Create it with New.
type Helper struct {
	model     *boundary.Model
	options   Options
	optimizer *boundary.Adam
	grads     *boundary.Gradients

	// RunID identifies the run: it's stored in the saved model and logged.
	RunID string

	best float64
}

// New creates a Helper that trains model.
func New(model *boundary.Model, options Options) (*Helper, error) {
	if options.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", options.BatchSize)
	}
	if options.Epochs <= 0 {
		return nil, errors.Errorf("number of epochs must be positive, got %d", options.Epochs)
	}
	if options.LearningRate <= 0 {
		return nil, errors.Errorf("learning rate must be positive, got %g", options.LearningRate)
	}
	if err := options.Validation.Validate(); err != nil {
		return nil, errors.WithMessage(err, "validation set")
	}
	optimizer := boundary.NewAdam(options.LearningRate)
	if options.Beta1 > 0 {
		optimizer.Beta1 = options.Beta1
	}
	if options.Beta2 > 0 {
		optimizer.Beta2 = options.Beta2
	}
	return &Helper{
		model:     model,
		options:   options,
		optimizer: optimizer,
		grads:     boundary.NewGradients(model),
		RunID:     uuid.NewString(),
		best:      -1,
	}, nil
}

// Train runs all epochs over d. It fails with dataset.ErrInvalidDataset if d is invalid, and
// stops between windows if ctx is cancelled.
func (h *Helper) Train(ctx context.Context, d dataset.Dataset) ([]EpochStats, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	h.model.RunID = h.RunID
	klog.Infof("Training run %s: %d sentences, %d epochs, batch size %d", h.RunID, len(d), h.options.Epochs, h.options.BatchSize)
	var history []EpochStats
	for epoch := range h.options.Epochs {
		stats, err := h.Epoch(ctx, epoch, d)
		if err != nil {
			return history, err
		}
		history = append(history, stats)
	}
	return history, nil
}

// Epoch runs one epoch over d, followed by validation and checkpointing.
func (h *Helper) Epoch(ctx context.Context, epoch int, d dataset.Dataset) (EpochStats, error) {
	start := time.Now()
	if h.options.Shuffler != nil {
		d = d.Shuffled(h.options.Shuffler)
	}
	merged, err := d.Merge()
	if err != nil {
		return EpochStats{}, err
	}

	stats := EpochStats{Epoch: epoch}
	var totalLoss float64
	cursor := segmenter.NewCursor(len(merged.Text), h.model.MaxSegmentSize())
	for {
		window, ok := cursor.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, errors.Wrapf(err, "epoch %d interrupted", epoch)
		}
		totalLoss += h.step(merged.Text, merged.Classes, window)
		stats.Windows++
		cursor.Advance(NextWindowStart(merged.Classes, window))
	}
	h.flush()
	if stats.Windows > 0 {
		stats.Loss = totalLoss / float64(stats.Windows)
	}
	klog.Infof("Epoch %d: %d windows, loss %.5f, %d characters known, %s",
		epoch, stats.Windows, stats.Loss, h.model.Embeddings().Len(), time.Since(start).Round(time.Millisecond))

	if err := h.checkpoint(&stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// step runs forward and backward over one window, and applies the update if the batch is full.
// It returns the window loss.
func (h *Helper) step(text []rune, classes []api.CharClass, window segmenter.Window) float64 {
	gold := classes[window.Start:window.End]
	pass := h.model.Forward(text, window.Start, window.End, true)
	loss := pass.Loss(gold)
	pass.Backward(pass.OutputErrors(gold), h.grads)
	if h.grads.Count >= h.options.BatchSize {
		h.flush()
	}
	return loss
}

// flush applies the accumulated gradients, if any.
func (h *Helper) flush() {
	if h.grads.Count == 0 {
		return
	}
	if klog.V(1).Enabled() {
		klog.Infof("Update %d: batch of %d windows", h.optimizer.Step()+1, h.grads.Count)
	}
	h.optimizer.Update(h.model, h.grads, h.grads.Count)
	h.grads.Reset()
}

func (h *Helper) checkpoint(stats *EpochStats) error {
	if len(h.options.Validation) > 0 {
		result, err := evaluation.Evaluate(segmenter.New(h.model), h.options.Validation)
		if err != nil {
			return errors.WithMessage(err, "validation")
		}
		stats.Validation = &result
		klog.Infof("Epoch %d validation: %s", stats.Epoch, result)
		if result.Combined() <= h.best {
			return nil
		}
		h.best = result.Combined()
	}
	if h.options.ModelPath == "" {
		return nil
	}
	if err := h.model.Save(h.options.ModelPath); err != nil {
		return err
	}
	stats.Saved = true
	klog.Infof("Epoch %d: model saved to %q", stats.Epoch, h.options.ModelPath)
	return nil
}

// NextWindowStart decides where the window after window starts, from the gold classes: right
// after the last sentence boundary of the window if there is one, else right after the
// boundary nearest to the middle of the window, else in the middle of the window.
func NextWindowStart(classes []api.CharClass, window segmenter.Window) int {
	if window.End >= len(classes) {
		return window.End
	}
	for i := window.End - 1; i >= window.Start; i-- {
		if classes[i] == api.SentenceBoundary {
			return i + 1
		}
	}
	middle := window.Start + window.Len()/2
	nearest, distance := -1, window.Len()
	for i := window.Start; i < window.End; i++ {
		if classes[i] == api.NoBoundary {
			continue
		}
		if d := abs(i - middle); d < distance {
			nearest, distance = i, d
		}
	}
	if nearest >= 0 {
		return nearest + 1
	}
	return middle
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
