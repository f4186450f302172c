// Package train runs the train / validate / checkpoint / test pipeline.
package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/dataset"
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/optim"
)

// Model is a network that can be trained and checkpointed.
type Model interface {
	nn.Module
	nn.Snapshotter
}

// EpochResult summarizes one pass over the training and validation splits.
// Losses are per-sample means: each batch loss is weighted by its actual size.
type EpochResult struct {
	Epoch        int
	TrainLoss    float64
	ValidLoss    float64
	TrainSamples int
	ValidSamples int
	Duration     time.Duration
}

// Trainer owns one model, its optimizer and the two loaders it trains and validates on.
type Trainer struct {
	model   Model
	backend *autodiff.Backend
	opt     optim.Optimizer
	train   *dataset.Loader
	valid   *dataset.Loader
}

// NewTrainer wires a trainer. Both splits must be non-empty.
func NewTrainer(model Model, b *autodiff.Backend, opt optim.Optimizer, train, valid *dataset.Loader) (*Trainer, error) {
	if train.Len() == 0 {
		return nil, errors.New("train: training split is empty")
	}
	if valid.Len() == 0 {
		return nil, errors.New("train: validation split is empty")
	}
	return &Trainer{model: model, backend: b, opt: opt, train: train, valid: valid}, nil
}

// Epoch trains on every training batch once and then measures the validation loss.
func (t *Trainer) Epoch(ctx context.Context, epoch int) (EpochResult, error) {
	start := time.Now()

	trainLoss, trainN, err := t.trainPhase(ctx)
	if err != nil {
		return EpochResult{}, fmt.Errorf("epoch %d: train: %w", epoch, err)
	}
	validLoss, validN, err := evalLoss(ctx, t.model, t.backend, t.valid, nil)
	if err != nil {
		return EpochResult{}, fmt.Errorf("epoch %d: validate: %w", epoch, err)
	}

	return EpochResult{
		Epoch:        epoch,
		TrainLoss:    trainLoss / float64(trainN),
		ValidLoss:    validLoss / float64(validN),
		TrainSamples: trainN,
		ValidSamples: validN,
		Duration:     time.Since(start),
	}, nil
}

// trainPhase returns the size-weighted loss sum and the number of samples seen.
func (t *Trainer) trainPhase(ctx context.Context) (float64, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tape := t.backend.Tape()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	var total float64
	var count int
	batches, errs := t.train.Batches(ctx)
	for b := range batches {
		t.opt.ZeroGrad()
		tape.Clear()
		tape.StartRecording()

		logits := t.model.Forward(b.Images, nn.Train)
		loss, err := t.backend.CrossEntropy(logits, b.Labels)
		tape.StopRecording()
		if err != nil {
			return 0, 0, err
		}

		t.opt.Step(t.backend.Backward(loss))

		total += float64(loss.AsFloat32()[0]) * float64(b.Size)
		count += b.Size
	}
	if err := <-errs; err != nil {
		return 0, 0, err
	}
	return total, count, nil
}

// evalLoss runs model in Eval mode with the tape stopped. It returns the
// size-weighted loss sum and sample count. visit, when set, sees every batch's
// predictions.
func evalLoss(ctx context.Context, model Model, b *autodiff.Backend, loader *dataset.Loader,
	visit func(pred []int, labels []int32),
) (float64, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tape := b.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	var total float64
	var count int
	batches, errs := loader.Batches(ctx)
	for batch := range batches {
		logits := model.Forward(batch.Images, nn.Eval)
		loss, err := b.CrossEntropy(logits, batch.Labels)
		if err != nil {
			return 0, 0, err
		}
		total += float64(loss.AsFloat32()[0]) * float64(batch.Size)
		count += batch.Size

		if visit != nil {
			visit(b.ArgMax(logits), batch.Labels.AsInt32())
		}
	}
	if err := <-errs; err != nil {
		return 0, 0, err
	}
	return total, count, nil
}
