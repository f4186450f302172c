package train

import (
	"context"
	"fmt"
	"io"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/config"
	"github.com/born-ml/resnet/internal/dataset"
	"github.com/born-ml/resnet/internal/device"
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/optim"
	"github.com/born-ml/resnet/internal/parallel"
	"golang.org/x/exp/rand"
)

// Run executes the full pipeline on dev: load data, split train/valid, train for
// cfg.Epochs keeping the best model on disk, reload it and evaluate on the test split.
// Progress is written to out. The returned report is the final test result.
func Run(ctx context.Context, cfg config.Config, dev device.Device, out io.Writer) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	par := parallel.DefaultConfig()
	if cfg.Workers > 0 {
		par.NumWorkers = cfg.Workers
		par.Enabled = cfg.Workers > 1
	}
	ad := autodiff.New(backend.New(dev, par))

	trainSet, testSet, err := loadData(ctx, cfg)
	if err != nil {
		return nil, err
	}

	seed := uint64(cfg.Seed) //nolint:gosec // G115: seeds are reinterpreted, not range-checked
	trainIdx, validIdx, err := dataset.SplitIndices(trainSet.Len(), cfg.ValidSize, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	trainLoader, err := dataset.NewLoader(trainSet, trainIdx, dataset.LoaderConfig{
		BatchSize: cfg.BatchSize, Shuffle: true, Prefetch: cfg.Prefetch, Seed: seed + 1,
	})
	if err != nil {
		return nil, err
	}
	validLoader, err := dataset.NewLoader(trainSet, validIdx, dataset.LoaderConfig{
		BatchSize: cfg.BatchSize, Shuffle: true, Prefetch: cfg.Prefetch, Seed: seed + 2,
	})
	if err != nil {
		return nil, err
	}
	testLoader, err := dataset.NewLoader(testSet, nil, dataset.LoaderConfig{
		BatchSize: cfg.BatchSize, Prefetch: cfg.Prefetch,
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Train: %d samples, Valid: %d samples, Test: %d samples\n",
		trainLoader.Len(), validLoader.Len(), testLoader.Len())

	model, err := nn.NewResNet(ModelConfig(cfg, trainSet.Shape()), ad)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, model)

	opt, err := optim.New(model.Parameters(), optim.Config{
		Name:     cfg.Optimizer,
		LR:       float32(cfg.LR),
		Momentum: float32(cfg.Momentum),
	})
	if err != nil {
		return nil, err
	}

	trainer, err := NewTrainer(model, ad, opt, trainLoader, validLoader)
	if err != nil {
		return nil, err
	}
	ckpt := NewCheckpointer(cfg.Checkpoint, opt)
	reporter := NewReporter(out)

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		res, err := trainer.Epoch(ctx, epoch)
		if err != nil {
			return nil, err
		}
		reporter.Epoch(res)

		saved, prev, err := ckpt.Observe(res.ValidLoss, model, epoch)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: checkpoint: %w", epoch, err)
		}
		if saved {
			reporter.Saved(prev, res.ValidLoss)
		}
	}

	if _, err := ckpt.Load(model); err != nil {
		return nil, fmt.Errorf("reload best model: %w", err)
	}
	report, err := NewEvaluator(model, ad, dataset.Classes).Evaluate(ctx, testLoader)
	if err != nil {
		return nil, err
	}
	reporter.Test(report)
	return report, nil
}

// ModelConfig derives the network layout from cfg and the image shape [C, H, W].
// The pooling window covers the whole final feature map.
func ModelConfig(cfg config.Config, shape []int) nn.ResNetConfig {
	m := nn.DefaultResNetConfig()
	m.InChannels = shape[0]
	m.ImageSize = shape[1]
	m.StemChannels = cfg.StemChannels
	m.StageWidths = append([]int(nil), cfg.StageWidths...)
	m.NumClasses = len(dataset.Classes)
	m.Seed = cfg.Seed
	if len(m.StageWidths) > 0 {
		m.PoolSize = max(m.FeatureSide(), 1)
	}
	return m
}

// loadData returns the training set and the test set.
func loadData(ctx context.Context, cfg config.Config) (trainSet, testSet *dataset.Memory, err error) {
	switch cfg.Dataset {
	case config.DatasetSynthetic:
		seed := uint64(cfg.Seed) //nolint:gosec // G115
		n := cfg.SyntheticSamples
		all, err := dataset.Synthetic(n+max(n/5, 1), len(dataset.Classes), cfg.ImageSize, seed)
		if err != nil {
			return nil, nil, err
		}
		trainSet = all.Slice(0, n)
		if cfg.TestFromTrain {
			return trainSet, trainSet, nil
		}
		return trainSet, all.Slice(n, all.Len()), nil

	default:
		if cfg.Download {
			if err := dataset.Download(ctx, cfg.DataDir, cfg.DownloadURL); err != nil {
				return nil, nil, err
			}
		}
		trainSet, err = dataset.LoadCIFAR10(cfg.DataDir, true)
		if err != nil {
			return nil, nil, fmt.Errorf("load training set: %w", err)
		}
		if cfg.TestFromTrain {
			return trainSet, trainSet, nil
		}
		testSet, err = dataset.LoadCIFAR10(cfg.DataDir, false)
		if err != nil {
			return nil, nil, fmt.Errorf("load test set: %w", err)
		}
		return trainSet, testSet, nil
	}
}
