package dataset

import (
	"context"
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
	"golang.org/x/exp/rand"
)

// Batch is a group of samples stacked along the batch axis.
// Size may be smaller than the configured batch size for the last batch of an epoch.
type Batch struct {
	Images *tensor.RawTensor // [Size, C, H, W] float32
	Labels *tensor.RawTensor // [Size] int32
	Size   int
}

// LoaderConfig controls batching.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool   // reshuffle the index subset at the start of every epoch
	Prefetch  int    // batches assembled ahead of the consumer; 0 builds on demand
	Seed      uint64 // shuffle seed
}

// Loader iterates a subset of a Dataset in batches.
type Loader struct {
	ds      Dataset
	indices []int
	cfg     LoaderConfig
	rng     *rand.Rand
}

// NewLoader creates a loader over the given indices of ds. nil indices means
// the whole dataset in order.
func NewLoader(ds Dataset, indices []int, cfg LoaderConfig) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Prefetch < 0 {
		return nil, fmt.Errorf("loader: prefetch must be non-negative, got %d", cfg.Prefetch)
	}
	if indices == nil {
		indices = Range(ds.Len())
	}
	for _, i := range indices {
		if i < 0 || i >= ds.Len() {
			return nil, fmt.Errorf("loader: %w: %d not in [0, %d)", ErrIndexOutOfRange, i, ds.Len())
		}
	}
	return &Loader{
		ds:      ds,
		indices: append([]int(nil), indices...),
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Len returns the number of samples one epoch visits.
func (l *Loader) Len() int {
	return len(l.indices)
}

// NumBatches returns ceil(Len / BatchSize).
func (l *Loader) NumBatches() int {
	return (len(l.indices) + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int {
	return l.cfg.BatchSize
}

// Batches starts one epoch. Batches are produced by a background goroutine
// and delivered on the first channel, which is closed at the end of the epoch.
// The error channel then yields at most one error: a sample read failure or
// ctx.Err() if the epoch was cancelled.
//
//	batches, errs := loader.Batches(ctx)
//	for b := range batches {
//	    ...
//	}
//	if err := <-errs; err != nil {
//	    return err
//	}
func (l *Loader) Batches(ctx context.Context) (<-chan Batch, <-chan error) {
	order := append([]int(nil), l.indices...)
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	out := make(chan Batch, l.cfg.Prefetch)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		for start := 0; start < len(order); start += l.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}
			end := min(start+l.cfg.BatchSize, len(order))
			batch, err := l.assemble(order[start:end])
			if err != nil {
				errCh <- err
				return
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()
	return out, errCh
}

// assemble reads the samples at idx into one batch.
func (l *Loader) assemble(idx []int) (Batch, error) {
	shape := l.ds.Shape()
	size := shape.NumElements()

	images := tensor.Zeros(append(tensor.Shape{len(idx)}, shape...))
	labels, err := tensor.NewRaw(tensor.Shape{len(idx)}, tensor.Int32, tensor.CPU)
	if err != nil {
		return Batch{}, err
	}

	imgData := images.AsFloat32()
	labelData := labels.AsInt32()
	for k, i := range idx {
		s, err := l.ds.Sample(i)
		if err != nil {
			return Batch{}, fmt.Errorf("loader: sample %d: %w", i, err)
		}
		if len(s.Image) != size {
			return Batch{}, fmt.Errorf("loader: sample %d has %d values, want %d", i, len(s.Image), size)
		}
		copy(imgData[k*size:(k+1)*size], s.Image)
		labelData[k] = int32(s.Label)
	}
	return Batch{Images: images, Labels: labels, Size: len(idx)}, nil
}
