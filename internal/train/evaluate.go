package train

import (
	"context"
	"fmt"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/dataset"
)

// Report holds test results. ClassCorrect and ClassTotal are indexed by label.
type Report struct {
	Classes      []string
	Loss         float64 // mean per-sample loss
	ClassCorrect []int
	ClassTotal   []int
}

// NewReport creates an empty report for the given class names.
func NewReport(classes []string) *Report {
	return &Report{
		Classes:      classes,
		ClassCorrect: make([]int, len(classes)),
		ClassTotal:   make([]int, len(classes)),
	}
}

// Add counts one prediction.
func (r *Report) Add(pred, label int) {
	r.ClassTotal[label]++
	if pred == label {
		r.ClassCorrect[label]++
	}
}

// ClassAccuracy returns the fraction of class c predicted correctly. ok is false
// when the class had no samples.
func (r *Report) ClassAccuracy(c int) (acc float64, ok bool) {
	if r.ClassTotal[c] == 0 {
		return 0, false
	}
	return float64(r.ClassCorrect[c]) / float64(r.ClassTotal[c]), true
}

// Correct returns the number of correct predictions over all classes.
func (r *Report) Correct() int {
	return sum(r.ClassCorrect)
}

// Total returns the number of samples evaluated.
func (r *Report) Total() int {
	return sum(r.ClassTotal)
}

// Overall returns the accuracy over all samples. ok is false when nothing was evaluated.
func (r *Report) Overall() (acc float64, ok bool) {
	total := r.Total()
	if total == 0 {
		return 0, false
	}
	return float64(r.Correct()) / float64(total), true
}

func sum(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}

// Evaluator measures loss and per-class accuracy of a model.
type Evaluator struct {
	model   Model
	backend *autodiff.Backend
	classes []string
}

// NewEvaluator creates an evaluator. classes names the labels in order.
func NewEvaluator(model Model, b *autodiff.Backend, classes []string) *Evaluator {
	return &Evaluator{model: model, backend: b, classes: classes}
}

// Evaluate runs the model over every batch of loader in Eval mode. Only the
// samples actually present in each batch are counted.
func (e *Evaluator) Evaluate(ctx context.Context, loader *dataset.Loader) (*Report, error) {
	report := NewReport(e.classes)
	var labelErr error
	total, n, err := evalLoss(ctx, e.model, e.backend, loader, func(pred []int, labels []int32) {
		for i, l := range labels {
			if int(l) >= len(e.classes) {
				labelErr = fmt.Errorf("label %d has no class name", l)
				continue
			}
			report.Add(pred[i], int(l))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if labelErr != nil {
		return nil, fmt.Errorf("evaluate: %w", labelErr)
	}
	if n > 0 {
		report.Loss = total / float64(n)
	}
	return report, nil
}
