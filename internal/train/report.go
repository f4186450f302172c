package train

import (
	"fmt"
	"io"
	"time"
)

// Reporter prints run progress in a fixed human-readable format.
type Reporter struct {
	w io.Writer
}

// NewReporter writes to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Epoch prints the losses of one epoch.
func (r *Reporter) Epoch(res EpochResult) {
	fmt.Fprintf(r.w, "Epoch: %d \tTraining Loss: %.6f \tValidation Loss: %.6f \t(%s)\n",
		res.Epoch, res.TrainLoss, res.ValidLoss, res.Duration.Round(time.Millisecond))
}

// Saved announces a new best model.
func (r *Reporter) Saved(prev, cur float64) {
	fmt.Fprintf(r.w, "Validation loss decreased (%.6f --> %.6f).  Saving model ...\n", prev, cur)
}

// Test prints the test loss, every class accuracy and the overall accuracy.
// Classes without samples print N/A.
func (r *Reporter) Test(rep *Report) {
	fmt.Fprintf(r.w, "Test Loss: %.6f\n\n", rep.Loss)

	for c, name := range rep.Classes {
		if _, ok := rep.ClassAccuracy(c); !ok {
			fmt.Fprintf(r.w, "Test Accuracy of %5s: N/A (no training examples)\n", name)
			continue
		}
		fmt.Fprintf(r.w, "Test Accuracy of %5s: %2d%% (%2d/%2d)\n",
			name, percent(rep.ClassCorrect[c], rep.ClassTotal[c]), rep.ClassCorrect[c], rep.ClassTotal[c])
	}

	if _, ok := rep.Overall(); !ok {
		fmt.Fprintf(r.w, "\nTest Accuracy (Overall): N/A (no test examples)\n")
		return
	}
	fmt.Fprintf(r.w, "\nTest Accuracy (Overall): %2d%% (%2d/%2d)\n", percent(rep.Correct(), rep.Total()), rep.Correct(), rep.Total())
}

// percent truncates like an integer format of 100*correct/total.
func percent(correct, total int) int {
	return 100 * correct / total
}
