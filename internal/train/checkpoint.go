package train

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/optim"
	"github.com/born-ml/resnet/internal/serialization"
)

// ErrNoCheckpoint is returned when the best model is requested before any was saved.
var ErrNoCheckpoint = errors.New("no checkpoint saved")

// Checkpointer keeps the model with the lowest validation loss on disk.
// The watermark starts at +Inf, so the first finite loss is always saved,
// and a loss equal to the watermark is saved again.
type Checkpointer struct {
	path      string
	best      float64
	bestEpoch int
	optimizer string
	lr        float64
}

// NewCheckpointer creates a checkpointer writing to path. opt may be nil; when set,
// its name and learning rate are recorded in the file.
func NewCheckpointer(path string, opt optim.Optimizer) *Checkpointer {
	c := &Checkpointer{path: path, best: math.Inf(1)}
	if opt != nil {
		c.optimizer = opt.Name()
		c.lr = float64(opt.GetLR())
	}
	return c
}

// Path returns the checkpoint file path.
func (c *Checkpointer) Path() string {
	return c.path
}

// Best returns the lowest validation loss saved so far (+Inf before the first save).
func (c *Checkpointer) Best() float64 {
	return c.best
}

// BestEpoch returns the epoch of the saved model, 0 if none.
func (c *Checkpointer) BestEpoch() int {
	return c.bestEpoch
}

// Observe saves model when validLoss <= Best(). It reports whether a save happened
// and the watermark before this call.
func (c *Checkpointer) Observe(validLoss float64, model nn.Snapshotter, epoch int) (saved bool, prev float64, err error) {
	prev = c.best
	if !(validLoss <= c.best) {
		return false, prev, nil
	}
	if err := c.Save(model, epoch, validLoss); err != nil {
		return false, prev, err
	}
	c.best = validLoss
	c.bestEpoch = epoch
	return true, prev, nil
}

// Save writes model unconditionally.
func (c *Checkpointer) Save(model nn.Snapshotter, epoch int, validLoss float64) error {
	meta := &serialization.CheckpointMeta{
		Epoch:     epoch,
		ValidLoss: validLoss,
		Optimizer: c.optimizer,
		LR:        c.lr,
	}
	return nn.SaveStateDict(c.path, model, meta)
}

// Load restores the saved model into model.
func (c *Checkpointer) Load(model nn.Snapshotter) (*serialization.CheckpointMeta, error) {
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoCheckpoint, c.path)
	}
	return nn.LoadStateDict(c.path, model)
}
