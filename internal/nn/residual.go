package nn

import (
	"fmt"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/tensor"
	"golang.org/x/exp/rand"
)

// BlockConfig describes one residual block.
type BlockConfig struct {
	InChannels  int
	OutChannels int
	Stride      int
}

// Validate checks that all dimensions are positive.
func (c BlockConfig) Validate() error {
	if c.InChannels <= 0 || c.OutChannels <= 0 || c.Stride <= 0 {
		return fmt.Errorf("invalid block config %+v: channels and stride must be positive", c)
	}
	return nil
}

// NeedsProjection reports whether the shortcut must change shape:
// any stride other than 1, or a channel change.
func (c BlockConfig) NeedsProjection() bool {
	return c.Stride != 1 || c.InChannels != c.OutChannels
}

// ResidualBlock is the basic two-convolution block:
//
//	out = ReLU(BN(Conv3x3(ReLU(BN(Conv3x3_s(x))))) + shortcut(x))
//
// The shortcut is the identity when shapes already match and a
// 1x1 convolution with the block stride followed by batch norm otherwise.
type ResidualBlock struct {
	cfg          BlockConfig
	conv1        *Conv2D
	bn1          *BatchNorm2D
	conv2        *Conv2D
	bn2          *BatchNorm2D
	shortcutConv *Conv2D      // nil for the identity shortcut
	shortcutBN   *BatchNorm2D // nil for the identity shortcut
	backend      *autodiff.Backend
}

// NewResidualBlock creates a block whose parameters are named under prefix.
func NewResidualBlock(prefix string, cfg BlockConfig, b *autodiff.Backend, src rand.Source) (*ResidualBlock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	block := &ResidualBlock{
		cfg:     cfg,
		conv1:   NewConv2D(prefix+".conv1", cfg.InChannels, cfg.OutChannels, 3, cfg.Stride, 1, b, src),
		bn1:     NewBatchNorm2D(prefix+".bn1", cfg.OutChannels, b),
		conv2:   NewConv2D(prefix+".conv2", cfg.OutChannels, cfg.OutChannels, 3, 1, 1, b, src),
		bn2:     NewBatchNorm2D(prefix+".bn2", cfg.OutChannels, b),
		backend: b,
	}
	if cfg.NeedsProjection() {
		block.shortcutConv = NewConv2D(prefix+".shortcut.conv", cfg.InChannels, cfg.OutChannels, 1, cfg.Stride, 0, b, src)
		block.shortcutBN = NewBatchNorm2D(prefix+".shortcut.bn", cfg.OutChannels, b)
	}
	return block, nil
}

// Config returns the block configuration.
func (r *ResidualBlock) Config() BlockConfig {
	return r.cfg
}

// HasProjection reports whether the shortcut is a 1x1 convolution rather than the identity.
func (r *ResidualBlock) HasProjection() bool {
	return r.shortcutConv != nil
}

// Forward maps [N, in, H, W] to [N, out, ceil(H/stride), ceil(W/stride)].
func (r *ResidualBlock) Forward(x *tensor.RawTensor, mode Mode) *tensor.RawTensor {
	out := r.backend.ReLU(r.bn1.Forward(r.conv1.Forward(x, mode), mode))
	out = r.bn2.Forward(r.conv2.Forward(out, mode), mode)

	shortcut := x
	if r.HasProjection() {
		shortcut = r.shortcutBN.Forward(r.shortcutConv.Forward(x, mode), mode)
	}
	return r.backend.ReLU(r.backend.Add(out, shortcut))
}

// Parameters returns the block parameters in registration order.
func (r *ResidualBlock) Parameters() []*Parameter {
	params := make([]*Parameter, 0, 8)
	for _, m := range r.modules() {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Buffers returns the running statistics of all batch norms in the block.
func (r *ResidualBlock) Buffers() []*Buffer {
	var buffers []*Buffer
	for _, m := range r.modules() {
		buffers = append(buffers, m.Buffers()...)
	}
	return buffers
}

func (r *ResidualBlock) modules() []Module {
	modules := []Module{r.conv1, r.bn1, r.conv2, r.bn2}
	if r.HasProjection() {
		modules = append(modules, r.shortcutConv, r.shortcutBN)
	}
	return modules
}
