package nn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/tensor"
	"golang.org/x/exp/rand"
)

// ResNetConfig describes a CIFAR-style residual network.
type ResNetConfig struct {
	InChannels     int   // image channels (3 for RGB)
	ImageSize      int   // square input side (32 for CIFAR-10)
	StemChannels   int   // width of the stem convolution
	StageWidths    []int // output channels of each stage
	BlocksPerStage int
	NumClasses     int
	PoolSize       int   // average pool window before the classifier
	Seed           int64 // weight initialization seed
}

// DefaultResNetConfig returns the ResNet-18 layout for 32x32 RGB images and 10 classes.
func DefaultResNetConfig() ResNetConfig {
	return ResNetConfig{
		InChannels:     3,
		ImageSize:      32,
		StemChannels:   64,
		StageWidths:    []int{64, 128, 256, 512},
		BlocksPerStage: 2,
		NumClasses:     10,
		PoolSize:       4,
	}
}

// Validate checks the configuration and that the final feature map fits the pooling window.
func (c ResNetConfig) Validate() error {
	switch {
	case c.InChannels <= 0, c.ImageSize <= 0, c.StemChannels <= 0:
		return fmt.Errorf("resnet: channels and image size must be positive")
	case len(c.StageWidths) == 0:
		return errors.New("resnet: at least one stage is required")
	case c.BlocksPerStage <= 0:
		return fmt.Errorf("resnet: blocks per stage must be positive, got %d", c.BlocksPerStage)
	case c.NumClasses <= 1:
		return fmt.Errorf("resnet: need at least 2 classes, got %d", c.NumClasses)
	case c.PoolSize <= 0:
		return fmt.Errorf("resnet: pool size must be positive, got %d", c.PoolSize)
	}
	for i, w := range c.StageWidths {
		if w <= 0 {
			return fmt.Errorf("resnet: stage %d width must be positive, got %d", i+1, w)
		}
	}
	if side := c.FeatureSide(); side < c.PoolSize {
		return fmt.Errorf("resnet: final feature map %dx%d is smaller than pool size %d", side, side, c.PoolSize)
	}
	return nil
}

// FeatureSide is the spatial side after all stages. Every stage but the first halves it
// (3x3 convolution, padding 1, stride 2).
func (c ResNetConfig) FeatureSide() int {
	side := c.ImageSize
	for range c.StageWidths[1:] {
		side = (side-1)/2 + 1
	}
	return side
}

// classifierInputs is the flattened width after pooling.
func (c ResNetConfig) classifierInputs() int {
	pooled := c.FeatureSide() / c.PoolSize
	return c.StageWidths[len(c.StageWidths)-1] * pooled * pooled
}

// ResNet is the residual classifier:
//
//	stem: Conv3x3(in -> stem) + BN + ReLU
//	layerK: BlocksPerStage residual blocks; the first block of every stage after
//	        the first uses stride 2
//	head: AvgPool(PoolSize) -> flatten -> Linear(-> NumClasses)
type ResNet struct {
	cfg     ResNetConfig
	stem    *Conv2D
	stemBN  *BatchNorm2D
	stages  [][]*ResidualBlock
	fc      *Linear
	backend *autodiff.Backend
}

// NewResNet builds a network from cfg with weights drawn from a source seeded with cfg.Seed.
func NewResNet(cfg ResNetConfig, b *autodiff.Backend) (*ResNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	//nolint:gosec // G115: seeds are reinterpreted, not range-checked
	src := rand.NewSource(uint64(cfg.Seed))

	m := &ResNet{
		cfg:     cfg,
		stem:    NewConv2D("stem.conv", cfg.InChannels, cfg.StemChannels, 3, 1, 1, b, src),
		stemBN:  NewBatchNorm2D("stem.bn", cfg.StemChannels, b),
		backend: b,
	}

	in := cfg.StemChannels
	for s, width := range cfg.StageWidths {
		stage := make([]*ResidualBlock, 0, cfg.BlocksPerStage)
		for i := 0; i < cfg.BlocksPerStage; i++ {
			stride := 1
			if s > 0 && i == 0 {
				stride = 2
			}
			block, err := NewResidualBlock(fmt.Sprintf("layer%d.%d", s+1, i),
				BlockConfig{InChannels: in, OutChannels: width, Stride: stride}, b, src)
			if err != nil {
				return nil, err
			}
			stage = append(stage, block)
			in = width
		}
		m.stages = append(m.stages, stage)
	}

	m.fc = NewLinear("fc", cfg.classifierInputs(), cfg.NumClasses, b, src)
	return m, nil
}

// ResNet18 builds the standard CIFAR-10 ResNet-18.
func ResNet18(b *autodiff.Backend, seed int64) (*ResNet, error) {
	cfg := DefaultResNetConfig()
	cfg.Seed = seed
	return NewResNet(cfg, b)
}

// Config returns the network configuration.
func (m *ResNet) Config() ResNetConfig {
	return m.cfg
}

// ModelType names the architecture in checkpoint headers by its weighted depth:
// the stem, two convolutions per block and the classifier ("ResNet18").
func (m *ResNet) ModelType() string {
	return fmt.Sprintf("ResNet%d", 2+2*m.cfg.BlocksPerStage*len(m.cfg.StageWidths))
}

// Blocks returns the residual blocks of a stage (0-based).
func (m *ResNet) Blocks(stage int) []*ResidualBlock {
	return m.stages[stage]
}

// Forward maps images [N, C, H, W] to class logits [N, NumClasses].
func (m *ResNet) Forward(x *tensor.RawTensor, mode Mode) *tensor.RawTensor {
	if _, c, h, w := x.Shape().NCHW(); c != m.cfg.InChannels || h != m.cfg.ImageSize || w != m.cfg.ImageSize {
		panic(fmt.Sprintf("resnet: input %v does not match [N,%d,%d,%d]",
			x.Shape(), m.cfg.InChannels, m.cfg.ImageSize, m.cfg.ImageSize))
	}

	out := m.backend.ReLU(m.stemBN.Forward(m.stem.Forward(x, mode), mode))
	for _, stage := range m.stages {
		for _, block := range stage {
			out = block.Forward(out, mode)
		}
	}

	out = m.backend.AvgPool2D(out, m.cfg.PoolSize)
	n := out.Shape()[0]
	out = m.backend.Reshape(out, tensor.Shape{n, out.NumElements() / n})
	return m.fc.Forward(out, mode)
}

// Parameters returns all trainable parameters in registration order.
func (m *ResNet) Parameters() []*Parameter {
	var params []*Parameter
	for _, mod := range m.modules() {
		params = append(params, mod.Parameters()...)
	}
	return params
}

// Buffers returns all batch norm running statistics.
func (m *ResNet) Buffers() []*Buffer {
	var buffers []*Buffer
	for _, mod := range m.modules() {
		buffers = append(buffers, mod.Buffers()...)
	}
	return buffers
}

// NumParameters counts trainable scalars.
func (m *ResNet) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// String prints a layer summary.
func (m *ResNet) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ResNet(\n")
	fmt.Fprintf(&sb, "  (stem): Conv2d(%d, %d, kernel=3, stride=1, padding=1) + BatchNorm2d(%d) + ReLU\n",
		m.cfg.InChannels, m.cfg.StemChannels, m.cfg.StemChannels)
	for s, stage := range m.stages {
		fmt.Fprintf(&sb, "  (layer%d):\n", s+1)
		for i, block := range stage {
			cfg := block.Config()
			shortcut := "identity"
			if block.HasProjection() {
				shortcut = fmt.Sprintf("Conv2d(%d, %d, kernel=1, stride=%d) + BatchNorm2d(%d)",
					cfg.InChannels, cfg.OutChannels, cfg.Stride, cfg.OutChannels)
			}
			fmt.Fprintf(&sb, "    (%d): BasicBlock(%d -> %d, stride=%d, shortcut=%s)\n",
				i, cfg.InChannels, cfg.OutChannels, cfg.Stride, shortcut)
		}
	}
	fmt.Fprintf(&sb, "  (pool): AvgPool2d(%d)\n", m.cfg.PoolSize)
	fmt.Fprintf(&sb, "  (fc): Linear(%d, %d)\n", m.fc.InFeatures(), m.fc.OutFeatures())
	fmt.Fprintf(&sb, ")  parameters: %d", m.NumParameters())
	return sb.String()
}

func (m *ResNet) modules() []Module {
	modules := []Module{m.stem, m.stemBN}
	for _, stage := range m.stages {
		for _, block := range stage {
			modules = append(modules, block)
		}
	}
	return append(modules, m.fc)
}
