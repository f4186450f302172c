package nn

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/device"
	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/serialization"
	"github.com/born-ml/resnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func testBackend() *autodiff.Backend {
	return autodiff.New(backend.New(device.NewCPU(), parallel.DefaultConfig()))
}

// tinyConfig keeps the ResNet-18 topology with narrow stages on 8x8 inputs.
func tinyConfig(seed int64) ResNetConfig {
	return ResNetConfig{
		InChannels:     3,
		ImageSize:      8,
		StemChannels:   4,
		StageWidths:    []int{4, 8, 8, 8},
		BlocksPerStage: 2,
		NumClasses:     10,
		PoolSize:       1,
		Seed:           seed,
	}
}

func randInput(seed uint64, shape ...int) *tensor.RawTensor {
	rng := rand.New(rand.NewSource(seed))
	x := tensor.Zeros(tensor.Shape(shape))
	for i := range x.AsFloat32() {
		x.AsFloat32()[i] = float32(rng.NormFloat64())
	}
	return x
}

func TestBlockConfig_NeedsProjection(t *testing.T) {
	tests := []struct {
		cfg  BlockConfig
		want bool
	}{
		{BlockConfig{InChannels: 64, OutChannels: 64, Stride: 1}, false},
		{BlockConfig{InChannels: 64, OutChannels: 128, Stride: 2}, true},
		{BlockConfig{InChannels: 64, OutChannels: 64, Stride: 2}, true},
		{BlockConfig{InChannels: 64, OutChannels: 128, Stride: 1}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.NeedsProjection(), "%+v", tt.cfg)
	}
	assert.Error(t, BlockConfig{InChannels: 0, OutChannels: 4, Stride: 1}.Validate())
}

func TestResidualBlock_IdentityShortcut(t *testing.T) {
	b := testBackend()
	block, err := NewResidualBlock("layer1.0", BlockConfig{InChannels: 4, OutChannels: 4, Stride: 1}, b, rand.NewSource(1))
	require.NoError(t, err)

	assert.False(t, block.HasProjection())
	out := block.Forward(randInput(2, 2, 4, 6, 6), Train)
	assert.Equal(t, tensor.Shape{2, 4, 6, 6}, out.Shape())

	var names []string
	for _, p := range block.Parameters() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{
		"layer1.0.conv1.weight", "layer1.0.bn1.weight", "layer1.0.bn1.bias",
		"layer1.0.conv2.weight", "layer1.0.bn2.weight", "layer1.0.bn2.bias",
	}, names)
	assert.Len(t, block.Buffers(), 4)

	for _, v := range out.AsFloat32() {
		assert.GreaterOrEqual(t, v, float32(0), "block output passes through ReLU")
	}
}

func TestResidualBlock_Projection(t *testing.T) {
	b := testBackend()
	block, err := NewResidualBlock("layer2.0", BlockConfig{InChannels: 4, OutChannels: 8, Stride: 2}, b, rand.NewSource(1))
	require.NoError(t, err)

	assert.True(t, block.HasProjection())
	out := block.Forward(randInput(3, 2, 4, 7, 7), Train)
	assert.Equal(t, tensor.Shape{2, 8, 4, 4}, out.Shape())
	assert.Len(t, block.Parameters(), 9)
	assert.Equal(t, "layer2.0.shortcut.conv.weight", block.Parameters()[6].Name())
}

func TestResNet_ForwardShape(t *testing.T) {
	model, err := NewResNet(tinyConfig(1), testBackend())
	require.NoError(t, err)

	logits := model.Forward(randInput(4, 3, 3, 8, 8), Train)
	assert.Equal(t, tensor.Shape{3, 10}, logits.Shape())

	logits = model.Forward(randInput(4, 1, 3, 8, 8), Eval)
	assert.Equal(t, tensor.Shape{1, 10}, logits.Shape())

	assert.Panics(t, func() { model.Forward(randInput(4, 1, 1, 8, 8), Eval) })
}

func TestResNet18_Layout(t *testing.T) {
	model, err := ResNet18(testBackend(), 0)
	require.NoError(t, err)

	assert.Equal(t, "ResNet18", model.ModelType())
	assert.Equal(t, 11_173_962, model.NumParameters())

	for s, wantProjection := range []bool{false, true, true, true} {
		blocks := model.Blocks(s)
		require.Len(t, blocks, 2)
		assert.Equal(t, wantProjection, blocks[0].HasProjection(), "stage %d block 0", s+1)
		assert.False(t, blocks[1].HasProjection(), "stage %d block 1", s+1)
	}

	state := model.StateDict()
	assert.Contains(t, state, "stem.conv.weight")
	assert.Contains(t, state, "layer2.0.shortcut.bn.running_mean")
	assert.NotContains(t, state, "layer1.0.shortcut.conv.weight")
	assert.Equal(t, tensor.Shape{10, 512}, state["fc.weight"].Shape())

	summary := model.String()
	assert.Contains(t, summary, "BasicBlock(64 -> 128, stride=2")
	assert.Contains(t, summary, "Linear(512, 10)")
}

func TestResNetConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultResNetConfig().Validate())

	cfg := tinyConfig(0)
	cfg.PoolSize = 2 // final feature map is 1x1
	assert.Error(t, cfg.Validate())

	cfg = tinyConfig(0)
	cfg.StageWidths = nil
	assert.Error(t, cfg.Validate())

	cfg = tinyConfig(0)
	cfg.NumClasses = 1
	assert.Error(t, cfg.Validate())
}

func TestResNet_SeedDeterminism(t *testing.T) {
	a, err := NewResNet(tinyConfig(5), testBackend())
	require.NoError(t, err)
	b, err := NewResNet(tinyConfig(5), testBackend())
	require.NoError(t, err)
	c, err := NewResNet(tinyConfig(6), testBackend())
	require.NoError(t, err)

	assert.Equal(t, a.StateDict()["stem.conv.weight"].Data(), b.StateDict()["stem.conv.weight"].Data())
	assert.NotEqual(t, a.StateDict()["stem.conv.weight"].Data(), c.StateDict()["stem.conv.weight"].Data())
}

func TestBatchNorm2D_RunningStats(t *testing.T) {
	bn := NewBatchNorm2D("bn", 1, testBackend())
	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	bn.Forward(x, Train)

	mean := bn.Buffers()[0].Tensor().AsFloat32()[0]
	variance := bn.Buffers()[1].Tensor().AsFloat32()[0]
	// batch mean 2.5, unbiased variance 5/3
	assert.InDelta(t, 0.25, mean, 1e-6)
	assert.InDelta(t, 0.9*1+0.1*(5.0/3.0), variance, 1e-6)

	bn.Forward(x, Eval)
	assert.InDelta(t, 0.25, bn.Buffers()[0].Tensor().AsFloat32()[0], 1e-6, "eval leaves stats untouched")
}

func TestResNet_EvalIsDeterministic(t *testing.T) {
	model, err := NewResNet(tinyConfig(2), testBackend())
	require.NoError(t, err)
	x := randInput(9, 2, 3, 8, 8)

	before := model.StateDict()
	first := model.Forward(x, Eval).Clone()
	second := model.Forward(x, Eval)

	assert.Equal(t, first.AsFloat32(), second.AsFloat32())
	for name, v := range model.StateDict() {
		assert.Equal(t, before[name].Data(), v.Data(), name)
	}
}

func TestSaveLoadStateDict_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_cifar.pt")
	src, err := NewResNet(tinyConfig(1), testBackend())
	require.NoError(t, err)
	// Move the running statistics away from their initial values.
	src.Forward(randInput(11, 4, 3, 8, 8), Train)

	meta := &serialization.CheckpointMeta{Epoch: 4, ValidLoss: 1.5}
	require.NoError(t, SaveStateDict(path, src, meta))

	dst, err := NewResNet(tinyConfig(99), testBackend())
	require.NoError(t, err)
	gotMeta, err := LoadStateDict(path, dst)
	require.NoError(t, err)
	require.NotNil(t, gotMeta)
	assert.Equal(t, 4, gotMeta.Epoch)

	want := src.StateDict()
	for name, v := range dst.StateDict() {
		assert.Equal(t, want[name].Data(), v.Data(), name)
	}

	x := randInput(12, 2, 3, 8, 8)
	assert.Equal(t, src.Forward(x, Eval).AsFloat32(), dst.Forward(x, Eval).AsFloat32())
}

func TestApplyState_Mismatch(t *testing.T) {
	model, err := NewResNet(tinyConfig(1), testBackend())
	require.NoError(t, err)
	original := model.StateDict()

	missing := model.StateDict()
	delete(missing, "fc.bias")
	assert.True(t, errors.Is(model.LoadStateDict(missing), ErrStateMismatch))

	wrongShape := model.StateDict()
	wrongShape["fc.bias"] = tensor.Zeros(tensor.Shape{3})
	assert.True(t, errors.Is(model.LoadStateDict(wrongShape), ErrStateMismatch))

	extra := model.StateDict()
	extra["fc.extra"] = tensor.Zeros(tensor.Shape{1})
	err = model.LoadStateDict(extra)
	require.True(t, errors.Is(err, ErrStateMismatch))
	assert.Contains(t, err.Error(), "fc.extra")

	for name, v := range model.StateDict() {
		assert.Equal(t, original[name].Data(), v.Data(), "failed loads leave %s untouched", name)
	}
}

func TestLoadStateDict_ArchitectureMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.born")
	small, err := NewResNet(tinyConfig(1), testBackend())
	require.NoError(t, err)
	require.NoError(t, SaveStateDict(path, small, nil))

	cfg := tinyConfig(1)
	cfg.StageWidths = []int{4, 8, 8, 16}
	wider, err := NewResNet(cfg, testBackend())
	require.NoError(t, err)

	_, err = LoadStateDict(path, wider)
	assert.True(t, errors.Is(err, ErrStateMismatch))

	_, err = LoadStateDict(filepath.Join(t.TempDir(), "absent.born"), wider)
	assert.Error(t, err)
}
