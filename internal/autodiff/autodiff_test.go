package autodiff_test

import (
	"math"
	"testing"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend"
	"github.com/born-ml/resnet/internal/device"
	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func newBackend() *autodiff.Backend {
	return autodiff.New(backend.New(device.NewCPU(), parallel.Sequential()))
}

func randTensor(rng *rand.Rand, shape ...int) *tensor.RawTensor {
	t := tensor.Zeros(tensor.Shape(shape))
	for i := range t.AsFloat32() {
		t.AsFloat32()[i] = float32(rng.NormFloat64())
	}
	return t
}

// TestBackend_Name tests the Name method.
func TestBackend_Name(t *testing.T) {
	b := newBackend()
	assert.Contains(t, b.Name(), "Autodiff(CPU")
}

// TestTape_Recording tests tape recording on/off.
func TestTape_Recording(t *testing.T) {
	b := newBackend()
	tape := b.Tape()

	if tape.IsRecording() {
		t.Error("Tape should not be recording initially")
	}

	tape.StartRecording()
	if !tape.IsRecording() {
		t.Error("Tape should be recording after StartRecording()")
	}

	tape.StopRecording()
	if tape.IsRecording() {
		t.Error("Tape should not be recording after StopRecording()")
	}
}

func TestTape_RecordsOnlyWhenRecording(t *testing.T) {
	b := newBackend()
	x := tensor.Zeros(tensor.Shape{1, 1, 2, 2})

	b.ReLU(x)
	assert.Equal(t, 0, b.Tape().NumOps())

	b.Tape().StartRecording()
	b.ReLU(x)
	b.Add(x, x)
	assert.Equal(t, 2, b.Tape().NumOps())

	b.Tape().Clear()
	assert.Equal(t, 0, b.Tape().NumOps())
	assert.True(t, b.Tape().IsRecording(), "Clear keeps the recording state")
}

func TestBackward_EmptyTape(t *testing.T) {
	b := newBackend()
	loss := tensor.Zeros(tensor.Shape{})
	assert.Empty(t, b.Backward(loss))
}

func TestBackward_AccumulatesReusedTensor(t *testing.T) {
	b := newBackend()
	x, err := tensor.FromFloat32([]float32{1, -2, 3}, tensor.Shape{3})
	require.NoError(t, err)

	b.Tape().StartRecording()
	y := b.Add(x, x)
	z := b.ReLU(y)
	b.Tape().StopRecording()

	seed := tensor.Zeros(z.Shape())
	seed.Fill(1)
	grads := b.Tape().Backward(seed, b.Inner())

	require.Contains(t, grads, x)
	assert.Equal(t, []float32{2, 0, 2}, grads[x].AsFloat32())
	assert.False(t, b.Tape().IsRecording())
}

// TestBackward_ResidualChain checks the tape gradients of a miniature residual network
// against finite differences.
func TestBackward_ResidualChain(t *testing.T) {
	b := newBackend()
	rng := rand.New(rand.NewSource(7))

	x := randTensor(rng, 2, 2, 4, 4)
	kernel := randTensor(rng, 2, 2, 3, 3)
	gamma := randTensor(rng, 2)
	beta := randTensor(rng, 2)
	weight := randTensor(rng, 3, 2)
	bias := randTensor(rng, 3)
	labels, err := tensor.FromInt32([]int32{2, 0}, tensor.Shape{2})
	require.NoError(t, err)

	forward := func() *tensor.RawTensor {
		h := b.Conv2D(x, kernel, 1, 1)
		h, _ = b.BatchNorm2DTrain(h, gamma, beta, 1e-5)
		h = b.ReLU(b.Add(h, x))
		h = b.AvgPool2D(h, 4)
		h = b.Reshape(h, tensor.Shape{2, 2})
		logits := b.Linear(h, weight, bias)
		loss, err := b.CrossEntropy(logits, labels)
		require.NoError(t, err)
		return loss
	}

	b.Tape().StartRecording()
	loss := forward()
	b.Tape().StopRecording()
	grads := b.Backward(loss)

	lossValue := func() float64 { return float64(forward().AsFloat32()[0]) }

	for name, param := range map[string]*tensor.RawTensor{
		"x": x, "kernel": kernel, "gamma": gamma, "beta": beta, "weight": weight, "bias": bias,
	} {
		grad, ok := grads[param]
		require.True(t, ok, name)
		require.Equal(t, param.Shape(), grad.Shape(), name)

		const eps = 1e-3
		data := param.AsFloat32()
		for i := range data {
			orig := data[i]
			data[i] = orig + eps
			plus := lossValue()
			data[i] = orig - eps
			minus := lossValue()
			data[i] = orig
			numeric := (plus - minus) / (2 * eps)
			assert.InDelta(t, numeric, float64(grad.AsFloat32()[i]), 2e-2*math.Max(1, math.Abs(numeric)),
				"%s[%d]", name, i)
		}
	}
}
