package nn

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that require gradient computation during training.
// The tensor pointer is stable for the lifetime of the model: optimizers update
// it in place and the gradient tape keys gradients by it.
type Parameter struct {
	name   string            // Fully qualified name (e.g., "layer1.0.conv1.weight")
	tensor *tensor.RawTensor // The parameter tensor
	grad   *tensor.RawTensor // Gradient tensor (set after a backward pass)
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed yet (before backward pass).
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.RawTensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// Buffer is named, non-trainable module state saved with the parameters
// (batch norm running statistics).
type Buffer struct {
	name   string
	tensor *tensor.RawTensor
}

// NewBuffer creates a new buffer.
func NewBuffer(name string, t *tensor.RawTensor) *Buffer {
	return &Buffer{name: name, tensor: t}
}

// Name returns the buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Tensor returns the buffer tensor.
func (b *Buffer) Tensor() *tensor.RawTensor {
	return b.tensor
}
