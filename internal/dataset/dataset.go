// Package dataset provides image classification datasets and a batching loader.
//
// Images are stored as bytes and normalized to float32 in [-1, 1] when a
// sample is read, so a 50k image training set stays around 150 MiB in memory.
package dataset

import (
	"errors"
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
)

// ErrIndexOutOfRange is returned when a sample index is outside [0, Len()).
var ErrIndexOutOfRange = errors.New("sample index out of range")

// Sample is one normalized CHW image and its class label.
type Sample struct {
	Image []float32
	Label int
}

// Dataset is a random-access collection of labelled images.
type Dataset interface {
	// Len returns the number of samples.
	Len() int
	// Sample returns the normalized image and label at index i.
	Sample(i int) (Sample, error)
	// Shape returns the per-sample image shape [C, H, W].
	Shape() tensor.Shape
}

// Memory is an in-memory dataset of planar (CHW) byte images.
type Memory struct {
	shape  tensor.Shape
	images []byte
	labels []int32
}

// NewMemory wraps images (Len * C*H*W bytes, planar) and labels.
func NewMemory(shape tensor.Shape, images []byte, labels []int32) (*Memory, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("dataset: image shape must be [C, H, W], got %v", shape)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	size := shape.NumElements()
	if len(images) != len(labels)*size {
		return nil, fmt.Errorf("dataset: %d image bytes for %d labels of %v", len(images), len(labels), shape)
	}
	return &Memory{shape: shape.Clone(), images: images, labels: labels}, nil
}

// Len returns the number of samples.
func (m *Memory) Len() int {
	return len(m.labels)
}

// Shape returns [C, H, W].
func (m *Memory) Shape() tensor.Shape {
	return m.shape.Clone()
}

// Sample normalizes image i into a new slice.
func (m *Memory) Sample(i int) (Sample, error) {
	if i < 0 || i >= len(m.labels) {
		return Sample{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(m.labels))
	}
	size := m.shape.NumElements()
	img := make([]float32, size)
	Normalize(img, m.images[i*size:(i+1)*size])
	return Sample{Image: img, Label: int(m.labels[i])}, nil
}

// Labels returns the label slice. Callers must not modify it.
func (m *Memory) Labels() []int32 {
	return m.labels
}

// Slice returns samples [from, to) sharing storage with m.
func (m *Memory) Slice(from, to int) *Memory {
	size := m.shape.NumElements()
	return &Memory{
		shape:  m.shape,
		images: m.images[from*size : to*size],
		labels: m.labels[from:to],
	}
}

// Concat joins datasets of the same image shape.
func Concat(parts ...*Memory) (*Memory, error) {
	if len(parts) == 0 {
		return nil, errors.New("dataset: nothing to concatenate")
	}
	shape := parts[0].shape
	var images []byte
	var labels []int32
	for _, p := range parts {
		if !p.shape.Equal(shape) {
			return nil, fmt.Errorf("dataset: cannot concatenate %v with %v", p.shape, shape)
		}
		images = append(images, p.images...)
		labels = append(labels, p.labels...)
	}
	return NewMemory(shape, images, labels)
}
