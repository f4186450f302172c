package nn

import (
	"errors"
	"fmt"
	"sort"

	"github.com/born-ml/resnet/internal/tensor"
)

// ErrStateMismatch is returned when a state dictionary does not fit a model.
var ErrStateMismatch = errors.New("state dict does not match model")

// CollectState snapshots every parameter and buffer of m under its qualified name.
// The returned tensors are copies.
func CollectState(m Module) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for _, p := range m.Parameters() {
		state[p.Name()] = p.Tensor().Clone()
	}
	for _, b := range m.Buffers() {
		state[b.Name()] = b.Tensor().Clone()
	}
	return state
}

// ApplyState copies state into the tensors of m. Every name must be present with an
// identical shape and no unknown names may appear; on error m is left unchanged.
func ApplyState(m Module, state map[string]*tensor.RawTensor) error {
	targets := make(map[string]*tensor.RawTensor)
	for _, p := range m.Parameters() {
		targets[p.Name()] = p.Tensor()
	}
	for _, b := range m.Buffers() {
		targets[b.Name()] = b.Tensor()
	}

	for name, dst := range targets {
		src, ok := state[name]
		if !ok {
			return fmt.Errorf("%w: missing %q", ErrStateMismatch, name)
		}
		if !src.Shape().Equal(dst.Shape()) || src.DType() != dst.DType() {
			return fmt.Errorf("%w: %q is %s %v, model expects %s %v",
				ErrStateMismatch, name, src.DType(), src.Shape(), dst.DType(), dst.Shape())
		}
	}
	if len(state) != len(targets) {
		var extra []string
		for name := range state {
			if _, ok := targets[name]; !ok {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("%w: unexpected tensors %v", ErrStateMismatch, extra)
	}

	for name, dst := range targets {
		copy(dst.Data(), state[name].Data())
	}
	return nil
}

// StateDict returns a copy of all parameters and running statistics.
func (m *ResNet) StateDict() map[string]*tensor.RawTensor {
	return CollectState(m)
}

// LoadStateDict restores parameters and running statistics in place.
func (m *ResNet) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return ApplyState(m, state)
}
