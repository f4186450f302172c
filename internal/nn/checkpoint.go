package nn

import (
	"fmt"

	"github.com/born-ml/resnet/internal/serialization"
	"github.com/born-ml/resnet/internal/tensor"
)

// Snapshotter is a model whose full state can be saved and restored.
type Snapshotter interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(state map[string]*tensor.RawTensor) error
	ModelType() string
}

// SaveStateDict writes the model state to path in the .born format. meta may be nil.
func SaveStateDict(path string, model Snapshotter, meta *serialization.CheckpointMeta) error {
	header := serialization.Header{
		ModelType:      model.ModelType(),
		CheckpointMeta: meta,
	}
	if err := serialization.WriteFile(path, model.StateDict(), header); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// LoadStateDict reads path and loads it into model. The checkpoint meta of the
// file is returned when present.
func LoadStateDict(path string, model Snapshotter) (*serialization.CheckpointMeta, error) {
	reader, err := serialization.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	header := reader.Header()
	if header.ModelType != model.ModelType() {
		return nil, fmt.Errorf("load %s: %w: file holds %q, model is %q",
			path, ErrStateMismatch, header.ModelType, model.ModelType())
	}

	state, err := reader.ReadStateDict()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := model.LoadStateDict(state); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return header.CheckpointMeta, nil
}
