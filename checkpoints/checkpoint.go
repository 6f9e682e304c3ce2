// Package checkpoints persists fitted frequency models to JSON and restores
// them for scoring. A checkpoint carries everything needed to reproduce
// predictions exactly: the model configuration, the fitted feature
// transform, and the network weights.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tsawler/go-cann/freq"
	"github.com/tsawler/go-cann/preprocess"
	"github.com/tsawler/go-cann/training"
)

// Model kinds stored in a checkpoint.
const (
	KindCANN = "cann"
	KindNull = "null"
)

// Checkpoint represents a complete model state including weights, the fitted
// feature transform, and training metadata.
type Checkpoint struct {
	Kind string `json:"kind"`

	// CANN / GLM state
	Config    *freq.Config      `json:"config,omitempty"`
	Schema    freq.Schema       `json:"schema"`
	Transform *preprocess.State `json:"transform,omitempty"`
	Weights   []WeightTensor    `json:"weights,omitempty"`

	// Null model state
	Rate float64 `json:"rate,omitempty"`

	TrainingState *TrainingState     `json:"training_state,omitempty"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// TrainingState captures how the checkpointed weights were reached.
type TrainingState struct {
	Epochs        int     `json:"epochs"`
	BestEpoch     int     `json:"best_epoch"`
	BestValidLoss float64 `json:"best_valid_loss"`
	StoppedEarly  bool    `json:"stopped_early"`
}

// CheckpointMetadata contains checkpoint metadata.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// FromModel builds a checkpoint from a fitted model. history may be nil for
// models loaded and re-saved without training.
func FromModel(model *freq.Model, history *training.History) (*Checkpoint, error) {
	if model == nil || model.Transform() == nil {
		return nil, fmt.Errorf("cannot checkpoint an unfitted model")
	}

	params := model.Parameters()
	weights := make([]WeightTensor, len(params))
	for i, p := range params {
		weights[i] = WeightTensor{
			Name:  fmt.Sprintf("param_%d", i),
			Shape: append([]int{}, p.Shape...),
			Data:  append([]float64{}, p.Data...),
		}
	}

	config := model.Config()
	state := model.Transform().State()
	cp := &Checkpoint{
		Kind:      KindCANN,
		Config:    &config,
		Schema:    model.Schema(),
		Transform: &state,
		Weights:   weights,
	}
	if history != nil {
		cp.TrainingState = &TrainingState{
			Epochs:        len(history.Epochs),
			BestEpoch:     history.BestEpoch,
			BestValidLoss: history.BestValidLoss,
			StoppedEarly:  history.StoppedEarly,
		}
	}
	return cp, nil
}

// FromNull builds a checkpoint from a fitted null model.
func FromNull(null *freq.Null, schema freq.Schema) *Checkpoint {
	return &Checkpoint{Kind: KindNull, Schema: schema, Rate: null.Rate()}
}

// ToModel reconstructs the fitted model from a CANN checkpoint.
func (cp *Checkpoint) ToModel() (*freq.Model, error) {
	if cp.Kind != KindCANN {
		return nil, fmt.Errorf("checkpoint holds a %q model, not %q", cp.Kind, KindCANN)
	}
	if cp.Config == nil || cp.Transform == nil {
		return nil, fmt.Errorf("checkpoint is missing config or transform state")
	}
	weights := make([][]float64, len(cp.Weights))
	for i, w := range cp.Weights {
		weights[i] = w.Data
	}
	model, err := freq.Restore(*cp.Config, cp.Schema, *cp.Transform, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to restore model: %v", err)
	}
	return model, nil
}

// ToNull reconstructs the null model from a null checkpoint.
func (cp *Checkpoint) ToNull() (*freq.Null, error) {
	if cp.Kind != KindNull {
		return nil, fmt.Errorf("checkpoint holds a %q model, not %q", cp.Kind, KindNull)
	}
	return freq.NewNull(cp.Rate, cp.Schema)
}

// Save writes the checkpoint to path as indented JSON.
func (cp *Checkpoint) Save(path string) error {
	if cp.Metadata.Framework == "" {
		cp.Metadata.Framework = "go-cann"
		cp.Metadata.Version = "1.0.0"
		cp.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(cp); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

// Load reads a checkpoint from path.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	if cp.Kind == "" {
		return nil, fmt.Errorf("checkpoint has no model kind")
	}
	return &cp, nil
}

// SaveModel is the one-call path: checkpoint a fitted model with its
// training history and write it to path.
func SaveModel(model *freq.Model, history *training.History, path string) error {
	cp, err := FromModel(model, history)
	if err != nil {
		return err
	}
	return cp.Save(path)
}

// LoadModel is the one-call path: read a CANN checkpoint and reconstruct
// the fitted model.
func LoadModel(path string) (*freq.Model, error) {
	cp, err := Load(path)
	if err != nil {
		return nil, err
	}
	return cp.ToModel()
}
