package checkpoints

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/tsawler/go-cann/dataset"
	"github.com/tsawler/go-cann/freq"
	"github.com/tsawler/go-cann/preprocess"
)

func fitTestModel(t *testing.T) (*freq.Model, *dataset.Table) {
	t.Helper()

	tbl, err := dataset.New(6).WithNumeric("claims", []float64{0, 1, 0, 2, 1, 0})
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	tbl, err = tbl.WithNumeric("exposure", []float64{1, 0.5, 1, 0.8, 1, 0.6})
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	tbl, err = tbl.WithNumeric("age", []float64{22, 35, 41, 58, 29, 63})
	if err != nil {
		t.Fatalf("building table: %v", err)
	}

	cfg := freq.DefaultConfig()
	cfg.Hidden = []int{3}
	cfg.BatchSize = 6
	cfg.Epochs = 5
	cfg.Patience = 0
	cfg.Prefetch = 0

	model, err := freq.New(cfg, preprocess.NewBuilder().Numeric("age"), freq.Schema{Target: "claims", Weight: "exposure"})
	if err != nil {
		t.Fatalf("creating model: %v", err)
	}
	if _, err := model.Fit(tbl, nil); err != nil {
		t.Fatalf("fitting model: %v", err)
	}
	return model, tbl
}

func TestCheckpointJSONSaveLoad(t *testing.T) {
	model, tbl := fitTestModel(t)
	path := filepath.Join(t.TempDir(), "model.json")

	if err := SaveModel(model, nil, path); err != nil {
		t.Fatalf("saving checkpoint: %v", err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("loading checkpoint: %v", err)
	}

	// A restored model must reproduce predictions exactly.
	want, err := model.Predict(tbl)
	if err != nil {
		t.Fatalf("predicting with original: %v", err)
	}
	got, err := loaded.Predict(tbl)
	if err != nil {
		t.Fatalf("predicting with restored: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("prediction %d: original %g, restored %g", i, want[i], got[i])
		}
	}
}

func TestCheckpointContents(t *testing.T) {
	model, _ := fitTestModel(t)

	cp, err := FromModel(model, nil)
	if err != nil {
		t.Fatalf("building checkpoint: %v", err)
	}
	if cp.Kind != KindCANN {
		t.Errorf("expected kind %q, got %q", KindCANN, cp.Kind)
	}
	if cp.TrainingState != nil {
		t.Error("expected no training state without a history")
	}
	if len(cp.Weights) != len(model.Parameters()) {
		t.Errorf("expected %d weight tensors, got %d", len(model.Parameters()), len(cp.Weights))
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := cp.Save(path); err != nil {
		t.Fatalf("saving checkpoint: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("loading checkpoint: %v", err)
	}
	if reloaded.Metadata.Framework == "" {
		t.Error("expected framework metadata to be filled on save")
	}
	if _, err := reloaded.ToNull(); err == nil {
		t.Error("expected kind mismatch error converting a CANN checkpoint to a null model")
	}
}

func TestNullCheckpointRoundTrip(t *testing.T) {
	schema := freq.Schema{Target: "claims", Weight: "exposure"}
	null, err := freq.NewNull(0.07, schema)
	if err != nil {
		t.Fatalf("creating null model: %v", err)
	}

	path := filepath.Join(t.TempDir(), "null.json")
	if err := FromNull(null, schema).Save(path); err != nil {
		t.Fatalf("saving checkpoint: %v", err)
	}

	cp, err := Load(path)
	if err != nil {
		t.Fatalf("loading checkpoint: %v", err)
	}
	restored, err := cp.ToNull()
	if err != nil {
		t.Fatalf("restoring null model: %v", err)
	}
	if math.Abs(restored.Rate()-0.07) > 1e-12 {
		t.Errorf("expected rate 0.07, got %g", restored.Rate())
	}
	if _, err := cp.ToModel(); err == nil {
		t.Error("expected kind mismatch error converting a null checkpoint to a CANN model")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error loading a missing checkpoint")
	}
}
