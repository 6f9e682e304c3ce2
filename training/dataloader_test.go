package training

import (
	"runtime"
	"testing"
	"time"

	"github.com/tsawler/go-cann/tensor"
)

// makeDataset builds a dataset of n samples with one feature equal to the
// sample index, so batches can be traced back to their source rows.
func makeDataset(t *testing.T, n int) *Dataset {
	t.Helper()

	featureData := make([]float64, n)
	counts := make([]float64, n)
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		featureData[i] = float64(i)
		counts[i] = float64(i % 3)
		weights[i] = 1.0
	}

	features, err := tensor.NewTensor([]int{n, 1}, featureData)
	if err != nil {
		t.Fatalf("Failed to create features: %v", err)
	}

	ds, err := NewDataset(features, counts, weights, nil)
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}
	return ds
}

func TestDatasetDefaults(t *testing.T) {
	t.Run("prior defaults to weight", func(t *testing.T) {
		features, _ := tensor.NewTensor([]int{2, 1}, []float64{1, 2})
		ds, err := NewDataset(features, []float64{0, 1}, []float64{0.5, 2.0}, nil)
		if err != nil {
			t.Fatalf("Failed to create dataset: %v", err)
		}
		if ds.priors[0] != 0.5 || ds.priors[1] != 2.0 {
			t.Errorf("expected priors to default to weights, got %v", ds.priors)
		}
	})

	t.Run("length mismatch rejected", func(t *testing.T) {
		features, _ := tensor.NewTensor([]int{2, 1}, []float64{1, 2})
		if _, err := NewDataset(features, []float64{0}, []float64{1, 1}, nil); err == nil {
			t.Error("Expected error for counts length mismatch")
		}
		if _, err := NewDataset(features, []float64{0, 1}, []float64{1, 1}, []float64{1}); err == nil {
			t.Error("Expected error for priors length mismatch")
		}
	})
}

func TestDataLoaderTraining(t *testing.T) {
	ds := makeDataset(t, 10)

	t.Run("drops final partial batch", func(t *testing.T) {
		dl, err := NewDataLoader(ds, 3, true, true, 1, 1)
		if err != nil {
			t.Fatalf("Failed to create loader: %v", err)
		}

		if dl.Len() != 3 {
			t.Errorf("expected 3 batches for 10 samples at batch size 3 with drop-last, got %d", dl.Len())
		}

		var batches int
		var samples int
		for batch := range dl.Iterator() {
			if batch.Size() != 3 {
				t.Errorf("expected every training batch to be full, got size %d", batch.Size())
			}
			batches++
			samples += batch.Size()
		}
		if err := dl.Err(); err != nil {
			t.Fatalf("Iterator error: %v", err)
		}

		if batches != 3 || samples != 9 {
			t.Errorf("expected 3 batches of 9 samples, got %d batches of %d samples", batches, samples)
		}
	})

	t.Run("epoch covers samples without replacement", func(t *testing.T) {
		dl, err := NewDataLoader(ds, 2, true, true, 1, 7)
		if err != nil {
			t.Fatalf("Failed to create loader: %v", err)
		}

		seen := make(map[float64]int)
		for batch := range dl.Iterator() {
			for i := 0; i < batch.Size(); i++ {
				seen[batch.Features.At(i, 0)]++
			}
		}
		if err := dl.Err(); err != nil {
			t.Fatalf("Iterator error: %v", err)
		}

		if len(seen) != 10 {
			t.Errorf("expected all 10 samples exactly once, saw %d distinct", len(seen))
		}
		for id, count := range seen {
			if count != 1 {
				t.Errorf("sample %g drawn %d times within one epoch", id, count)
			}
		}
	})

	t.Run("shuffle order changes across epochs", func(t *testing.T) {
		dl, err := NewDataLoader(ds, 10, true, true, 1, 3)
		if err != nil {
			t.Fatalf("Failed to create loader: %v", err)
		}

		var first, second []float64
		for batch := range dl.Iterator() {
			for i := 0; i < batch.Size(); i++ {
				first = append(first, batch.Features.At(i, 0))
			}
		}
		for batch := range dl.Iterator() {
			for i := 0; i < batch.Size(); i++ {
				second = append(second, batch.Features.At(i, 0))
			}
		}

		same := true
		for i := range first {
			if first[i] != second[i] {
				same = false
				break
			}
		}
		if same {
			t.Error("expected different shuffle order across epochs")
		}
	})
}

func TestDataLoaderValidation(t *testing.T) {
	ds := makeDataset(t, 10)

	dl, err := NewDataLoader(ds, 4, false, false, 1, 0)
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}

	if dl.Len() != 3 {
		t.Errorf("expected 3 batches (4+4+2), got %d", dl.Len())
	}

	var order []float64
	var sizes []int
	for batch := range dl.Iterator() {
		sizes = append(sizes, batch.Size())
		for i := 0; i < batch.Size(); i++ {
			order = append(order, batch.Features.At(i, 0))
		}
	}
	if err := dl.Err(); err != nil {
		t.Fatalf("Iterator error: %v", err)
	}

	if len(sizes) != 3 || sizes[2] != 2 {
		t.Fatalf("expected final partial batch of size 2 to be kept, got sizes %v", sizes)
	}

	for i, v := range order {
		if v != float64(i) {
			t.Errorf("validation order not preserved at %d: got %g", i, v)
		}
	}
}

func TestDataLoaderValidationErrors(t *testing.T) {
	ds := makeDataset(t, 4)

	if _, err := NewDataLoader(ds, 0, true, true, 1, 0); err == nil {
		t.Error("Expected error for non-positive batch size")
	}
}

func TestStopReleasesAbandonedIterators(t *testing.T) {
	ds := makeDataset(t, 10)
	before := runtime.NumGoroutine()

	// Consume a single batch from each iterator, then walk away. Without
	// Stop, each producer would block forever on its next send.
	for i := 0; i < 10; i++ {
		loader, err := NewDataLoader(ds, 2, false, false, 1, 0)
		if err != nil {
			t.Fatalf("Failed to create loader: %v", err)
		}
		if _, ok := <-loader.Iterator(); !ok {
			t.Fatal("Expected at least one batch")
		}
		loader.Stop()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before {
		t.Errorf("Leaked goroutines: %d before, %d after abandoning 10 iterators", before, after)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	loader, err := NewDataLoader(makeDataset(t, 4), 2, false, false, 1, 0)
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}

	// Stop before any iterator, after exhaustion, and repeatedly.
	loader.Stop()
	for range loader.Iterator() {
	}
	loader.Stop()
	loader.Stop()
	if err := loader.Err(); err != nil {
		t.Errorf("Unexpected loader error: %v", err)
	}
}
