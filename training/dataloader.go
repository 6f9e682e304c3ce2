package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/tsawler/go-cann/tensor"
)

// Dataset holds the four aligned arrays a frequency model trains on: one
// feature row, one observed claim count, one exposure weight, and one prior
// prediction per sample. It is read-only once built, so batch materialization
// needs no locking over the underlying arrays.
type Dataset struct {
	features *tensor.Tensor // [n, d]
	counts   []float64
	weights  []float64
	priors   []float64
}

// NewDataset creates a dataset from a feature matrix and aligned target,
// weight, and prior columns. All four must have the same length n; priors may
// be nil, in which case each sample's prior defaults to its exposure weight.
func NewDataset(features *tensor.Tensor, counts, weights, priors []float64) (*Dataset, error) {
	if len(features.Shape) != 2 {
		return nil, fmt.Errorf("features must be a 2D matrix, got shape %v", features.Shape)
	}
	n := features.Shape[0]
	if len(counts) != n {
		return nil, fmt.Errorf("counts length %d does not match %d feature rows", len(counts), n)
	}
	if len(weights) != n {
		return nil, fmt.Errorf("weights length %d does not match %d feature rows", len(weights), n)
	}
	if priors == nil {
		priors = make([]float64, n)
		copy(priors, weights)
	} else if len(priors) != n {
		return nil, fmt.Errorf("priors length %d does not match %d feature rows", len(priors), n)
	}

	return &Dataset{
		features: features,
		counts:   counts,
		weights:  weights,
		priors:   priors,
	}, nil
}

// Len returns the total number of samples.
func (ds *Dataset) Len() int {
	return ds.features.Shape[0]
}

// Dim returns the feature dimension.
func (ds *Dataset) Dim() int {
	return ds.features.Shape[1]
}

// Batch is a fixed group of samples ready for one forward/backward pass.
type Batch struct {
	Features *tensor.Tensor // [b, d]
	Counts   *tensor.Tensor // [b, 1]
	Weights  *tensor.Tensor // [b, 1]
	Priors   *tensor.Tensor // [b, 1]
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	return b.Features.Shape[0]
}

// DataLoader provides batching, shuffling, and prefetched loading over a
// Dataset. Training loaders shuffle each epoch and drop the final partial
// batch; validation loaders preserve row order and keep it.
type DataLoader struct {
	dataset   *Dataset
	batchSize int
	shuffle   bool
	dropLast  bool
	prefetch  int
	rng       *rand.Rand
	indices   []int
	position  int
	err       error
	quit      chan struct{}
	mutex     sync.Mutex
}

// NewDataLoader creates a new DataLoader. prefetch bounds the number of
// batches materialized ahead of the consumer by Iterator; values below 1 are
// raised to 1. seed drives the shuffle order and only matters when shuffle is
// true.
func NewDataLoader(dataset *Dataset, batchSize int, shuffle, dropLast bool, prefetch int, seed int64) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if dataset.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	if prefetch < 1 {
		prefetch = 1
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		dropLast:  dropLast,
		prefetch:  prefetch,
		rng:       rand.New(rand.NewSource(seed)),
		indices:   indices,
	}, nil
}

// Len returns the number of batches in an epoch.
func (dl *DataLoader) Len() int {
	n := dl.dataset.Len()
	if dl.dropLast {
		return n / dl.batchSize
	}
	return (n + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader for a new epoch, reshuffling if configured.
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	dl.err = nil

	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch or nil when the epoch is complete.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.next()
}

func (dl *DataLoader) next() (*Batch, error) {
	remaining := len(dl.indices) - dl.position
	if remaining <= 0 {
		return nil, nil
	}
	if remaining < dl.batchSize && dl.dropLast {
		return nil, nil
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %v", err)
	}
	return batch, nil
}

// HasNext returns true if there are more batches in the current epoch.
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	remaining := len(dl.indices) - dl.position
	if dl.dropLast {
		return remaining >= dl.batchSize
	}
	return remaining > 0
}

// loadBatch gathers the given sample indices into fresh batch tensors. Each
// batch owns its data, so batches handed to a consumer are independent of the
// loader's iteration state.
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch indices")
	}

	b := len(indices)
	d := dl.dataset.Dim()

	featureData := make([]float64, b*d)
	countData := make([]float64, b)
	weightData := make([]float64, b)
	priorData := make([]float64, b)

	for i, idx := range indices {
		if idx < 0 || idx >= dl.dataset.Len() {
			return nil, fmt.Errorf("sample index %d out of range [0, %d)", idx, dl.dataset.Len())
		}
		copy(featureData[i*d:(i+1)*d], dl.dataset.features.Data[idx*d:(idx+1)*d])
		countData[i] = dl.dataset.counts[idx]
		weightData[i] = dl.dataset.weights[idx]
		priorData[i] = dl.dataset.priors[idx]
	}

	features, err := tensor.NewTensor([]int{b, d}, featureData)
	if err != nil {
		return nil, err
	}
	counts, err := tensor.NewTensor([]int{b, 1}, countData)
	if err != nil {
		return nil, err
	}
	weights, err := tensor.NewTensor([]int{b, 1}, weightData)
	if err != nil {
		return nil, err
	}
	priors, err := tensor.NewTensor([]int{b, 1}, priorData)
	if err != nil {
		return nil, err
	}

	return &Batch{Features: features, Counts: counts, Weights: weights, Priors: priors}, nil
}

// Iterator resets the loader and returns a channel that yields every batch of
// one epoch. Batches are materialized by a single background goroutine into a
// channel buffered to the configured prefetch depth, overlapping batch
// assembly with the consumer's compute. After the channel closes the caller
// must check Err.
func (dl *DataLoader) Iterator() <-chan *Batch {
	batchChan := make(chan *Batch, dl.prefetch)
	quit := make(chan struct{})

	dl.mutex.Lock()
	dl.quit = quit
	dl.mutex.Unlock()

	go func() {
		defer close(batchChan)

		dl.Reset()

		for {
			batch, err := dl.Next()
			if err != nil {
				dl.mutex.Lock()
				dl.err = err
				dl.mutex.Unlock()
				return
			}
			if batch == nil {
				return
			}
			select {
			case batchChan <- batch:
			case <-quit:
				return
			}
		}
	}()

	return batchChan
}

// Stop releases the producer goroutine of the most recent Iterator pass.
// Consumers that abandon the channel before exhausting it must call Stop or
// the producer blocks forever on its next send. Safe to call repeatedly and
// after normal exhaustion.
func (dl *DataLoader) Stop() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	if dl.quit != nil {
		close(dl.quit)
		dl.quit = nil
	}
}

// Err returns the first error encountered by the most recent Iterator pass,
// or nil.
func (dl *DataLoader) Err() error {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.err
}
