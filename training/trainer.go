package training

import (
	"fmt"
	"math"
	"time"

	"github.com/tsawler/go-cann/optimizer"
	"github.com/tsawler/go-cann/tensor"
)

// Predictor is what the Trainer trains: a model that maps a batch to
// predicted claim counts and can push a loss gradient back through itself.
type Predictor interface {
	// PredictBatch returns predicted counts [b, 1] for the batch.
	PredictBatch(batch *Batch, mode Mode) (*tensor.Tensor, error)
	// BackwardBatch propagates dLoss/dPrediction from the batch it last
	// predicted in Train mode.
	BackwardBatch(gradPred *tensor.Tensor) error
	// Parameters returns the trainable parameters.
	Parameters() []*tensor.Tensor
}

// TrainerConfig holds configuration for training.
type TrainerConfig struct {
	Epochs      int     // Hard cap on epochs; training always terminates within it
	Patience    int     // Consecutive non-improving epochs before early stop
	MinDelta    float64 // Minimum validation-loss improvement that resets patience
	RestoreBest bool    // Restore parameters from the best validation epoch on stop
	Verbose     bool    // Render a progress bar and epoch summaries
}

// DefaultTrainerConfig returns the configuration used when callers have no
// opinion: 100 epochs, patience 10, min delta 1e-4, best-epoch restore on.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Epochs:      100,
		Patience:    10,
		MinDelta:    1e-4,
		RestoreBest: true,
	}
}

// EpochMetrics holds metrics for a single epoch.
type EpochMetrics struct {
	Epoch        int
	TrainLoss    float64
	ValidLoss    float64
	LearningRate float64
	Duration     time.Duration
	BatchCount   int
}

// History records the progress of one training run.
type History struct {
	Epochs        []EpochMetrics
	BestEpoch     int
	BestValidLoss float64
	StoppedEarly  bool
}

// Trainer manages the training process: epoch loop, validation, early
// stopping, and best-checkpoint bookkeeping.
type Trainer struct {
	model     Predictor
	optimizer optimizer.Optimizer
	criterion Loss
	scheduler LRScheduler
	config    TrainerConfig
}

// NewTrainer creates a new Trainer. scheduler may be nil for a constant
// learning rate.
func NewTrainer(model Predictor, opt optimizer.Optimizer, criterion Loss, scheduler LRScheduler, config TrainerConfig) (*Trainer, error) {
	if model == nil || opt == nil || criterion == nil {
		return nil, fmt.Errorf("model, optimizer, and criterion are required")
	}
	if config.Epochs <= 0 {
		return nil, fmt.Errorf("epoch count must be positive, got %d", config.Epochs)
	}
	if config.Patience < 0 {
		return nil, fmt.Errorf("patience must be non-negative, got %d", config.Patience)
	}
	if scheduler == nil {
		scheduler = &NoOpScheduler{}
	}

	return &Trainer{
		model:     model,
		optimizer: opt,
		criterion: criterion,
		scheduler: scheduler,
		config:    config,
	}, nil
}

// Train runs the complete training loop. validLoader provides the held-out
// loss monitored for early stopping; when it is nil the training loss is
// monitored instead. Non-finite losses abort the run with an error so that
// diverged parameters are never silently returned.
func (t *Trainer) Train(trainLoader, validLoader *DataLoader) (*History, error) {
	history := &History{BestEpoch: -1, BestValidLoss: math.Inf(1)}

	baseLR := t.optimizer.GetLR()
	patienceCounter := 0
	var bestParams [][]float64

	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		epochStart := time.Now()

		if plateau, ok := t.scheduler.(*ReduceLROnPlateauScheduler); ok {
			t.optimizer.SetLR(plateau.GetLR(epoch, 0, baseLR))
		} else {
			t.optimizer.SetLR(t.scheduler.GetLR(epoch, 0, baseLR))
		}

		trainLoss, batchCount, err := t.trainEpoch(trainLoader, epoch)
		if err != nil {
			return history, fmt.Errorf("training epoch %d failed: %v", epoch, err)
		}

		monitored := trainLoss
		validLoss := math.NaN()
		if validLoader != nil {
			validLoss, err = t.validateEpoch(validLoader)
			if err != nil {
				return history, fmt.Errorf("validation epoch %d failed: %v", epoch, err)
			}
			monitored = validLoss
		}

		metrics := EpochMetrics{
			Epoch:        epoch,
			TrainLoss:    trainLoss,
			ValidLoss:    validLoss,
			LearningRate: t.optimizer.GetLR(),
			Duration:     time.Since(epochStart),
			BatchCount:   batchCount,
		}
		history.Epochs = append(history.Epochs, metrics)

		if t.config.Verbose {
			t.printEpochSummary(metrics)
		}

		if plateau, ok := t.scheduler.(*ReduceLROnPlateauScheduler); ok {
			t.optimizer.SetLR(plateau.Step(monitored, t.optimizer.GetLR()))
		}

		if monitored < history.BestValidLoss-t.config.MinDelta {
			history.BestValidLoss = monitored
			history.BestEpoch = epoch
			patienceCounter = 0
			if t.config.RestoreBest {
				bestParams = snapshotParams(t.model.Parameters())
			}
		} else {
			patienceCounter++
			if t.config.Patience > 0 && patienceCounter >= t.config.Patience {
				history.StoppedEarly = true
				if t.config.Verbose {
					fmt.Printf("Early stopping triggered after %d epochs\n", epoch+1)
				}
				break
			}
		}
	}

	if t.config.RestoreBest && bestParams != nil {
		if err := restoreParams(t.model.Parameters(), bestParams); err != nil {
			return history, fmt.Errorf("failed to restore best-epoch parameters: %v", err)
		}
	}

	return history, nil
}

// trainEpoch runs one training epoch and returns the sample-weighted average
// training loss.
func (t *Trainer) trainEpoch(trainLoader *DataLoader, epoch int) (float64, int, error) {
	var totalLoss float64
	var totalSamples int
	var batchCount int

	var bar *ProgressBar
	if t.config.Verbose {
		bar = NewProgressBar(fmt.Sprintf("Epoch %d", epoch+1), trainLoader.Len())
	}

	// releases the producer goroutine if an error aborts the range early
	defer trainLoader.Stop()

	for batch := range trainLoader.Iterator() {
		t.optimizer.ZeroGrad()

		predicted, err := t.model.PredictBatch(batch, Train)
		if err != nil {
			return 0, 0, fmt.Errorf("forward pass failed: %v", err)
		}

		lossValue, err := t.criterion.Forward(predicted, batch.Counts, batch.Weights)
		if err != nil {
			return 0, 0, fmt.Errorf("loss computation failed: %v", err)
		}
		if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
			return 0, 0, fmt.Errorf("non-finite training loss %g at epoch %d, batch %d", lossValue, epoch, batchCount)
		}

		gradPred, err := t.criterion.Backward(predicted, batch.Counts, batch.Weights)
		if err != nil {
			return 0, 0, fmt.Errorf("loss gradient failed: %v", err)
		}

		if err := t.model.BackwardBatch(gradPred); err != nil {
			return 0, 0, fmt.Errorf("backward pass failed: %v", err)
		}

		if err := t.optimizer.Step(); err != nil {
			return 0, 0, fmt.Errorf("optimizer step failed: %v", err)
		}

		batchSize := batch.Size()
		totalLoss += lossValue * float64(batchSize)
		totalSamples += batchSize
		batchCount++

		if bar != nil {
			bar.Update(batchCount, map[string]float64{"loss": totalLoss / float64(totalSamples)})
		}
	}

	if err := trainLoader.Err(); err != nil {
		return 0, 0, err
	}
	if totalSamples == 0 {
		return 0, 0, fmt.Errorf("training epoch produced no batches; dataset smaller than batch size?")
	}

	if bar != nil {
		bar.Finish()
	}

	return totalLoss / float64(totalSamples), batchCount, nil
}

// validateEpoch computes the validation loss without parameter updates.
func (t *Trainer) validateEpoch(validLoader *DataLoader) (float64, error) {
	var totalLoss float64
	var totalSamples int

	defer validLoader.Stop()

	for batch := range validLoader.Iterator() {
		predicted, err := t.model.PredictBatch(batch, Eval)
		if err != nil {
			return 0, fmt.Errorf("validation forward pass failed: %v", err)
		}

		lossValue, err := t.criterion.Forward(predicted, batch.Counts, batch.Weights)
		if err != nil {
			return 0, fmt.Errorf("validation loss computation failed: %v", err)
		}
		if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
			return 0, fmt.Errorf("non-finite validation loss %g", lossValue)
		}

		batchSize := batch.Size()
		totalLoss += lossValue * float64(batchSize)
		totalSamples += batchSize
	}

	if err := validLoader.Err(); err != nil {
		return 0, err
	}
	if totalSamples == 0 {
		return 0, fmt.Errorf("validation epoch produced no batches")
	}

	return totalLoss / float64(totalSamples), nil
}

// printEpochSummary prints a summary of the epoch results.
func (t *Trainer) printEpochSummary(metrics EpochMetrics) {
	fmt.Printf("Epoch %d/%d: Train Loss=%.6f", metrics.Epoch+1, t.config.Epochs, metrics.TrainLoss)
	if !math.IsNaN(metrics.ValidLoss) {
		fmt.Printf(", Valid Loss=%.6f", metrics.ValidLoss)
	}
	fmt.Printf(", LR=%.5f, Time=%v, Batches=%d\n", metrics.LearningRate, metrics.Duration, metrics.BatchCount)
}

// snapshotParams deep-copies parameter data for later restoration.
func snapshotParams(params []*tensor.Tensor) [][]float64 {
	snapshot := make([][]float64, len(params))
	for i, p := range params {
		buf := make([]float64, len(p.Data))
		copy(buf, p.Data)
		snapshot[i] = buf
	}
	return snapshot
}

// restoreParams copies a snapshot back into the live parameters.
func restoreParams(params []*tensor.Tensor, snapshot [][]float64) error {
	if len(params) != len(snapshot) {
		return fmt.Errorf("snapshot has %d tensors, model has %d", len(snapshot), len(params))
	}
	for i, p := range params {
		if err := p.SetData(snapshot[i]); err != nil {
			return fmt.Errorf("parameter %d: %v", i, err)
		}
	}
	return nil
}
