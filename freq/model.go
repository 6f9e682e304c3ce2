// Package freq implements claim-frequency models for count data with
// exposure weights. The central type is Model, a combined model that
// multiplies a per-record prior expectation by a learned positive
// correction factor exp(network(x)). Special cases fall out of the same
// machinery: with no hidden layers the network is a log-linear model
// (a Poisson GLM with the prior as offset), and with the prior left at
// the exposure it is a plain neural frequency model.
package freq

import (
	"math"
	"math/rand"
	"strings"

	"github.com/pkg/errors"

	"github.com/tsawler/go-cann/dataset"
	"github.com/tsawler/go-cann/optimizer"
	"github.com/tsawler/go-cann/preprocess"
	"github.com/tsawler/go-cann/tensor"
	"github.com/tsawler/go-cann/training"
)

// Schema names the target columns of a claims table.
type Schema struct {
	// Target is the claim-count column.
	Target string
	// Weight is the exposure column. Values must be strictly positive.
	Weight string
	// Prior is the column holding a prior expected count per record,
	// typically the prediction of an already-fitted GLM. When empty the
	// exposure is used as the prior.
	Prior string
}

// Config holds the model architecture and training hyperparameters.
type Config struct {
	Hidden       []int   // Hidden layer widths; empty for a GLM
	Activation   string  // "relu" or "tanh"
	Dropout      float64 // Dropout probability after each hidden activation; 0 disables
	BatchSize    int
	Epochs       int
	LearningRate float64
	Optimizer    string // "adam", "sgd", or "rmsprop"
	LRStepSize   int    // Epochs between learning-rate decays; 0 disables
	LRGamma      float64
	Patience     int // Non-improving epochs before early stop; 0 disables
	MinDelta     float64
	RestoreBest  bool
	Seed         int64
	Prefetch     int
	Verbose      bool
}

// DefaultConfig returns the configuration used when callers have no opinion.
func DefaultConfig() Config {
	return Config{
		Hidden:       []int{20, 15, 10},
		Activation:   "relu",
		Dropout:      0.0,
		BatchSize:    1024,
		Epochs:       100,
		LearningRate: 1e-3,
		Optimizer:    "adam",
		LRGamma:      0.1,
		Patience:     10,
		MinDelta:     1e-4,
		RestoreBest:  true,
		Seed:         42,
		Prefetch:     2,
	}
}

// Model is a claim-frequency model of the form
//
//	E[count] = prior * exp(network(features))
//
// The final network layer is zero-initialized, so an untrained model
// reproduces its prior exactly and training can only move away from it
// where the data demands.
type Model struct {
	config    Config
	schema    Schema
	builder   *preprocess.Builder
	transform *preprocess.Transform
	net       *training.Sequential

	// prediction of the last Train-mode batch, needed by BackwardBatch
	lastPred *tensor.Tensor
}

// New creates an unfitted model. The builder declares the feature columns;
// its transform is fitted on the training data when Fit is called.
func New(config Config, builder *preprocess.Builder, schema Schema) (*Model, error) {
	if builder == nil {
		return nil, errors.New("a feature builder is required")
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	if schema.Target == "" || schema.Weight == "" {
		return nil, errors.New("schema must name target and weight columns")
	}
	return &Model{config: config, schema: schema, builder: builder}, nil
}

// NewGLM creates an unfitted log-linear model: the same training machinery
// with no hidden layers.
func NewGLM(config Config, builder *preprocess.Builder, schema Schema) (*Model, error) {
	config.Hidden = nil
	config.Dropout = 0
	return New(config, builder, schema)
}

// Restore rebuilds a fitted model from serialized state: the config, the
// fitted feature transform, and the network weights in Parameters order.
func Restore(config Config, schema Schema, state preprocess.State, weights [][]float64) (*Model, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	transform, err := preprocess.NewTransform(state)
	if err != nil {
		return nil, errors.Wrap(err, "restoring feature transform")
	}

	m := &Model{config: config, schema: schema, transform: transform}
	if err := m.buildNet(); err != nil {
		return nil, err
	}
	if err := m.SetWeights(weights); err != nil {
		return nil, err
	}
	return m, nil
}

func validateConfig(c *Config) error {
	for i, h := range c.Hidden {
		if h <= 0 {
			return errors.Errorf("hidden layer %d has non-positive width %d", i, h)
		}
	}
	if c.Activation == "" {
		c.Activation = "relu"
	}
	switch strings.ToLower(c.Activation) {
	case "relu", "tanh":
	default:
		return errors.Errorf("unknown activation %q", c.Activation)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epoch count must be positive, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.Optimizer == "" {
		c.Optimizer = "adam"
	}
	switch strings.ToLower(c.Optimizer) {
	case "adam", "sgd", "rmsprop":
	default:
		return errors.Errorf("unknown optimizer %q", c.Optimizer)
	}
	return nil
}

// buildNet constructs the network for the fitted transform's feature
// dimension. The output layer is zero-initialized so the untrained
// correction factor is exactly one.
func (m *Model) buildNet() error {
	if m.transform == nil {
		return errors.New("feature transform is not fitted")
	}
	rng := rand.New(rand.NewSource(m.config.Seed))

	net := training.NewSequential()
	prev := m.transform.Dim()
	for _, h := range m.config.Hidden {
		linear, err := training.NewLinear(prev, h, true, training.Xavier, rng)
		if err != nil {
			return errors.Wrap(err, "building hidden layer")
		}
		net.Add(linear)
		switch strings.ToLower(m.config.Activation) {
		case "tanh":
			net.Add(training.NewTanh())
		default:
			net.Add(training.NewReLU())
		}
		if m.config.Dropout > 0 {
			dropout, err := training.NewDropout(m.config.Dropout, rng)
			if err != nil {
				return errors.Wrap(err, "building dropout layer")
			}
			net.Add(dropout)
		}
		prev = h
	}

	out, err := training.NewLinear(prev, 1, true, training.ZeroInit, rng)
	if err != nil {
		return errors.Wrap(err, "building output layer")
	}
	net.Add(out)

	m.net = net
	return nil
}

func (m *Model) buildOptimizer() optimizer.Optimizer {
	params := m.net.Parameters()
	switch strings.ToLower(m.config.Optimizer) {
	case "sgd":
		return optimizer.NewSGD(params, m.config.LearningRate, 0.9, 0, 0, false)
	case "rmsprop":
		return optimizer.NewRMSProp(params, m.config.LearningRate, 0.99, 1e-8, 0)
	default:
		return optimizer.DefaultAdam(params, m.config.LearningRate)
	}
}

func (m *Model) newLoader(tbl *dataset.Table, shuffle, dropLast bool) (*training.DataLoader, error) {
	features, err := m.transform.Apply(tbl)
	if err != nil {
		return nil, errors.Wrap(err, "encoding features")
	}
	targets, err := dataset.ExtractTargets(tbl, m.schema.Target, m.schema.Weight, m.schema.Prior)
	if err != nil {
		return nil, errors.Wrap(err, "extracting targets")
	}
	ds, err := training.NewDataset(features, targets.Counts, targets.Weights, targets.Priors)
	if err != nil {
		return nil, err
	}

	batchSize := m.config.BatchSize
	if batchSize > ds.Len() {
		batchSize = ds.Len()
	}
	return training.NewDataLoader(ds, batchSize, shuffle, dropLast, m.config.Prefetch, m.config.Seed)
}

// Fit fits the feature transform on the training table, builds the network,
// and trains it under weighted Poisson deviance. valid may be nil, in which
// case early stopping monitors the training loss.
func (m *Model) Fit(train, valid *dataset.Table) (*training.History, error) {
	if train == nil || train.NumRows() == 0 {
		return nil, errors.New("training table is empty")
	}
	if m.builder == nil {
		return nil, errors.New("model was restored from a checkpoint and cannot be refitted")
	}

	transform, err := m.builder.Fit(train)
	if err != nil {
		return nil, errors.Wrap(err, "fitting feature transform")
	}
	m.transform = transform
	if err := m.buildNet(); err != nil {
		return nil, err
	}

	trainLoader, err := m.newLoader(train, true, true)
	if err != nil {
		return nil, errors.Wrap(err, "building training loader")
	}
	var validLoader *training.DataLoader
	if valid != nil && valid.NumRows() > 0 {
		validLoader, err = m.newLoader(valid, false, false)
		if err != nil {
			return nil, errors.Wrap(err, "building validation loader")
		}
	}

	var scheduler training.LRScheduler
	if m.config.LRStepSize > 0 {
		scheduler = training.NewStepLRScheduler(m.config.LRStepSize, m.config.LRGamma)
	}

	trainer, err := training.NewTrainer(m, m.buildOptimizer(), training.NewPoissonDevianceLoss(training.DefaultEps), scheduler, training.TrainerConfig{
		Epochs:      m.config.Epochs,
		Patience:    m.config.Patience,
		MinDelta:    m.config.MinDelta,
		RestoreBest: m.config.RestoreBest,
		Verbose:     m.config.Verbose,
	})
	if err != nil {
		return nil, err
	}

	history, err := trainer.Train(trainLoader, validLoader)
	if err != nil {
		return nil, errors.Wrap(err, "training")
	}
	return history, nil
}

// PredictBatch computes prior * exp(network(features)) for one batch.
func (m *Model) PredictBatch(batch *training.Batch, mode training.Mode) (*tensor.Tensor, error) {
	if m.net == nil {
		return nil, errors.New("model is not fitted")
	}
	z, err := m.net.Forward(batch.Features, mode)
	if err != nil {
		return nil, err
	}
	correction, err := tensor.Exp(z)
	if err != nil {
		return nil, err
	}
	pred, err := tensor.Mul(batch.Priors, correction)
	if err != nil {
		return nil, err
	}
	if mode == training.Train {
		m.lastPred = pred
	}
	return pred, nil
}

// BackwardBatch propagates dLoss/dPrediction through the multiplicative
// structure: dPred/dz = pred, so the network sees gradPred * pred.
func (m *Model) BackwardBatch(gradPred *tensor.Tensor) error {
	if m.lastPred == nil {
		return errors.New("BackwardBatch called before a Train-mode PredictBatch")
	}
	gradZ, err := tensor.Mul(gradPred, m.lastPred)
	if err != nil {
		return err
	}
	_, err = m.net.Backward(gradZ)
	return err
}

// Parameters returns the trainable network parameters.
func (m *Model) Parameters() []*tensor.Tensor {
	if m.net == nil {
		return nil
	}
	return m.net.Parameters()
}

// Predict returns the expected claim count per row of the table.
func (m *Model) Predict(tbl *dataset.Table) ([]float64, error) {
	priors, err := m.priors(tbl)
	if err != nil {
		return nil, err
	}
	correction, err := m.Correction(tbl)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(priors))
	for i := range out {
		out[i] = priors[i] * correction[i]
	}
	return out, nil
}

// Correction returns the multiplicative adjustment exp(network(x)) per row,
// independent of the prior. Values are strictly positive; a value of one
// means the model agrees with its prior for that row.
func (m *Model) Correction(tbl *dataset.Table) ([]float64, error) {
	if m.net == nil || m.transform == nil {
		return nil, errors.New("model is not fitted")
	}
	features, err := m.transform.Apply(tbl)
	if err != nil {
		return nil, errors.Wrap(err, "encoding features")
	}
	z, err := m.net.Forward(features, training.Eval)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(z.Data))
	for i, v := range z.Data {
		out[i] = math.Exp(v)
	}
	return out, nil
}

func (m *Model) priors(tbl *dataset.Table) ([]float64, error) {
	col := m.schema.Prior
	if col == "" {
		col = m.schema.Weight
	}
	priors, err := tbl.Numeric(col)
	if err != nil {
		return nil, errors.Wrap(err, "reading prior column")
	}
	return priors, nil
}

// Config returns the model configuration.
func (m *Model) Config() Config {
	return m.config
}

// Schema returns the target column names.
func (m *Model) Schema() Schema {
	return m.schema
}

// Transform returns the fitted feature transform, or nil before Fit.
func (m *Model) Transform() *preprocess.Transform {
	return m.transform
}

// Weights returns a copy of the network parameters in Parameters order,
// suitable for checkpointing.
func (m *Model) Weights() [][]float64 {
	params := m.Parameters()
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = append([]float64{}, p.Data...)
	}
	return out
}

// SetWeights overwrites the network parameters from a Weights snapshot.
func (m *Model) SetWeights(weights [][]float64) error {
	params := m.Parameters()
	if len(weights) != len(params) {
		return errors.Errorf("weight count mismatch: have %d tensors, want %d", len(weights), len(params))
	}
	for i, p := range params {
		if err := p.SetData(weights[i]); err != nil {
			return errors.Wrapf(err, "weight tensor %d", i)
		}
	}
	return nil
}
