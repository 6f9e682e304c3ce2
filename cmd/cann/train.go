package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tsawler/go-cann/checkpoints"
	"github.com/tsawler/go-cann/dataset"
	"github.com/tsawler/go-cann/evaluate"
	"github.com/tsawler/go-cann/freq"
)

func trainCmd() *cobra.Command {
	var (
		dataPath   *string
		outPath    *string
		curvesPath *string
		validFrac  *float64
		nullModel  *bool
		glm        *bool
		hidden     *[]int
		activation *string
		dropout    *float64
		batchSize  *int
		epochs     *int
		lr         *float64
		lrStep     *int
		lrGamma    *float64
		optName    *string
		patience   *int
		seed       *int64
	)

	cmd := cobra.Command{
		Use:   "train",
		Short: "fit a frequency model and write a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, _, err := loadClaims(*dataPath)
			if err != nil {
				return err
			}
			logger.Infow("loaded claims data", "path", *dataPath, "rows", tbl.NumRows())

			if *nullModel {
				null, err := freq.FitNull(tbl, claimsSchema(tbl))
				if err != nil {
					return err
				}
				if err := checkpoints.FromNull(null, claimsSchema(tbl)).Save(*outPath); err != nil {
					return err
				}
				logger.Infow("wrote null-model checkpoint", "path", *outPath, "rate", null.Rate())
				return nil
			}

			train := tbl
			var valid *dataset.Table
			if *validFrac > 0 {
				train, valid, err = tbl.Split(1-*validFrac, *seed)
				if err != nil {
					return errors.Wrap(err, "splitting data")
				}
				logger.Infow("split data", "train", train.NumRows(), "valid", valid.NumRows())
			}

			cfg := freq.DefaultConfig()
			cfg.Hidden = *hidden
			cfg.Activation = *activation
			cfg.Dropout = *dropout
			cfg.BatchSize = *batchSize
			cfg.Epochs = *epochs
			cfg.LearningRate = *lr
			cfg.LRStepSize = *lrStep
			cfg.LRGamma = *lrGamma
			cfg.Optimizer = *optName
			cfg.Patience = *patience
			cfg.Seed = *seed
			cfg.Verbose = true

			schema := claimsSchema(tbl)
			var model *freq.Model
			if *glm {
				model, err = freq.NewGLM(cfg, featureBuilder(), schema)
			} else {
				model, err = freq.New(cfg, featureBuilder(), schema)
			}
			if err != nil {
				return err
			}

			history, err := model.Fit(train, valid)
			if err != nil {
				return err
			}
			logger.Infow("training finished",
				"epochs", len(history.Epochs),
				"best_epoch", history.BestEpoch,
				"best_valid_loss", history.BestValidLoss,
				"stopped_early", history.StoppedEarly)

			if err := checkpoints.SaveModel(model, history, *outPath); err != nil {
				return err
			}
			logger.Infow("wrote checkpoint", "path", *outPath)

			if *curvesPath != "" {
				if err := evaluate.TrainingCurves(history, *curvesPath); err != nil {
					return err
				}
				logger.Infow("wrote training curves", "path", *curvesPath)
			}
			return nil
		},
	}

	dataPath = cmd.Flags().String("data", "", "claims CSV to train on")
	outPath = cmd.Flags().String("out", "model.json", "checkpoint output path")
	curvesPath = cmd.Flags().String("curves", "", "write a training-curve chart to this path")
	validFrac = cmd.Flags().Float64("valid-split", 0.2, "fraction of rows held out for validation")
	nullModel = cmd.Flags().Bool("null", false, "fit the intercept-only baseline instead of a network")
	glm = cmd.Flags().Bool("glm", false, "fit a log-linear GLM instead of the combined model")
	hidden = cmd.Flags().IntSlice("hidden", []int{20, 15, 10}, "hidden layer widths")
	activation = cmd.Flags().String("activation", "relu", "hidden activation: relu or tanh")
	dropout = cmd.Flags().Float64("dropout", 0, "dropout probability after each hidden layer")
	batchSize = cmd.Flags().Int("batch-size", 1024, "training batch size")
	epochs = cmd.Flags().Int("epochs", 100, "maximum training epochs")
	lr = cmd.Flags().Float64("lr", 1e-3, "learning rate")
	lrStep = cmd.Flags().Int("lr-step", 0, "epochs between learning-rate decays, 0 to disable")
	lrGamma = cmd.Flags().Float64("lr-gamma", 0.1, "learning-rate decay factor applied every lr-step epochs")
	optName = cmd.Flags().String("optimizer", "adam", "optimizer: adam, sgd, or rmsprop")
	patience = cmd.Flags().Int("patience", 10, "early-stopping patience in epochs, 0 to disable")
	seed = cmd.Flags().Int64("seed", 42, "random seed for splitting, shuffling, and initialization")
	cmd.MarkFlagRequired("data")

	return &cmd
}
