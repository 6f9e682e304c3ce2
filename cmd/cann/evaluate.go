package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tsawler/go-cann/checkpoints"
	"github.com/tsawler/go-cann/dataset"
	"github.com/tsawler/go-cann/evaluate"
	"github.com/tsawler/go-cann/freq"
)

func evaluateCmd() *cobra.Command {
	var (
		dataPath  *string
		modelPath *string
		buckets   *int
		chartDir  *string
	)

	cmd := cobra.Command{
		Use:   "evaluate",
		Short: "score a checkpointed model on a claims CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, _, err := loadClaims(*dataPath)
			if err != nil {
				return err
			}
			predicted, err := scoreCheckpoint(*modelPath, tbl)
			if err != nil {
				return err
			}

			actual, err := tbl.Numeric(colClaims)
			if err != nil {
				return err
			}
			weights, err := tbl.Numeric(colExposure)
			if err != nil {
				return err
			}

			summary, err := evaluate.Score(predicted, actual, weights)
			if err != nil {
				return errors.Wrap(err, "scoring predictions")
			}
			logger.Infow("evaluation",
				"observations", summary.Observations,
				"exposure", summary.TotalExposure,
				"mean_deviance", summary.MeanDeviance,
				"gini", summary.Gini,
				"mean_predicted", summary.MeanPredicted,
				"mean_actual", summary.MeanActual)

			table, err := evaluate.LiftTable(predicted, actual, weights, *buckets)
			if err != nil {
				return errors.Wrap(err, "building lift table")
			}
			fmt.Println("bucket  count  exposure  mean_pred  mean_actual  lift")
			for _, b := range table {
				fmt.Printf("%6d %6d %9.2f %10.5f %12.5f %5.2f\n",
					b.Bucket, b.Count, b.Exposure, b.MeanPredicted, b.MeanActual, b.Lift)
			}

			if *chartDir != "" {
				calibration := filepath.Join(*chartDir, "calibration.png")
				if err := evaluate.CalibrationChart(table, calibration); err != nil {
					return err
				}
				lift := filepath.Join(*chartDir, "lift.png")
				if err := evaluate.LiftChart(table, lift); err != nil {
					return err
				}
				logger.Infow("wrote charts", "dir", *chartDir)
			}
			return nil
		},
	}

	dataPath = cmd.Flags().String("data", "", "claims CSV to score")
	modelPath = cmd.Flags().String("model", "model.json", "checkpoint to evaluate")
	buckets = cmd.Flags().Int("buckets", 10, "lift table buckets")
	chartDir = cmd.Flags().String("charts", "", "write calibration and lift charts into this directory")
	cmd.MarkFlagRequired("data")

	return &cmd
}

// scoreCheckpoint loads any checkpoint kind and returns its predictions for
// the table.
func scoreCheckpoint(path string, tbl *dataset.Table) ([]float64, error) {
	cp, err := checkpoints.Load(path)
	if err != nil {
		return nil, err
	}
	switch cp.Kind {
	case checkpoints.KindNull:
		var null *freq.Null
		if null, err = cp.ToNull(); err != nil {
			return nil, err
		}
		return null.Predict(tbl)
	default:
		var model *freq.Model
		if model, err = cp.ToModel(); err != nil {
			return nil, err
		}
		return model.Predict(tbl)
	}
}
