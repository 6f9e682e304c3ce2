package main

import (
	"os"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tsawler/go-cann/checkpoints"
)

// Prediction is one output row of the predict command.
type Prediction struct {
	PolicyID   string  `csv:"IDpol"`
	Exposure   float64 `csv:"Exposure"`
	Expected   float64 `csv:"ExpectedClaims"`
	Correction float64 `csv:"Correction"`
}

func predictCmd() *cobra.Command {
	var (
		dataPath  *string
		modelPath *string
		outPath   *string
	)

	cmd := cobra.Command{
		Use:   "predict",
		Short: "score a claims CSV and write per-policy expected counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, records, err := loadClaims(*dataPath)
			if err != nil {
				return err
			}
			model, err := checkpoints.LoadModel(*modelPath)
			if err != nil {
				return err
			}

			expected, err := model.Predict(tbl)
			if err != nil {
				return err
			}
			correction, err := model.Correction(tbl)
			if err != nil {
				return err
			}

			out := make([]Prediction, len(records))
			for i, r := range records {
				out[i] = Prediction{
					PolicyID:   r.PolicyID,
					Exposure:   r.Exposure,
					Expected:   expected[i],
					Correction: correction[i],
				}
			}

			f, err := os.Create(*outPath)
			if err != nil {
				return errors.Wrapf(err, "creating %s", *outPath)
			}
			defer f.Close()
			if err := gocsv.Marshal(&out, f); err != nil {
				return errors.Wrapf(err, "writing %s", *outPath)
			}
			logger.Infow("wrote predictions", "path", *outPath, "rows", len(out))
			return nil
		},
	}

	dataPath = cmd.Flags().String("data", "", "claims CSV to score")
	modelPath = cmd.Flags().String("model", "model.json", "checkpoint to score with")
	outPath = cmd.Flags().String("out", "predictions.csv", "output CSV path")
	cmd.MarkFlagRequired("data")

	return &cmd
}
