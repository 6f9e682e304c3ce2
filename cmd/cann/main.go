// Command cann fits and scores claim-frequency models on motor liability
// data: an intercept-only baseline, a log-linear GLM, and a combined model
// that corrects a prior multiplicatively with a neural network.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// logger is replaced with a development logger in main; the no-op default
// keeps command constructors usable from tests.
var logger = zap.NewNop().Sugar()

func main() {
	zl, err := zap.NewDevelopment()
	if err != nil {
		os.Exit(1)
	}
	defer zl.Sync()
	logger = zl.Sugar()

	root := &cobra.Command{
		Use:           "cann",
		Short:         "claim-frequency modelling with neural-corrected priors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(trainCmd(), evaluateCmd(), predictCmd())

	if err := root.Execute(); err != nil {
		logger.Fatalf("%v", err)
	}
}
