package evaluate

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tsawler/go-cann/training"
)

// TrainingCurves renders train and validation loss per epoch to an image
// file. The format is inferred from the extension (.png, .svg, .pdf).
func TrainingCurves(history *training.History, path string) error {
	if history == nil || len(history.Epochs) == 0 {
		return errors.New("history is empty")
	}

	p, err := plot.New()
	if err != nil {
		return errors.Wrap(err, "creating plot")
	}
	p.Title.Text = "Training progress"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Mean Poisson deviance"

	trainXY := make(plotter.XYs, len(history.Epochs))
	validXY := make(plotter.XYs, 0, len(history.Epochs))
	for i, m := range history.Epochs {
		trainXY[i].X = float64(m.Epoch)
		trainXY[i].Y = m.TrainLoss
		if !math.IsNaN(m.ValidLoss) {
			validXY = append(validXY, plotter.XY{X: float64(m.Epoch), Y: m.ValidLoss})
		}
	}

	trainLine, err := plotter.NewLine(trainXY)
	if err != nil {
		return errors.Wrap(err, "train loss line")
	}
	p.Add(trainLine)
	p.Legend.Add("train", trainLine)

	if len(validXY) > 0 {
		validLine, err := plotter.NewLine(validXY)
		if err != nil {
			return errors.Wrap(err, "validation loss line")
		}
		validLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(validLine)
		p.Legend.Add("validation", validLine)
	}
	p.Legend.Top = true

	return errors.Wrapf(p.Save(6*vg.Inch, 4*vg.Inch, path), "saving %s", path)
}

// CalibrationChart plots mean actual against mean predicted frequency per
// lift bucket, with the identity line a perfectly calibrated model would
// follow.
func CalibrationChart(table []LiftBucket, path string) error {
	if len(table) == 0 {
		return errors.New("lift table is empty")
	}

	p, err := plot.New()
	if err != nil {
		return errors.Wrap(err, "creating plot")
	}
	p.Title.Text = "Calibration"
	p.X.Label.Text = "Mean predicted"
	p.Y.Label.Text = "Mean actual"

	points := make(plotter.XYs, len(table))
	max := 0.0
	for i, b := range table {
		points[i].X = b.MeanPredicted
		points[i].Y = b.MeanActual
		if b.MeanPredicted > max {
			max = b.MeanPredicted
		}
		if b.MeanActual > max {
			max = b.MeanActual
		}
	}

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return errors.Wrap(err, "calibration points")
	}
	p.Add(scatter)
	p.Legend.Add("buckets", scatter)

	identity, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: max, Y: max}})
	if err != nil {
		return errors.Wrap(err, "identity line")
	}
	identity.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	p.Add(identity)
	p.Legend.Add("perfect", identity)

	return errors.Wrapf(p.Save(5*vg.Inch, 5*vg.Inch, path), "saving %s", path)
}

// LiftChart renders the lift of each bucket as a bar chart: observed
// frequency relative to the portfolio mean, lowest predicted risks first.
func LiftChart(table []LiftBucket, path string) error {
	if len(table) == 0 {
		return errors.New("lift table is empty")
	}

	p, err := plot.New()
	if err != nil {
		return errors.Wrap(err, "creating plot")
	}
	p.Title.Text = "Lift by prediction bucket"
	p.X.Label.Text = "Bucket"
	p.Y.Label.Text = "Observed frequency / portfolio mean"

	values := make(plotter.Values, len(table))
	labels := make([]string, len(table))
	for i, b := range table {
		values[i] = b.Lift
		labels[i] = fmt.Sprintf("%d", b.Bucket)
	}

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return errors.Wrap(err, "lift bars")
	}
	p.Add(bars)
	p.NominalX(labels...)

	return errors.Wrapf(p.Save(6*vg.Inch, 4*vg.Inch, path), "saving %s", path)
}
