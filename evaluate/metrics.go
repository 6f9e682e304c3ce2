// Package evaluate scores fitted frequency models on held-out data:
// weighted Poisson deviance, normalized Gini, and exposure-balanced lift
// tables for calibration checks.
package evaluate

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// eps keeps y*log(y/yhat) finite at y = 0.
const eps = 1e-8

func checkInputs(predicted, actual, weights []float64) error {
	if len(predicted) == 0 {
		return errors.New("no observations")
	}
	if len(actual) != len(predicted) || len(weights) != len(predicted) {
		return errors.Errorf("length mismatch: %d predictions, %d actuals, %d weights",
			len(predicted), len(actual), len(weights))
	}
	for i := range predicted {
		if predicted[i] <= 0 || math.IsInf(predicted[i], 0) || math.IsNaN(predicted[i]) {
			return errors.Errorf("prediction %d is not strictly positive and finite: %g", i, predicted[i])
		}
		if actual[i] < 0 {
			return errors.Errorf("actual %d is negative: %g", i, actual[i])
		}
		if weights[i] <= 0 {
			return errors.Errorf("weight %d is not strictly positive: %g", i, weights[i])
		}
	}
	return nil
}

// MeanPoissonDeviance returns the weighted mean Poisson deviance
//
//	mean_w( 2 * (y*log(y/yhat) - (y - yhat)) )
//
// the same quantity minimized during training, so validation losses and
// holdout scores are directly comparable.
func MeanPoissonDeviance(predicted, actual, weights []float64) (float64, error) {
	if err := checkInputs(predicted, actual, weights); err != nil {
		return 0, err
	}

	var sum, totalWeight float64
	for i := range predicted {
		y, yhat, w := actual[i], predicted[i], weights[i]
		dev := 2 * (y*math.Log((y+eps)/yhat) - (y - yhat))
		sum += w * dev
		totalWeight += w
	}
	return sum / totalWeight, nil
}

// giniCoefficient computes the weighted Gini coefficient of actual outcomes
// when observations are ranked ascending by score. The area under the
// Lorenz curve is accumulated by trapezoid over cumulative weight.
func giniCoefficient(score, actual, weights []float64) float64 {
	n := len(score)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return score[order[a]] < score[order[b]]
	})

	var totalActual, totalWeight float64
	for i := range actual {
		totalActual += actual[i]
		totalWeight += weights[i]
	}
	if totalActual == 0 {
		return 0
	}

	var cumActual, area float64
	for _, i := range order {
		prev := cumActual / totalActual
		cumActual += actual[i]
		area += (weights[i] / totalWeight) * (prev + cumActual/totalActual) / 2
	}
	return 1 - 2*area
}

// NormalizedGini measures how well predictions rank risks: the Gini
// coefficient achieved by sorting on predictions, divided by the Gini of
// the perfect ordering on actual frequency. 1 is a perfect ranking, 0 is
// random, negative is worse than random.
func NormalizedGini(predicted, actual, weights []float64) (float64, error) {
	if err := checkInputs(predicted, actual, weights); err != nil {
		return 0, err
	}

	frequency := make([]float64, len(actual))
	for i := range actual {
		frequency[i] = actual[i] / weights[i]
	}
	perfect := giniCoefficient(frequency, actual, weights)
	if perfect == 0 {
		return 0, errors.New("actual outcomes are constant, Gini is undefined")
	}
	return giniCoefficient(predicted, actual, weights) / perfect, nil
}

// LiftBucket is one row of a lift table: the observations falling into one
// exposure-balanced band of the prediction ranking.
type LiftBucket struct {
	Bucket        int     // 1-based, lowest predictions first
	Count         int     // observations in the band
	Exposure      float64 // total weight in the band
	MeanPredicted float64 // weight-averaged prediction
	MeanActual    float64 // weight-averaged actual
	Lift          float64 // MeanActual relative to the portfolio mean
}

// LiftTable ranks observations by prediction and splits them into bands of
// roughly equal total exposure. A well-calibrated model has MeanPredicted
// close to MeanActual in every band and Lift increasing across bands.
func LiftTable(predicted, actual, weights []float64, buckets int) ([]LiftBucket, error) {
	if err := checkInputs(predicted, actual, weights); err != nil {
		return nil, err
	}
	if buckets < 2 {
		return nil, errors.Errorf("need at least 2 buckets, got %d", buckets)
	}
	if buckets > len(predicted) {
		return nil, errors.Errorf("%d buckets for %d observations", buckets, len(predicted))
	}

	order := make([]int, len(predicted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return predicted[order[a]] < predicted[order[b]]
	})

	var totalActual, totalWeight float64
	for i := range weights {
		totalActual += actual[i]
		totalWeight += weights[i]
	}
	portfolioMean := totalActual / totalWeight
	perBucket := totalWeight / float64(buckets)

	table := make([]LiftBucket, 0, buckets)
	bucket := LiftBucket{Bucket: 1}
	var bucketPred, bucketActual, cumWeight float64

	flush := func() {
		if bucket.Count == 0 {
			return
		}
		bucket.MeanPredicted = bucketPred / bucket.Exposure
		bucket.MeanActual = bucketActual / bucket.Exposure
		if portfolioMean > 0 {
			bucket.Lift = bucket.MeanActual / portfolioMean
		}
		table = append(table, bucket)
		bucket = LiftBucket{Bucket: bucket.Bucket + 1}
		bucketPred, bucketActual = 0, 0
	}

	for _, i := range order {
		// close the band once it holds its exposure share, unless it
		// would leave trailing bands empty
		if bucket.Count > 0 && cumWeight >= float64(bucket.Bucket)*perBucket && bucket.Bucket < buckets {
			flush()
		}
		bucket.Count++
		bucket.Exposure += weights[i]
		cumWeight += weights[i]
		bucketPred += weights[i] * predicted[i]
		bucketActual += actual[i]
	}
	flush()

	return table, nil
}

// Summary bundles the headline scores of one model on one data set.
type Summary struct {
	Observations  int
	TotalExposure float64
	MeanDeviance  float64
	Gini          float64
	MeanPredicted float64 // per unit of exposure
	MeanActual    float64 // per unit of exposure
	MedianPred    float64
}

// Score computes the full evaluation summary for one set of predictions.
func Score(predicted, actual, weights []float64) (*Summary, error) {
	deviance, err := MeanPoissonDeviance(predicted, actual, weights)
	if err != nil {
		return nil, err
	}
	gini, err := NormalizedGini(predicted, actual, weights)
	if err != nil {
		return nil, err
	}
	median, err := stats.Median(predicted)
	if err != nil {
		return nil, errors.Wrap(err, "median prediction")
	}

	var totalPred, totalActual, totalWeight float64
	for i := range predicted {
		totalPred += predicted[i]
		totalActual += actual[i]
		totalWeight += weights[i]
	}

	return &Summary{
		Observations:  len(predicted),
		TotalExposure: totalWeight,
		MeanDeviance:  deviance,
		Gini:          gini,
		MeanPredicted: totalPred / totalWeight,
		MeanActual:    totalActual / totalWeight,
		MedianPred:    median,
	}, nil
}
