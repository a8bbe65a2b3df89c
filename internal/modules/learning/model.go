package learning

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass is returned when training data has only one label
var ErrSingleClass = errors.New("training data contains a single class")

// TrainConfig controls logistic regression fitting
type TrainConfig struct {
	LearningRate float64
	Epochs       int
	L2           float64
	Patience     int // epochs without loss improvement before stopping
}

// DefaultTrainConfig returns the settings used by the pipeline
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate: 0.1,
		Epochs:       400,
		L2:           1e-3,
		Patience:     10,
	}
}

// Model is an L2-regularized logistic regression over standardized features
type Model struct {
	Weights []float64 `msgpack:"weights"`
	Bias    float64   `msgpack:"bias"`
	Means   []float64 `msgpack:"means"`
	Stds    []float64 `msgpack:"stds"`
	Samples int       `msgpack:"samples"`
}

// Train fits a model with full-batch gradient descent.
// Weights start at zero so the same data always yields the same model.
func Train(samples []Sample, cfg TrainConfig) (*Model, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no training samples")
	}
	if !hasBothClasses(samples) {
		return nil, ErrSingleClass
	}

	x, y := split(samples)
	dim := len(x[0])
	for i, row := range x {
		if len(row) != dim {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(row), dim)
		}
	}

	m := &Model{
		Weights: make([]float64, dim),
		Means:   make([]float64, dim),
		Stds:    make([]float64, dim),
		Samples: len(samples),
	}

	col := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std < 1e-12 {
			std = 1
		}
		m.Means[j] = mean
		m.Stds[j] = std
	}

	z := make([][]float64, len(x))
	for i := range x {
		z[i] = m.standardize(x[i])
	}

	n := float64(len(z))
	grad := make([]float64, dim)
	bestW := make([]float64, dim)
	bestB := 0.0
	bestLoss := math.MaxFloat64
	wait := 0

	for e := 0; e < cfg.Epochs; e++ {
		for j := range grad {
			grad[j] = 0
		}
		var gB float64
		for i := range z {
			diff := sigmoid(floats.Dot(m.Weights, z[i])+m.Bias) - y[i]
			floats.AddScaled(grad, diff, z[i])
			gB += diff
		}
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, cfg.L2, m.Weights)
		floats.AddScaled(m.Weights, -cfg.LearningRate, grad)
		m.Bias -= cfg.LearningRate * gB / n

		loss := m.loss(z, y, cfg.L2)
		if loss < bestLoss-1e-6 {
			bestLoss = loss
			copy(bestW, m.Weights)
			bestB = m.Bias
			wait = 0
		} else {
			wait++
			if wait >= cfg.Patience {
				break
			}
		}
	}

	m.Weights, m.Bias = bestW, bestB
	return m, nil
}

// Predict returns the probability of a positive outcome, or NaN when the
// feature vector does not match the model.
func (m *Model) Predict(x []float64) float64 {
	if m == nil || len(x) != len(m.Weights) {
		return math.NaN()
	}
	return sigmoid(floats.Dot(m.Weights, m.standardize(x)) + m.Bias)
}

func (m *Model) standardize(x []float64) []float64 {
	z := make([]float64, len(x))
	for j := range x {
		z[j] = (x[j] - m.Means[j]) / m.Stds[j]
	}
	return z
}

func (m *Model) loss(z [][]float64, y []float64, l2 float64) float64 {
	var loss float64
	for i := range z {
		p := sigmoid(floats.Dot(m.Weights, z[i]) + m.Bias)
		p = math.Min(math.Max(p, 1e-8), 1-1e-8)
		loss += -(y[i]*math.Log(p) + (1-y[i])*math.Log(1-p))
	}
	loss /= float64(len(z))
	return loss + 0.5*l2*floats.Dot(m.Weights, m.Weights)
}

// sigmoid clamps extreme inputs for numerical stability
func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}
