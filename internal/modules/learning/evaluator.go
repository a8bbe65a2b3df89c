package learning

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarises a model on a validation set
type Metrics struct {
	AUC          float64 `json:"auc"`
	Accuracy     float64 `json:"accuracy"`
	Samples      int     `json:"samples"`
	PositiveRate float64 `json:"positive_rate"`
}

// AUC is the area under the ROC curve. Degenerate inputs (empty, or only one
// class present) score 0.5, the value of a coin flip.
func AUC(scores []float64, labels []bool) float64 {
	if len(scores) == 0 || len(scores) != len(labels) {
		return 0.5
	}
	var pos, neg int
	for _, l := range labels {
		if l {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	y := make([]float64, len(scores))
	classes := make([]bool, len(labels))
	copy(y, scores)
	copy(classes, labels)
	for i := range y {
		if math.IsNaN(y[i]) {
			y[i] = 0.5
		}
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Evaluate scores an ensemble on samples
func Evaluate(e *Ensemble, samples []Sample) Metrics {
	m := Metrics{Samples: len(samples)}
	if len(samples) == 0 {
		m.AUC = 0.5
		return m
	}

	scores := make([]float64, len(samples))
	labels := make([]bool, len(samples))
	var correct, positives int
	for i, s := range samples {
		scores[i] = e.Predict(s.Family, s.Features)
		labels[i] = s.Label > 0
		if labels[i] {
			positives++
		}
		if (scores[i] >= 0.5) == labels[i] {
			correct++
		}
	}

	m.AUC = AUC(scores, labels)
	m.Accuracy = float64(correct) / float64(len(samples))
	m.PositiveRate = float64(positives) / float64(len(samples))
	return m
}
