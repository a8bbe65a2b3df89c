package learning

import (
	"math"
	"sort"

	"github.com/aristath/adaptivetrader/internal/domain"
)

// Sample is one labeled training row
type Sample struct {
	Features []float64
	Label    float64 // 1 when the decision earned a positive reward
	Family   string  // regime family used to route to experts
}

// Dataset is a time-ordered train/validation split
type Dataset struct {
	Train      []Sample
	Validation []Sample
}

// BuildDataset turns resolved decisions into a chronological split.
// The newest validationSplit fraction is held out so validation never
// sees decisions older than training data.
func BuildDataset(records []domain.DecisionRecord, validationSplit float64) Dataset {
	resolved := make([]domain.DecisionRecord, 0, len(records))
	for _, r := range records {
		if r.Resolved {
			resolved = append(resolved, r)
		}
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Timestamp.Before(resolved[j].Timestamp)
	})

	samples := make([]Sample, len(resolved))
	for i, r := range resolved {
		samples[i] = SampleFromRecord(r)
	}

	trainEnd := len(samples) - int(math.Round(float64(len(samples))*validationSplit))
	return Dataset{
		Train:      samples[:trainEnd],
		Validation: samples[trainEnd:],
	}
}

// SampleFromRecord encodes a single resolved decision
func SampleFromRecord(r domain.DecisionRecord) Sample {
	label := 0.0
	if r.Reward > 0 {
		label = 1
	}
	return Sample{
		Features: Encode(r.MarketState, r.Action, r.RepetitionCount),
		Label:    label,
		Family:   r.MarketState.Regime.Family(),
	}
}

// ByFamily returns the samples belonging to one regime family
func ByFamily(samples []Sample, family string) []Sample {
	var out []Sample
	for _, s := range samples {
		if s.Family == family {
			out = append(out, s)
		}
	}
	return out
}

// hasBothClasses reports whether samples contain positive and negative labels
func hasBothClasses(samples []Sample) bool {
	var pos, neg bool
	for _, s := range samples {
		if s.Label > 0 {
			pos = true
		} else {
			neg = true
		}
		if pos && neg {
			return true
		}
	}
	return false
}

func split(samples []Sample) ([][]float64, []float64) {
	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.Features
		y[i] = s.Label
	}
	return x, y
}
