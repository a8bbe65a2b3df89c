package experience

import "github.com/aristath/adaptivetrader/internal/domain"

// Stats summarizes the decision log
type Stats struct {
	Total         int            `json:"total"`
	Resolved      int            `json:"resolved"`
	Pending       int            `json:"pending"`
	Waits         int            `json:"waits"`
	Overrides     int            `json:"ml_overrides"`
	AverageReward float64        `json:"average_reward"`
	ByStrategy    map[string]int `json:"by_strategy"`
	ByRegime      map[string]int `json:"by_regime"`
	ByDirection   map[string]int `json:"by_direction"`
}

// Stats scans the whole log and aggregates counts
func (s *Store) Stats() (Stats, error) {
	st := Stats{
		ByStrategy:  map[string]int{},
		ByRegime:    map[string]int{},
		ByDirection: map[string]int{},
	}
	rewardSum := 0.0

	err := s.Scan(func(rec domain.DecisionRecord) error {
		st.Total++
		st.ByStrategy[string(rec.Action.Strategy)]++
		st.ByRegime[string(rec.MarketState.Regime)]++
		st.ByDirection[string(rec.Action.Direction)]++

		if rec.Action.IsWait() {
			st.Waits++
		}
		if rec.Metadata.OriginalAction != nil {
			st.Overrides++
		}
		if rec.Resolved {
			st.Resolved++
			rewardSum += rec.Reward
		} else {
			st.Pending++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	if st.Resolved > 0 {
		st.AverageReward = rewardSum / float64(st.Resolved)
	}
	return st, nil
}
