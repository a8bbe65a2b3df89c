// Package policy aggregates resolved outcomes into versioned, immutable
// reward tables keyed by market context and strategy.
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Cell is the outcome summary for one (regime, volatility, strategy)
type Cell struct {
	Regime     domain.Regime          `msgpack:"regime" json:"regime"`
	Volatility domain.VolatilityLevel `msgpack:"volatility" json:"volatility"`
	Strategy   domain.Strategy        `msgpack:"strategy" json:"strategy"`
	Count      int                    `msgpack:"count" json:"count"`
	MeanReward float64                `msgpack:"mean_reward" json:"mean_reward"`
	StdReward  float64                `msgpack:"std_reward" json:"std_reward"`
	WinRate    float64                `msgpack:"win_rate" json:"win_rate"`
}

// Table is one published aggregation. Tables are never modified after Build.
type Table struct {
	Version     int64           `msgpack:"version" json:"version"`
	BuiltAt     time.Time       `msgpack:"built_at" json:"built_at"`
	RecordCount int             `msgpack:"record_count" json:"record_count"`
	Cells       map[string]Cell `msgpack:"cells" json:"cells"`
}

// Key builds the lookup key for a context and strategy
func Key(regime domain.Regime, vol domain.VolatilityLevel, strategy domain.Strategy) string {
	return fmt.Sprintf("%s|%s|%s", regime, vol, strategy)
}

// Build aggregates resolved records into a new table
func Build(records []domain.DecisionRecord, version int64, builtAt time.Time) *Table {
	rewards := map[string][]float64{}
	meta := map[string]Cell{}

	used := 0
	for _, rec := range records {
		if !rec.Resolved {
			continue
		}
		k := Key(rec.MarketState.Regime, rec.MarketState.VolatilityLevel, rec.Action.Strategy)
		rewards[k] = append(rewards[k], rec.Reward)
		if _, ok := meta[k]; !ok {
			meta[k] = Cell{
				Regime:     rec.MarketState.Regime,
				Volatility: rec.MarketState.VolatilityLevel,
				Strategy:   rec.Action.Strategy,
			}
		}
		used++
	}

	cells := make(map[string]Cell, len(rewards))
	for k, xs := range rewards {
		c := meta[k]
		c.Count = len(xs)
		c.MeanReward, c.StdReward = stat.MeanStdDev(xs, nil)
		if len(xs) < 2 {
			c.StdReward = 0
		}
		wins := 0
		for _, x := range xs {
			if x > 0 {
				wins++
			}
		}
		c.WinRate = float64(wins) / float64(len(xs))
		cells[k] = c
	}

	return &Table{
		Version:     version,
		BuiltAt:     builtAt.UTC(),
		RecordCount: used,
		Cells:       cells,
	}
}

// Lookup returns the cell for a context and strategy
func (t *Table) Lookup(regime domain.Regime, vol domain.VolatilityLevel, strategy domain.Strategy) (Cell, bool) {
	if t == nil {
		return Cell{}, false
	}
	c, ok := t.Cells[Key(regime, vol, strategy)]
	return c, ok
}

// SampleSize returns how many outcomes back a context and strategy
func (t *Table) SampleSize(regime domain.Regime, vol domain.VolatilityLevel, strategy domain.Strategy) int {
	c, _ := t.Lookup(regime, vol, strategy)
	return c.Count
}

// Sorted returns the cells ordered by regime, volatility, then strategy
func (t *Table) Sorted() []Cell {
	if t == nil {
		return nil
	}
	out := make([]Cell, 0, len(t.Cells))
	for _, c := range t.Cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return Key(out[i].Regime, out[i].Volatility, out[i].Strategy) < Key(out[j].Regime, out[j].Volatility, out[j].Strategy)
	})
	return out
}
