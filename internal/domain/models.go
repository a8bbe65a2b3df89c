package domain

import (
	"fmt"
	"time"
)

// MarketState is an immutable snapshot of market context for one cycle.
// JSON names match the persisted decision log.
type MarketState struct {
	Symbol          string          `json:"symbol,omitempty"`
	Regime          Regime          `json:"market_regime"`
	VolatilityLevel VolatilityLevel `json:"volatility_level"`
	TrendStrength   TrendStrength   `json:"trend_strength"`

	// Time context
	TradingSession    string  `json:"trading_session"`
	TimeOfDay         string  `json:"time_of_day"`
	DayType           string  `json:"day_type"`
	WeekPhase         string  `json:"week_phase"`
	TimeRemainingDays float64 `json:"time_remaining_days"`

	// Technical context
	DistanceToKeyLevels float64 `json:"distance_to_key_levels"`
	FundingExtreme      bool    `json:"funding_extreme"`
	CurrentPrice        float64 `json:"current_price,omitempty"`
	RSI                 float64 `json:"rsi,omitempty"`
	ATR                 float64 `json:"atr,omitempty"`
	DistToHigh          float64 `json:"dist_to_high,omitempty"`
	DistToLow           float64 `json:"dist_to_low,omitempty"`
	MACDHist            float64 `json:"macd_hist,omitempty"`
	VolumeZScore        float64 `json:"volume_zscore,omitempty"`
	RegimeConfidence    float64 `json:"regime_confidence,omitempty"`
	RegimeStable        bool    `json:"regime_stable,omitempty"`
	MomentumShiftScore  float64 `json:"momentum_shift_score,omitempty"`

	// Risk context
	RiskState       RiskState `json:"current_risk_state"`
	DrawdownPercent float64   `json:"current_drawdown_percent"`
	OpenPositions   int       `json:"current_open_positions"`
}

// Action is a proposed (or finalized) decision for one cycle
type Action struct {
	Strategy  Strategy  `json:"strategy"`
	Direction Direction `json:"direction"`
	RiskLevel RiskLevel `json:"risk_level"`
	Reasoning string    `json:"reasoning"`
}

// Wait builds the canonical do-nothing action
func Wait(reason string) Action {
	return Action{
		Strategy:  StrategyWait,
		Direction: DirectionFlat,
		RiskLevel: RiskLow,
		Reasoning: reason,
	}
}

// IsWait reports whether the action is a WAIT
func (a Action) IsWait() bool {
	return a.Strategy == StrategyWait
}

func (a Action) String() string {
	return fmt.Sprintf("%s/%s/%s", a.Strategy, a.Direction, a.RiskLevel)
}

// Outcome is what happened after a decision was taken
type Outcome struct {
	ExitReason      ExitReason `json:"exit_reason"`
	RealizedPnL     float64    `json:"realized_pnl"`
	DurationCandles int        `json:"duration_candles"`
	EntryPrice      float64    `json:"entry_price,omitempty"`
	ExitPrice       float64    `json:"exit_price,omitempty"`
	// MarketChangeDuringWait is the favourable move (percent) a hypothetical
	// trade would have captured while the system waited.
	MarketChangeDuringWait float64 `json:"market_change_during_wait,omitempty"`
}

// RecordMetadata carries provenance and gating details for a decision
type RecordMetadata struct {
	Version        string   `json:"version"`
	Mode           string   `json:"mode"`
	DataSource     string   `json:"data_source,omitempty"`
	MarketPeriodID string   `json:"market_period_id,omitempty"`
	MLConfidence   *float64 `json:"ml_confidence"`
	SizeMultiplier float64  `json:"size_multiplier,omitempty"`
	PositionSize   float64  `json:"position_size,omitempty"`
	ModelVersion   string   `json:"model_version,omitempty"`
	OriginalAction *Action  `json:"original_action,omitempty"`
}

// DecisionRecord is one line of the experience log
type DecisionRecord struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	MarketState     MarketState    `json:"market_state"`
	Action          Action         `json:"action_taken"`
	Reward          float64        `json:"reward"`
	Resolved        bool           `json:"resolved"`
	Outcome         *Outcome       `json:"outcome"`
	RepetitionCount int            `json:"repetition_count"`
	ResolutionTime  *time.Time     `json:"resolution_time"`
	Metadata        RecordMetadata `json:"metadata"`
}

// Candle is a single OHLCV bar
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Observation is what a feeder hands the loop each cycle.
// FutureCandle is only set during replay and is strictly after the state.
type Observation struct {
	Time         time.Time   `json:"time"`
	State        MarketState `json:"state"`
	Price        float64     `json:"price"`
	FutureCandle *Candle     `json:"future_candle,omitempty"`
	PeriodID     string      `json:"period_id,omitempty"`
}

// ExecutionReport is returned by an executor after placing an order
type ExecutionReport struct {
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Size       float64   `json:"size"`
	FillPrice  float64   `json:"fill_price"`
	ExecutedAt time.Time `json:"executed_at"`
}
