// Package execution places orders for authorized trades.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaperConfig controls simulated fills
type PaperConfig struct {
	SlippageBps float64 // adverse slippage applied to every fill
}

// PaperExecutor fills orders immediately at the observed price plus
// slippage. It never talks to an exchange.
type PaperExecutor struct {
	cfg PaperConfig
	log zerolog.Logger
	now func() time.Time

	mu     sync.Mutex
	orders []domain.ExecutionReport
}

// NewPaperExecutor creates a paper executor
func NewPaperExecutor(cfg PaperConfig, log zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{
		cfg: cfg,
		log: log.With().Str("component", "paper_executor").Logger(),
		now: time.Now,
	}
}

// Execute implements domain.Executor
func (p *PaperExecutor) Execute(ctx context.Context, symbol string, action domain.Action, price, size float64) (domain.ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionReport{}, err
	}
	if action.IsWait() || action.Direction == domain.DirectionFlat {
		return domain.ExecutionReport{}, fmt.Errorf("cannot execute %s", action)
	}
	if price <= 0 {
		return domain.ExecutionReport{}, fmt.Errorf("invalid price %v", price)
	}
	if size <= 0 {
		return domain.ExecutionReport{}, fmt.Errorf("invalid size %v", size)
	}

	slip := decimal.NewFromFloat(p.cfg.SlippageBps).Div(decimal.NewFromInt(10000))
	fill := decimal.NewFromFloat(price)
	if action.Direction == domain.DirectionShort {
		fill = fill.Mul(decimal.NewFromInt(1).Sub(slip))
	} else {
		fill = fill.Mul(decimal.NewFromInt(1).Add(slip))
	}

	report := domain.ExecutionReport{
		OrderID:    uuid.NewString(),
		Symbol:     symbol,
		Direction:  action.Direction,
		Size:       size,
		FillPrice:  fill.Round(8).InexactFloat64(),
		ExecutedAt: p.now().UTC(),
	}

	p.mu.Lock()
	p.orders = append(p.orders, report)
	p.mu.Unlock()

	p.log.Debug().
		Str("order_id", report.OrderID).
		Str("symbol", symbol).
		Str("direction", string(report.Direction)).
		Float64("size", size).
		Float64("fill", report.FillPrice).
		Msg("Paper order filled")
	return report, nil
}

// Orders returns a copy of every simulated fill
func (p *PaperExecutor) Orders() []domain.ExecutionReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ExecutionReport, len(p.orders))
	copy(out, p.orders)
	return out
}
