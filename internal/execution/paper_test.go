package execution

import (
	"context"
	"testing"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperExecutor(t *testing.T) {
	p := NewPaperExecutor(PaperConfig{SlippageBps: 10}, zerolog.New(nil).Level(zerolog.Disabled))
	ctx := context.Background()

	long := domain.Action{Strategy: domain.StrategyMomentum, Direction: domain.DirectionLong, RiskLevel: domain.RiskLow}
	report, err := p.Execute(ctx, "BTCUSDT", long, 100, 50)
	require.NoError(t, err)
	assert.NotEmpty(t, report.OrderID)
	assert.Equal(t, 100.1, report.FillPrice)
	assert.Equal(t, 50.0, report.Size)

	short := domain.Action{Strategy: domain.StrategyShortMomentum, Direction: domain.DirectionShort, RiskLevel: domain.RiskLow}
	report, err = p.Execute(ctx, "BTCUSDT", short, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, 99.9, report.FillPrice)

	assert.Len(t, p.Orders(), 2)
}

func TestPaperExecutor_Rejects(t *testing.T) {
	p := NewPaperExecutor(PaperConfig{}, zerolog.New(nil).Level(zerolog.Disabled))
	ctx := context.Background()

	_, err := p.Execute(ctx, "BTCUSDT", domain.Wait("x"), 100, 10)
	assert.Error(t, err)

	long := domain.Action{Strategy: domain.StrategyMomentum, Direction: domain.DirectionLong}
	_, err = p.Execute(ctx, "BTCUSDT", long, 0, 10)
	assert.Error(t, err)
	_, err = p.Execute(ctx, "BTCUSDT", long, 100, 0)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Execute(cancelled, "BTCUSDT", long, 100, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.Orders())
}
