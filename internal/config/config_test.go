package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "paper", cfg.TradingMode)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, 0.10, cfg.Selection.StrategicWaitProb)
	assert.Equal(t, 3, cfg.Selection.MaxRepeats)
	assert.Equal(t, 0.50, cfg.Confidence.BlockBelow)
	assert.Equal(t, 1.25, cfg.Confidence.BoostMult)
	assert.Equal(t, 2000, cfg.Training.RetrainThreshold)
	assert.InDelta(t, 200.0, cfg.Confidence.MaxPositionSize(), 1e-9)
	assert.Equal(t, filepath.Join(dir, "experience_log_BTCUSDT.jsonl"), cfg.ExperienceLogPath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRADER_DATA_DIR", t.TempDir())
	t.Setenv("SYMBOL", "ethusdt")
	t.Setenv("STRATEGIC_WAIT_PROB", "0.25")
	t.Setenv("MAX_REPEATS", "2")
	t.Setenv("RETRAIN_THRESHOLD", "500")
	t.Setenv("GO_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, 0.25, cfg.Selection.StrategicWaitProb)
	assert.Equal(t, 2, cfg.Selection.MaxRepeats)
	assert.Equal(t, 500, cfg.Training.RetrainThreshold)
	assert.Equal(t, 8001, cfg.Port, "invalid ints fall back to default")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		t.Setenv("TRADER_DATA_DIR", t.TempDir())
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("unordered bands", func(t *testing.T) {
		cfg := base()
		cfg.Confidence.ReducedBelow = 0.4
		assert.Error(t, cfg.Validate())
	})

	t.Run("wait probability out of range", func(t *testing.T) {
		cfg := base()
		cfg.Selection.StrategicWaitProb = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("replay without feed", func(t *testing.T) {
		cfg := base()
		cfg.TradingMode = "replay"
		cfg.FeedPath = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("backup without bucket", func(t *testing.T) {
		cfg := base()
		cfg.Backup.Enabled = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("history window shorter than repeats", func(t *testing.T) {
		cfg := base()
		cfg.Selection.HistoryWindow = 1
		assert.Error(t, cfg.Validate())
	})
}
