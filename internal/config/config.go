// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for the decision log, registry and model artifacts (always absolute)
	LogLevel    string
	LogPretty   bool
	Port        int
	TradingMode string // replay, paper or live
	Symbol      string
	FeedPath    string // JSONL observation file; replayed once, or followed in paper/live

	CycleIntervalSeconds int
	SlippageBps          float64 // Adverse slippage applied by the paper executor
	MaintenanceSchedule  string  // WAL checkpoint and integrity check

	Selection  SelectionConfig
	Confidence ConfidenceConfig
	Outcome    OutcomeConfig
	Training   TrainingConfig
	Backup     BackupConfig
}

// SelectionConfig controls the decision selector
type SelectionConfig struct {
	StrategicWaitProb float64 // Probability of an exploratory WAIT
	RandomSeed        int64   // 0 = seed from clock
	MaxRepeats        int     // Consecutive identical decisions before forcing diversity
	HistoryWindow     int     // Recent records inspected for repetition
}

// ConfidenceConfig controls the confidence gate and risk scaler
type ConfidenceConfig struct {
	BlockBelow       float64 // Below this the trade is overridden to WAIT
	ReducedBelow     float64
	NormalBelow      float64
	ReducedMult      float64
	NormalMult       float64
	BoostMult        float64
	BasePositionSize float64 // Quote-currency notional before scaling
	AccountEquity    float64
	MaxEquityRiskPct float64 // Hard cap on a single position as percent of equity
	MinSamples       int     // Policy samples needed before confidence is trusted
	SmallSamplePen   float64
	TransitionPen    float64
	HighVolPen       float64
}

// OutcomeConfig controls how open decisions are resolved
type OutcomeConfig struct {
	WaitHorizonCandles int
	MaxHoldCandles     int
	ScalpTakeProfitPct float64
	ScalpStopLossPct   float64
	SwingTakeProfitPct float64
	SwingStopLossPct   float64
}

// TrainingConfig controls the retraining pipeline and scheduled jobs
type TrainingConfig struct {
	RetrainThreshold int
	RetrainSchedule  string // cron expression with seconds
	PolicySchedule   string
	ValidationSplit  float64
	MinExpertSamples int
}

// BackupConfig holds offsite backup settings (S3 compatible)
type BackupConfig struct {
	Enabled         bool
	Schedule        string
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogPretty:            getEnvAsBool("LOG_PRETTY", true),
		Port:                 getEnvAsInt("GO_PORT", 8001),
		TradingMode:          strings.ToLower(getEnv("TRADING_MODE", "paper")),
		Symbol:               strings.ToUpper(getEnv("SYMBOL", "BTCUSDT")),
		FeedPath:             getEnv("FEED_PATH", ""),
		CycleIntervalSeconds: getEnvAsInt("CYCLE_INTERVAL_SECONDS", 60),
		SlippageBps:          getEnvAsFloat("PAPER_SLIPPAGE_BPS", 5),
		MaintenanceSchedule:  getEnv("MAINTENANCE_SCHEDULE", "0 0 */6 * * *"),
		Selection: SelectionConfig{
			StrategicWaitProb: getEnvAsFloat("STRATEGIC_WAIT_PROB", 0.10),
			RandomSeed:        int64(getEnvAsInt("RANDOM_SEED", 0)),
			MaxRepeats:        getEnvAsInt("MAX_REPEATS", 3),
			HistoryWindow:     getEnvAsInt("HISTORY_WINDOW", 3),
		},
		Confidence: ConfidenceConfig{
			BlockBelow:       getEnvAsFloat("CONF_BLOCK_BELOW", 0.50),
			ReducedBelow:     getEnvAsFloat("CONF_REDUCED_BELOW", 0.60),
			NormalBelow:      getEnvAsFloat("CONF_NORMAL_BELOW", 0.70),
			ReducedMult:      getEnvAsFloat("SIZE_REDUCED", 0.50),
			NormalMult:       getEnvAsFloat("SIZE_NORMAL", 0.75),
			BoostMult:        getEnvAsFloat("SIZE_BOOST", 1.25),
			BasePositionSize: getEnvAsFloat("BASE_POSITION_SIZE", 100),
			AccountEquity:    getEnvAsFloat("ACCOUNT_EQUITY", 10000),
			MaxEquityRiskPct: getEnvAsFloat("MAX_EQUITY_RISK_PCT", 2.0),
			MinSamples:       getEnvAsInt("MIN_POLICY_SAMPLES", 30),
			SmallSamplePen:   getEnvAsFloat("SMALL_SAMPLE_PENALTY", 0.10),
			TransitionPen:    getEnvAsFloat("TRANSITION_PENALTY", 0.05),
			HighVolPen:       getEnvAsFloat("HIGH_VOL_PENALTY", 0.05),
		},
		Outcome: OutcomeConfig{
			WaitHorizonCandles: getEnvAsInt("WAIT_HORIZON_CANDLES", 12),
			MaxHoldCandles:     getEnvAsInt("MAX_HOLD_CANDLES", 48),
			ScalpTakeProfitPct: getEnvAsFloat("SCALP_TP_PCT", 1.5),
			ScalpStopLossPct:   getEnvAsFloat("SCALP_SL_PCT", 1.0),
			SwingTakeProfitPct: getEnvAsFloat("SWING_TP_PCT", 6.0),
			SwingStopLossPct:   getEnvAsFloat("SWING_SL_PCT", 2.0),
		},
		Training: TrainingConfig{
			RetrainThreshold: getEnvAsInt("RETRAIN_THRESHOLD", 2000),
			RetrainSchedule:  getEnv("RETRAIN_SCHEDULE", "0 0 * * * *"),
			PolicySchedule:   getEnv("POLICY_SCHEDULE", "0 */15 * * * *"),
			ValidationSplit:  getEnvAsFloat("VALIDATION_SPLIT", 0.20),
			MinExpertSamples: getEnvAsInt("MIN_EXPERT_SAMPLES", 50),
		},
		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is internally consistent
func (c *Config) Validate() error {
	switch c.TradingMode {
	case "replay", "paper", "live":
	default:
		return fmt.Errorf("unknown TRADING_MODE %q", c.TradingMode)
	}
	if c.TradingMode == "replay" && c.FeedPath == "" {
		return fmt.Errorf("FEED_PATH is required in replay mode")
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("PAPER_SLIPPAGE_BPS must not be negative")
	}
	if c.Symbol == "" {
		return fmt.Errorf("SYMBOL must not be empty")
	}

	if p := c.Selection.StrategicWaitProb; p < 0 || p > 1 {
		return fmt.Errorf("STRATEGIC_WAIT_PROB must be within [0,1], got %v", p)
	}
	if c.Selection.MaxRepeats < 1 {
		return fmt.Errorf("MAX_REPEATS must be at least 1")
	}
	if c.Selection.HistoryWindow < c.Selection.MaxRepeats {
		return fmt.Errorf("HISTORY_WINDOW (%d) must cover MAX_REPEATS (%d)", c.Selection.HistoryWindow, c.Selection.MaxRepeats)
	}

	cc := c.Confidence
	if !(cc.BlockBelow <= cc.ReducedBelow && cc.ReducedBelow <= cc.NormalBelow && cc.NormalBelow <= 1) {
		return fmt.Errorf("confidence bands must be ordered: %v <= %v <= %v <= 1", cc.BlockBelow, cc.ReducedBelow, cc.NormalBelow)
	}
	if cc.ReducedMult <= 0 || cc.NormalMult <= 0 || cc.BoostMult <= 0 {
		return fmt.Errorf("size multipliers must be positive")
	}
	if cc.MaxEquityRiskPct <= 0 || cc.MaxEquityRiskPct > 100 {
		return fmt.Errorf("MAX_EQUITY_RISK_PCT must be within (0,100]")
	}

	if c.Training.RetrainThreshold < 1 {
		return fmt.Errorf("RETRAIN_THRESHOLD must be positive")
	}
	if s := c.Training.ValidationSplit; s <= 0 || s >= 1 {
		return fmt.Errorf("VALIDATION_SPLIT must be within (0,1)")
	}

	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when backups are enabled")
	}

	return nil
}

// MaxPositionSize is the hard notional cap derived from equity
func (c *ConfidenceConfig) MaxPositionSize() float64 {
	return c.AccountEquity * c.MaxEquityRiskPct / 100
}

// ExperienceLogPath returns the per-instrument decision log path
func (c *Config) ExperienceLogPath() string {
	return filepath.Join(c.DataDir, fmt.Sprintf("experience_log_%s.jsonl", c.Symbol))
}

// RegistryPath returns the model registry database path
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "registry.db")
}

// ModelsDir returns the directory holding model artifacts
func (c *Config) ModelsDir() string {
	return filepath.Join(c.DataDir, "models")
}

// PolicySnapshotPath returns where the latest policy table is persisted
func (c *Config) PolicySnapshotPath() string {
	return filepath.Join(c.DataDir, fmt.Sprintf("policy_%s.msgpack", c.Symbol))
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
