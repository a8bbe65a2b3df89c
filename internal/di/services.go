package di

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/aristath/adaptivetrader/internal/config"
	"github.com/aristath/adaptivetrader/internal/engine"
	"github.com/aristath/adaptivetrader/internal/execution"
	"github.com/aristath/adaptivetrader/internal/feeder"
	"github.com/aristath/adaptivetrader/internal/modules/confidence"
	"github.com/aristath/adaptivetrader/internal/modules/experience"
	"github.com/aristath/adaptivetrader/internal/modules/learning"
	"github.com/aristath/adaptivetrader/internal/modules/outcome"
	"github.com/aristath/adaptivetrader/internal/modules/policy"
	"github.com/aristath/adaptivetrader/internal/modules/selection"
	"github.com/aristath/adaptivetrader/internal/reliability"
	"github.com/rs/zerolog"
)

// replayBatchSize bounds how many resolutions are buffered per log rewrite in replay
const replayBatchSize = 200

// InitializeServices builds storage, learning and the decision loop
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if cfg.TradingMode == "live" {
		return fmt.Errorf("live mode needs an exchange executor and none is configured; use paper")
	}
	if cfg.FeedPath == "" {
		return fmt.Errorf("FEED_PATH is required")
	}

	store, err := experience.NewStore(experience.Config{
		Path: cfg.ExperienceLogPath(),
		Mode: cfg.TradingMode,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to open experience store: %w", err)
	}
	container.Store = store

	container.Policy = policy.NewService(store, cfg.PolicySnapshotPath(), log)
	if err := container.Policy.Load(); err != nil {
		// A bad snapshot is rebuilt from the log on the next schedule
		log.Warn().Err(err).Msg("Failed to restore policy snapshot")
	}

	container.Registry = learning.NewRegistry(container.RegistryDB, cfg.ModelsDir(), log)
	if err := container.Registry.Load(context.Background()); err != nil {
		return fmt.Errorf("failed to load model registry: %w", err)
	}
	container.Inference = learning.NewInference(container.Registry)
	container.Pipeline = learning.NewPipeline(store, container.Registry, learning.PipelineConfig{
		RetrainThreshold: cfg.Training.RetrainThreshold,
		ValidationSplit:  cfg.Training.ValidationSplit,
		MinExpertSamples: cfg.Training.MinExpertSamples,
		Train:            learning.DefaultTrainConfig(),
	}, log)

	seed := cfg.Selection.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	selector := selection.New(selection.Config{
		StrategicWaitProb: cfg.Selection.StrategicWaitProb,
		MaxRepeats:        cfg.Selection.MaxRepeats,
	}, rand.New(rand.NewSource(seed)))

	cc := cfg.Confidence
	gate := confidence.NewGate(confidence.Bands{
		BlockBelow:   cc.BlockBelow,
		ReducedBelow: cc.ReducedBelow,
		NormalBelow:  cc.NormalBelow,
		ReducedMult:  cc.ReducedMult,
		NormalMult:   cc.NormalMult,
		BoostMult:    cc.BoostMult,
	}, cc.MaxPositionSize())

	container.Engine = engine.New(engine.Config{
		DataSource:       cfg.TradingMode,
		HistoryWindow:    cfg.Selection.HistoryWindow,
		BasePositionSize: cc.BasePositionSize,
		Discount: confidence.DiscountConfig{
			MinSamples:         cc.MinSamples,
			SmallSamplePenalty: cc.SmallSamplePen,
			TransitionPenalty:  cc.TransitionPen,
			HighVolPenalty:     cc.HighVolPen,
		},
	}, store, selector, gate, container.Inference, container.Policy, log)

	batch := 0
	if cfg.TradingMode == "replay" {
		batch = replayBatchSize
	}
	oc := cfg.Outcome
	container.Tracker = outcome.NewTracker(outcome.Config{
		WaitHorizonCandles: oc.WaitHorizonCandles,
		MaxHoldCandles:     oc.MaxHoldCandles,
		Scalp:              outcome.Targets{TakeProfitPct: oc.ScalpTakeProfitPct, StopLossPct: oc.ScalpStopLossPct},
		Swing:              outcome.Targets{TakeProfitPct: oc.SwingTakeProfitPct, StopLossPct: oc.SwingStopLossPct},
		BatchSize:          batch,
	}, store, log)

	container.Feeder, err = feeder.Open(feeder.Config{
		Path:   cfg.FeedPath,
		Follow: cfg.TradingMode != "replay",
	}, log)
	if err != nil {
		return err
	}

	container.Executor = execution.NewPaperExecutor(execution.PaperConfig{SlippageBps: cfg.SlippageBps}, log)

	interval := time.Duration(cfg.CycleIntervalSeconds) * time.Second
	if cfg.TradingMode == "replay" {
		interval = 0
	}
	container.Loop = engine.NewLoop(engine.LoopConfig{
		Symbol:   cfg.Symbol,
		Interval: interval,
	}, container.Engine, container.Feeder, container.Executor, container.Tracker, store, log)

	if cfg.Backup.Enabled {
		client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.Backup = reliability.NewBackupService(client, reliability.Sources{
			Symbol:      cfg.Symbol,
			Log:         store,
			RegistryDB:  container.RegistryDB,
			ModelsDir:   cfg.ModelsDir(),
			PolicyPath:  cfg.PolicySnapshotPath(),
			StagingRoot: cfg.DataDir,
		}, log)
	}

	log.Info().
		Str("mode", cfg.TradingMode).
		Str("symbol", cfg.Symbol).
		Str("model", container.Inference.ModelVersion()).
		Msg("Services initialized")
	return nil
}
