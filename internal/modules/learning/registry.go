package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aristath/adaptivetrader/internal/database"
	"github.com/rs/zerolog"
)

// Status is the lifecycle state of a registry entry
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCandidate Status = "CANDIDATE"
	StatusRejected  Status = "REJECTED"
	StatusRetired   Status = "RETIRED"
)

// ErrNotCandidate is returned when promoting or rejecting a model that is not a candidate
var ErrNotCandidate = errors.New("model is not a candidate")

// Entry is one row of the model catalog
type Entry struct {
	Version     string            `json:"version"`
	Seq         int64             `json:"seq"`
	Kind        string            `json:"kind"`
	Status      Status            `json:"status"`
	Artifacts   map[string]string `json:"artifacts"`
	Metrics     Metrics           `json:"metrics"`
	RecordCount int               `json:"record_count"`
	CreatedAt   time.Time         `json:"created_at"`
	PromotedAt  *time.Time        `json:"promoted_at,omitempty"`
	Notes       string            `json:"notes,omitempty"`
}

// LoadedModel is the in-memory active model published to inference
type LoadedModel struct {
	Version  string
	Ensemble *Ensemble
}

// Candidate is a freshly trained model awaiting registration
type Candidate struct {
	Ensemble    *Ensemble
	Metrics     Metrics
	RecordCount int
	Notes       string
}

// Run is one pipeline execution that reached training
type Run struct {
	ID               int64      `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       time.Time  `json:"finished_at"`
	Outcome          RunOutcome `json:"outcome"`
	CandidateVersion string     `json:"candidate_version,omitempty"`
	CandidateAUC     float64    `json:"candidate_auc"`
	BaselineAUC      float64    `json:"baseline_auc"`
	TotalRecords     int        `json:"total_records"`
	NewRecords       int        `json:"new_records"`
	Message          string     `json:"message,omitempty"`
}

// Registry is the catalog of trained models plus the single active pointer.
// The catalog lives in SQLite; the loaded active model lives behind an
// atomic pointer so inference never sees a half-promoted model.
type Registry struct {
	db        *database.DB
	modelsDir string
	log       zerolog.Logger
	now       func() time.Time

	active atomic.Pointer[LoadedModel]
}

// NewRegistry creates a registry over a migrated registry database
func NewRegistry(db *database.DB, modelsDir string, log zerolog.Logger) *Registry {
	return &Registry{
		db:        db,
		modelsDir: modelsDir,
		log:       log.With().Str("component", "model_registry").Logger(),
		now:       time.Now,
	}
}

// Active returns the currently published model, or nil
func (r *Registry) Active() *LoadedModel {
	return r.active.Load()
}

// Load publishes the ACTIVE entry's artifacts. A missing or corrupt artifact
// leaves inference unavailable instead of failing startup.
func (r *Registry) Load(ctx context.Context) error {
	entry, err := r.ActiveEntry(ctx)
	if err != nil {
		return err
	}
	if entry == nil {
		r.log.Info().Msg("No active model, running rule-only")
		return nil
	}

	ensemble, err := LoadArtifacts(entry.Artifacts)
	if err != nil {
		r.log.Error().Err(err).Str("version", entry.Version).Msg("Active model artifacts unusable, running rule-only")
		return nil
	}
	r.active.Store(&LoadedModel{Version: entry.Version, Ensemble: ensemble})

	r.log.Info().
		Str("version", entry.Version).
		Str("kind", entry.Kind).
		Float64("auc", entry.Metrics.AUC).
		Msg("Active model loaded")
	return nil
}

// RegisterCandidate allocates the next version, writes the artifacts and
// inserts a CANDIDATE row.
func (r *Registry) RegisterCandidate(ctx context.Context, c Candidate) (*Entry, error) {
	var seq int64
	if err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM models").Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to allocate model version: %w", err)
	}
	version := fmt.Sprintf("v%d", seq)
	dir := filepath.Join(r.modelsDir, version)

	artifacts, err := SaveArtifacts(c.Ensemble, dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	entry := &Entry{
		Version:     version,
		Seq:         seq,
		Kind:        c.Ensemble.Kind(),
		Status:      StatusCandidate,
		Artifacts:   artifacts,
		Metrics:     c.Metrics,
		RecordCount: c.RecordCount,
		CreatedAt:   r.now().UTC().Truncate(time.Second),
		Notes:       c.Notes,
	}

	artifactsJSON, err := json.Marshal(entry.Artifacts)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to marshal artifacts: %w", err)
	}
	metricsJSON, err := json.Marshal(entry.Metrics)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO models (version, seq, kind, status, artifacts, metrics, record_count, created_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Version, entry.Seq, entry.Kind, string(entry.Status), string(artifactsJSON), string(metricsJSON),
		entry.RecordCount, entry.CreatedAt.Unix(), entry.Notes)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to insert candidate %s: %w", version, err)
	}

	r.log.Info().Str("version", version).Str("kind", entry.Kind).Float64("auc", entry.Metrics.AUC).Msg("Candidate registered")
	return entry, nil
}

// Promote makes a candidate the single ACTIVE model. The previous ACTIVE
// entry becomes RETIRED in the same transaction, and the in-memory pointer
// is swapped only after commit.
func (r *Registry) Promote(ctx context.Context, version string) error {
	entry, err := r.Get(ctx, version)
	if err != nil {
		return err
	}
	if entry.Status != StatusCandidate {
		return fmt.Errorf("%w: %s is %s", ErrNotCandidate, version, entry.Status)
	}

	// Load before touching the catalog so a broken artifact never becomes ACTIVE
	ensemble, err := LoadArtifacts(entry.Artifacts)
	if err != nil {
		return fmt.Errorf("refusing to promote %s: %w", version, err)
	}

	now := r.now().Unix()
	err = database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("UPDATE models SET status = ? WHERE status = ?", string(StatusRetired), string(StatusActive)); err != nil {
			return fmt.Errorf("failed to retire active model: %w", err)
		}
		res, err := tx.Exec("UPDATE models SET status = ?, promoted_at = ? WHERE version = ? AND status = ?",
			string(StatusActive), now, version, string(StatusCandidate))
		if err != nil {
			return fmt.Errorf("failed to activate %s: %w", version, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("%w: %s changed concurrently", ErrNotCandidate, version)
		}
		if _, err := tx.Exec("UPDATE registry_state SET active_version = ?, updated_at = ? WHERE id = 1", version, now); err != nil {
			return fmt.Errorf("failed to update active pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	previous := r.active.Swap(&LoadedModel{Version: version, Ensemble: ensemble})
	event := r.log.Info().Str("version", version).Float64("auc", entry.Metrics.AUC)
	if previous != nil {
		event = event.Str("previous", previous.Version)
	}
	event.Msg("Model promoted")
	return nil
}

// Reject marks a candidate REJECTED and deletes its artifacts
func (r *Registry) Reject(ctx context.Context, version, reason string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE models SET status = ?, notes = ? WHERE version = ? AND status = ?",
		string(StatusRejected), reason, version, string(StatusCandidate))
	if err != nil {
		return fmt.Errorf("failed to reject %s: %w", version, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("%w: %s", ErrNotCandidate, version)
	}

	if err := os.RemoveAll(filepath.Join(r.modelsDir, version)); err != nil {
		r.log.Warn().Err(err).Str("version", version).Msg("Failed to delete rejected artifacts")
	}
	r.log.Info().Str("version", version).Str("reason", reason).Msg("Candidate rejected")
	return nil
}

// Get returns a single entry
func (r *Registry) Get(ctx context.Context, version string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, selectEntry+" WHERE version = ?", version)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s not found", version)
	}
	return entry, err
}

// ActiveEntry returns the ACTIVE entry, or nil when there is none
func (r *Registry) ActiveEntry(ctx context.Context) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, selectEntry+" WHERE status = ?", string(StatusActive))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// List returns every entry, newest first
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntry+" ORDER BY seq DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// RecordsAtLastTrain is the resolved-record count seen by the last training run
func (r *Registry) RecordsAtLastTrain(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT records_at_last_train FROM registry_state WHERE id = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read training counter: %w", err)
	}
	return n, nil
}

// SetRecordsAtLastTrain stores the training counter
func (r *Registry) SetRecordsAtLastTrain(ctx context.Context, n int) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE registry_state SET records_at_last_train = ?, updated_at = ? WHERE id = 1", n, r.now().Unix()); err != nil {
		return fmt.Errorf("failed to update training counter: %w", err)
	}
	return nil
}

// RecordRun appends a pipeline run to the history
func (r *Registry) RecordRun(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO training_runs (started_at, finished_at, outcome, candidate_version, candidate_auc, baseline_auc, total_records, new_records, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt.Unix(), run.FinishedAt.Unix(), string(run.Outcome), nullString(run.CandidateVersion),
		run.CandidateAUC, run.BaselineAUC, run.TotalRecords, run.NewRecords, run.Message)
	if err != nil {
		return fmt.Errorf("failed to record training run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent pipeline runs, newest first
func (r *Registry) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, outcome, candidate_version, candidate_auc, baseline_auc, total_records, new_records, message
		FROM training_runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished int64
		var outcome string
		var candidate sql.NullString
		var candidateAUC, baselineAUC sql.NullFloat64
		if err := rows.Scan(&run.ID, &started, &finished, &outcome, &candidate, &candidateAUC, &baselineAUC,
			&run.TotalRecords, &run.NewRecords, &run.Message); err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		run.StartedAt = time.Unix(started, 0).UTC()
		run.FinishedAt = time.Unix(finished, 0).UTC()
		run.Outcome = RunOutcome(outcome)
		run.CandidateVersion = candidate.String
		run.CandidateAUC = candidateAUC.Float64
		run.BaselineAUC = baselineAUC.Float64
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const selectEntry = `SELECT version, seq, kind, status, artifacts, metrics, record_count, created_at, promoted_at, notes FROM models`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var status, artifactsJSON, metricsJSON string
	var created int64
	var promoted sql.NullInt64

	if err := s.Scan(&e.Version, &e.Seq, &e.Kind, &status, &artifactsJSON, &metricsJSON,
		&e.RecordCount, &created, &promoted, &e.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan model entry: %w", err)
	}

	e.Status = Status(status)
	e.CreatedAt = time.Unix(created, 0).UTC()
	if promoted.Valid {
		t := time.Unix(promoted.Int64, 0).UTC()
		e.PromotedAt = &t
	}
	if err := json.Unmarshal([]byte(artifactsJSON), &e.Artifacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifacts for %s: %w", e.Version, err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &e.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics for %s: %w", e.Version, err)
	}
	return &e, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
