// Package experience persists every decision as an append-only JSON-lines log
// and resolves each record exactly once.
package experience

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SchemaVersion is written into every record's metadata
const SchemaVersion = "2.0"

const tmpSuffix = ".tmp"

// Config configures a store
type Config struct {
	Path string // experience_log_<SYMBOL>.jsonl
	Mode string // replay, paper or live
}

// LogOptions carries the per-decision metadata supplied by the engine
type LogOptions struct {
	DataSource      string
	MarketPeriodID  string
	RepetitionCount int
	MLConfidence    *float64
	SizeMultiplier  float64
	PositionSize    float64
	ModelVersion    string
	OriginalAction  *domain.Action
	Timestamp       time.Time // zero = now
}

// Resolution is a pending finalize for FinalizeBatch
type Resolution struct {
	ID      string
	Outcome domain.Outcome
	Reward  float64
}

// Store is the single writer for one instrument's decision log.
// All methods are safe for concurrent use within a process.
type Store struct {
	path string
	mode string
	mu   sync.Mutex
	log  zerolog.Logger
	now  func() time.Time

	// beforeRename runs after the temp file is synced and before it replaces
	// the log. Tests use it to simulate a crash at that point.
	beforeRename func(tmpPath string) error
}

// NewStore opens (creating if needed) the log at cfg.Path.
// Leftover temp files from an interrupted finalize are discarded and a
// truncated trailing line is terminated so later appends stay line aligned.
func NewStore(cfg Config, log zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("experience store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, storageErr("init", cfg.Path, err)
	}

	s := &Store{
		path: cfg.Path,
		mode: cfg.Mode,
		log:  log.With().Str("component", "experience_store").Str("path", cfg.Path).Logger(),
		now:  time.Now,
	}

	if err := s.cleanupTemps(); err != nil {
		return nil, err
	}
	if err := s.repairTail(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the log file path
func (s *Store) Path() string {
	return s.path
}

// Log appends a new unresolved decision and returns its id. The line is
// fsynced before Log returns.
func (s *Store) Log(state domain.MarketState, action domain.Action, reward float64, opts LogOptions) (string, error) {
	ts := opts.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	rec := domain.DecisionRecord{
		ID:              uuid.NewString(),
		Timestamp:       ts.UTC(),
		MarketState:     state,
		Action:          action,
		Reward:          reward,
		Resolved:        false,
		RepetitionCount: opts.RepetitionCount,
		Metadata: domain.RecordMetadata{
			Version:        SchemaVersion,
			Mode:           s.mode,
			DataSource:     opts.DataSource,
			MarketPeriodID: opts.MarketPeriodID,
			MLConfidence:   opts.MLConfidence,
			SizeMultiplier: opts.SizeMultiplier,
			PositionSize:   opts.PositionSize,
			ModelVersion:   opts.ModelVersion,
			OriginalAction: opts.OriginalAction,
		},
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return "", storageErr("encode", s.path, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", storageErr("append", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return "", storageErr("append", s.path, err)
	}
	if err := f.Sync(); err != nil {
		return "", storageErr("sync", s.path, err)
	}

	return rec.ID, nil
}

// Finalize marks a record resolved with its outcome and reward. The log is
// rewritten to a temp file in the same directory and atomically renamed over
// the original, so readers see either the old or the new file, never a mix.
// Unknown ids return domain.ErrRecordNotFound and leave the log untouched.
func (s *Store) Finalize(id string, outcome domain.Outcome, reward float64) error {
	applied, err := s.FinalizeBatch([]Resolution{{ID: id, Outcome: outcome, Reward: reward}})
	if err != nil {
		return err
	}
	if applied == 0 {
		return fmt.Errorf("finalize %s: %w", id, domain.ErrRecordNotFound)
	}
	return nil
}

// FinalizeBatch applies many resolutions in a single rewrite and returns how
// many records were updated. Ids not present in the log are skipped.
func (s *Store) FinalizeBatch(resolutions []Resolution) (int, error) {
	if len(resolutions) == 0 {
		return 0, nil
	}

	pending := make(map[string]Resolution, len(resolutions))
	for _, r := range resolutions {
		pending[r.ID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, storageErr("open", s.path, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*"+tmpSuffix)
	if err != nil {
		return 0, storageErr("create temp", s.path, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	resolvedAt := s.now().UTC()
	w := bufio.NewWriter(tmp)
	applied := 0

	err = eachLine(in, func(raw []byte) error {
		var rec domain.DecisionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.Warn().Err(err).Msg("Dropping malformed line during finalize")
			return nil
		}

		res, ok := pending[rec.ID]
		if !ok {
			return writeLine(w, raw)
		}

		if rec.Resolved {
			s.log.Warn().Str("id", rec.ID).Msg("Record already resolved, overwriting outcome")
		}
		outcome := res.Outcome
		rec.Resolved = true
		rec.Reward = res.Reward
		rec.Outcome = &outcome
		rec.ResolutionTime = &resolvedAt

		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		applied++
		return writeLine(w, updated)
	})
	if err != nil {
		return 0, storageErr("rewrite", s.path, err)
	}

	if applied == 0 {
		return 0, nil
	}

	if err := w.Flush(); err != nil {
		return 0, storageErr("flush temp", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, storageErr("sync temp", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, storageErr("close temp", tmpPath, err)
	}

	if s.beforeRename != nil {
		if err := s.beforeRename(tmpPath); err != nil {
			return 0, storageErr("rename", s.path, err)
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return 0, storageErr("rename", s.path, err)
	}
	committed = true
	syncDir(filepath.Dir(s.path))

	if missing := len(pending) - applied; missing > 0 {
		s.log.Debug().Int("missing", missing).Int("applied", applied).Msg("Some resolutions targeted unknown records")
	}
	return applied, nil
}

// Get returns the record with the given id
func (s *Store) Get(id string) (*domain.DecisionRecord, error) {
	var found *domain.DecisionRecord
	err := s.Scan(func(rec domain.DecisionRecord) error {
		if rec.ID == id {
			r := rec
			found = &r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("get %s: %w", id, domain.ErrRecordNotFound)
	}
	return found, nil
}

// Scan calls fn for every well-formed record in file order.
// Returning an error from fn stops the scan and is returned.
func (s *Store) Scan(fn func(domain.DecisionRecord) error) error {
	s.mu.Lock()
	f, err := os.Open(s.path)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return storageErr("open", s.path, err)
	}
	defer f.Close()

	var fnErr error
	err = eachLine(f, func(raw []byte) error {
		var rec domain.DecisionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.Warn().Err(err).Msg("Skipping malformed line")
			return nil
		}
		if err := fn(rec); err != nil {
			fnErr = err
			return err
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return storageErr("read", s.path, err)
	}
	return nil
}

// Resolved returns every resolved record in file (chronological) order
func (s *Store) Resolved() ([]domain.DecisionRecord, error) {
	var out []domain.DecisionRecord
	err := s.Scan(func(rec domain.DecisionRecord) error {
		if rec.Resolved {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// CountResolved returns the number of resolved records
func (s *Store) CountResolved() (int, error) {
	n := 0
	err := s.Scan(func(rec domain.DecisionRecord) error {
		if rec.Resolved {
			n++
		}
		return nil
	})
	return n, err
}

// Pending returns unresolved records in chronological order
func (s *Store) Pending() ([]domain.DecisionRecord, error) {
	var out []domain.DecisionRecord
	err := s.Scan(func(rec domain.DecisionRecord) error {
		if !rec.Resolved {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (s *Store) cleanupTemps() error {
	matches, err := filepath.Glob(s.path + ".*" + tmpSuffix)
	if err != nil {
		return storageErr("cleanup", s.path, err)
	}
	for _, m := range matches {
		s.log.Warn().Str("temp", m).Msg("Removing leftover temp file from interrupted finalize")
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return storageErr("cleanup", m, err)
		}
	}
	return nil
}

func (s *Store) repairTail() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return storageErr("open", s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return storageErr("stat", s.path, err)
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return storageErr("read", s.path, err)
	}
	if last[0] == '\n' {
		return nil
	}

	s.log.Warn().Msg("Log does not end with a newline, terminating partial line")
	if _, err := f.WriteAt([]byte{'\n'}, info.Size()); err != nil {
		return storageErr("repair", s.path, err)
	}
	return f.Sync()
}

// eachLine calls fn for every non-blank line without its trailing newline
func eachLine(r io.Reader, fn func([]byte) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if ferr := fn(trimmed); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func writeLine(w *bufio.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func storageErr(op, path string, err error) error {
	return &domain.StorageError{Op: op, Path: path, Err: err}
}

// Snapshot copies the log to dst while holding the writer lock, so the copy
// never contains a half-written line or a partial rewrite.
func (s *Store) Snapshot(dst string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Nothing logged yet; an empty snapshot is still a valid log
			return 0, os.WriteFile(dst, nil, 0644)
		}
		return 0, storageErr("snapshot", s.path, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, storageErr("snapshot", dst, err)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		out.Close()
		return 0, storageErr("snapshot", dst, err)
	}
	if err := out.Close(); err != nil {
		return 0, storageErr("snapshot", dst, err)
	}
	return n, nil
}
