package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// RecordSource yields resolved decisions
type RecordSource interface {
	Resolved() ([]domain.DecisionRecord, error)
}

// Service owns the current policy table. Readers get a consistent snapshot
// via Current; Rebuild publishes a whole new table in one pointer swap.
type Service struct {
	source       RecordSource
	snapshotPath string
	log          zerolog.Logger
	now          func() time.Time

	current atomic.Pointer[Table]
	buildMu sync.Mutex
}

// NewService creates a policy service. snapshotPath may be empty to skip persistence.
func NewService(source RecordSource, snapshotPath string, log zerolog.Logger) *Service {
	s := &Service{
		source:       source,
		snapshotPath: snapshotPath,
		log:          log.With().Str("component", "policy").Logger(),
		now:          time.Now,
	}
	s.current.Store(&Table{Cells: map[string]Cell{}})
	return s
}

// Current returns the latest published table
func (s *Service) Current() *Table {
	return s.current.Load()
}

// SampleSize is a convenience lookup against the current table
func (s *Service) SampleSize(regime domain.Regime, vol domain.VolatilityLevel, strategy domain.Strategy) int {
	return s.Current().SampleSize(regime, vol, strategy)
}

// Load restores the last persisted table, if any
func (s *Service) Load() error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read policy snapshot: %w", err)
	}

	var t Table
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("failed to decode policy snapshot: %w", err)
	}
	if t.Cells == nil {
		t.Cells = map[string]Cell{}
	}
	s.current.Store(&t)

	s.log.Info().Int64("version", t.Version).Int("cells", len(t.Cells)).Msg("Policy table restored")
	return nil
}

// Rebuild aggregates all resolved records into a new version and publishes it
func (s *Service) Rebuild() (*Table, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	records, err := s.source.Resolved()
	if err != nil {
		return nil, fmt.Errorf("failed to read resolved records: %w", err)
	}

	next := Build(records, s.Current().Version+1, s.now())
	if err := s.persist(next); err != nil {
		return nil, err
	}
	s.current.Store(next)

	s.log.Info().
		Int64("version", next.Version).
		Int("records", next.RecordCount).
		Int("cells", len(next.Cells)).
		Msg("Policy table published")
	return next, nil
}

func (s *Service) persist(t *Table) error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := msgpack.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode policy snapshot: %w", err)
	}
	if err := writeFileAtomic(s.snapshotPath, data); err != nil {
		return fmt.Errorf("failed to write policy snapshot: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
