// Package feeder supplies market observations to the decision loop.
package feeder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/rs/zerolog"
)

// Config configures a JSONL feeder
type Config struct {
	Path string
	// Follow keeps reading as an external collector appends to the file
	// instead of ending at EOF. Used in paper and live modes.
	Follow       bool
	PollInterval time.Duration
}

// JSONLFeeder reads one domain.Observation per line
type JSONLFeeder struct {
	cfg     Config
	file    *os.File
	reader  *bufio.Reader
	partial []byte
	line    int
	log     zerolog.Logger
}

// Open opens the observation file
func Open(cfg Config, log zerolog.Logger) (*JSONLFeeder, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed %s: %w", cfg.Path, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &JSONLFeeder{
		cfg:    cfg,
		file:   f,
		reader: bufio.NewReaderSize(f, 64*1024),
		log:    log.With().Str("component", "feeder").Str("path", cfg.Path).Logger(),
	}, nil
}

// Next returns the next well-formed observation. Malformed lines are logged
// and skipped. Without Follow, io.EOF marks the end of the replay.
func (f *JSONLFeeder) Next(ctx context.Context) (domain.Observation, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Observation{}, err
		}

		line, err := f.readLine(ctx)
		if err != nil {
			return domain.Observation{}, err
		}
		f.line++

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var obs domain.Observation
		if err := json.Unmarshal(line, &obs); err != nil {
			f.log.Warn().Err(err).Int("line", f.line).Msg("Skipping malformed observation")
			continue
		}
		if obs.Price <= 0 {
			obs.Price = obs.State.CurrentPrice
		}
		if obs.State.CurrentPrice <= 0 {
			obs.State.CurrentPrice = obs.Price
		}
		return obs, nil
	}
}

// readLine returns one complete line. In follow mode a partial trailing line
// is held until the writer finishes it.
func (f *JSONLFeeder) readLine(ctx context.Context) ([]byte, error) {
	for {
		chunk, err := f.reader.ReadBytes('\n')
		f.partial = append(f.partial, chunk...)

		if err == nil {
			line := f.partial
			f.partial = nil
			return line, nil
		}
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read feed: %w", err)
		}

		if !f.cfg.Follow {
			if len(bytes.TrimSpace(f.partial)) > 0 {
				line := f.partial
				f.partial = nil
				return line, nil
			}
			return nil, io.EOF
		}

		t := time.NewTimer(f.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Close releases the file
func (f *JSONLFeeder) Close() error {
	return f.file.Close()
}
