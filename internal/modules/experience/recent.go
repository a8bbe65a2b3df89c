package experience

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/aristath/adaptivetrader/internal/domain"
)

const reverseChunkSize = 8192

// Recent returns up to n most recent well-formed records, newest first.
// The file is read backwards in chunks so cost is proportional to n.
func (s *Store) Recent(n int) ([]domain.DecisionRecord, error) {
	if n <= 0 {
		return []domain.DecisionRecord{}, nil
	}

	s.mu.Lock()
	f, err := os.Open(s.path)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.DecisionRecord{}, nil
		}
		return nil, storageErr("open", s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, storageErr("stat", s.path, err)
	}

	out := make([]domain.DecisionRecord, 0, n)
	offset := info.Size()
	var carry []byte

	consume := func(line []byte) bool {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return false
		}
		var rec domain.DecisionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn().Err(err).Msg("Skipping malformed line")
			return false
		}
		out = append(out, rec)
		return len(out) >= n
	}

	for offset > 0 {
		size := int64(reverseChunkSize)
		if offset < size {
			size = offset
		}
		offset -= size

		chunk := make([]byte, size, int(size)+len(carry))
		if _, err := f.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return nil, storageErr("read", s.path, err)
		}
		chunk = append(chunk, carry...)

		// Everything before the first newline may belong to an earlier chunk
		first := bytes.IndexByte(chunk, '\n')
		if first < 0 {
			carry = chunk
			continue
		}
		carry = append([]byte(nil), chunk[:first]...)

		lines := bytes.Split(chunk[first+1:], []byte{'\n'})
		for i := len(lines) - 1; i >= 0; i-- {
			if consume(lines[i]) {
				return out, nil
			}
		}
	}

	consume(carry)
	return out, nil
}
