// Package viewlog stores viewability beacons as an append-only JSONL file.
// One JSON object per line; corrupt lines are skipped on read so a torn write
// never poisons the whole log.
package viewlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aquads/indexer/internal/core/domain"
)

// FileLog is a mutex-guarded JSONL file of view records.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog creates the log, ensuring the parent directory exists.
func NewFileLog(path string) (*FileLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create view log dir: %w", err)
		}
	}
	return &FileLog{path: path}, nil
}

// Append writes one record to the end of the log.
func (l *FileLog) Append(ctx context.Context, rec *domain.ViewRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode view record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open view log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write view record: %w", err)
	}
	return nil
}

// Stats scans the log and aggregates per-slot engagement for the given slot
// ids. A missing file means no views yet, not an error.
func (l *FileLog) Stats(ctx context.Context, slotIDs []string) (map[string]domain.ViewStats, error) {
	wanted := make(map[string]bool, len(slotIDs))
	for _, id := range slotIDs {
		wanted[id] = true
	}
	out := make(map[string]domain.ViewStats, len(slotIDs))

	err := l.scan(ctx, func(rec domain.ViewRecord) {
		if !wanted[rec.SlotID] {
			return
		}
		st := out[rec.SlotID]
		st.Views++
		st.TotalDurationMs += rec.DurationMs
		st.MaxPctSum += rec.MaxPct
		out[rec.SlotID] = st
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Prune rewrites the log keeping only records newer than the cutoff. The
// filtered file is written beside the log and renamed into place.
func (l *FileLog) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open view log: %w", err)
	}
	defer f.Close()

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp view log: %w", err)
	}
	defer tmp.Close()

	cutoffMs := olderThan.UnixMilli()
	removed := 0
	w := bufio.NewWriter(tmp)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		line := scanner.Bytes()
		var rec domain.ViewRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			removed++
			continue
		}
		if rec.TS < cutoffMs {
			removed++
			continue
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return 0, fmt.Errorf("failed to write temp view log: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan view log: %w", err)
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush temp view log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp view log: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return 0, fmt.Errorf("failed to swap view log: %w", err)
	}
	return removed, nil
}

func (l *FileLog) scan(ctx context.Context, fn func(domain.ViewRecord)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open view log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec domain.ViewRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		fn(rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan view log: %w", err)
	}
	return nil
}
