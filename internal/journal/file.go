package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "autokit/pkg/logx"
)

// tailCap bounds the in-memory tail served by RecentRuns.
const tailCap = 1000

// compactEvery triggers a best-effort file compaction after this many
// appends.
const compactEvery = 1000

// fileStore is a dependency-free journal backend.
//
// A single append-only JSON Lines file (<path>) holds every run record.
// The in-memory tail (last tailCap records) is rebuilt from the file on open
// and serves RecentRuns without touching disk. Compaction rewrites the file
// with only the retained records.
type fileStore struct {
	log       logx.Logger
	retention time.Duration

	mu     sync.Mutex
	file   *os.File
	path   string
	tail   []RunRecord
	writes int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	tail, err := replayTail(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:       log,
		retention: cfg.Retention,
		file:      f,
		path:      path,
		tail:      tail,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("journal file closed")
	}
	if err := json.NewEncoder(s.file).Encode(r); err != nil {
		return err
	}

	s.tail = append(s.tail, r)
	if len(s.tail) > tailCap {
		s.tail = s.tail[len(s.tail)-tailCap:]
	}

	s.writes++
	if s.writes%compactEvery == 0 && s.retention > 0 {
		// Best-effort compact.
		if _, err := s.pruneLocked(time.Now().Add(-s.retention)); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.tail)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunRecord, n)
	copy(out, s.tail[len(s.tail)-n:])
	return out, nil
}

func (s *fileStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(olderThan)
}

// pruneLocked rewrites the file keeping only records at or after olderThan.
// The rewrite goes through a temp file and rename, so a crash mid-compaction
// never loses the old file.
func (s *fileStore) pruneLocked(olderThan time.Time) (int, error) {
	if s.file == nil {
		return 0, errors.New("journal file closed")
	}

	all, err := replayAll(s.path)
	if err != nil {
		return 0, err
	}
	kept := all[:0]
	for _, r := range all {
		if !r.At.Before(olderThan) {
			kept = append(kept, r)
		}
	}
	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	for _, r := range kept {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	if err := s.file.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.file = nil
		return 0, err
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.file = nil
		return 0, err
	}
	s.file = nf

	if len(kept) > tailCap {
		kept = kept[len(kept)-tailCap:]
	}
	s.tail = append(s.tail[:0], kept...)
	return removed, nil
}

func replayTail(path string) ([]RunRecord, error) {
	all, err := replayAll(path)
	if err != nil {
		return nil, err
	}
	if len(all) > tailCap {
		all = all[len(all)-tailCap:]
	}
	return all, nil
}

func replayAll(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r RunRecord
		// Skip torn or corrupt lines instead of failing the whole replay.
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
