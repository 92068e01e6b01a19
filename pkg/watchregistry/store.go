// Package watchregistry persists one record per watch session on disk so
// operators can list sessions across processes.
package watchregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Store loads and saves SessionRecords under a root directory:
//
//	<root>/<session_id>/session.json
type Store struct {
	root string

	// alive reports whether a pid is a live process.
	alive func(pid int) bool
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root), alive: isProcessAlive}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *Store) SessionPath(sessionID string) string {
	return filepath.Join(s.SessionDir(sessionID), "session.json")
}

func (s *Store) ensureRoot() error {
	if s.root == "" {
		return fmt.Errorf("session registry root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Write atomically replaces the record for rec.SessionID.
func (s *Store) Write(rec *SessionRecord) error {
	if rec == nil {
		return fmt.Errorf("session record is nil")
	}
	id := strings.TrimSpace(rec.SessionID)
	if id == "" {
		return fmt.Errorf("session_id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid session_id %q", id)
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	dir := s.SessionDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "session.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, s.SessionPath(id)); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Get loads one record. A running record whose pid is gone is rewritten as
// unknown.
func (s *Store) Get(sessionID string) (*SessionRecord, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	b, err := os.ReadFile(s.SessionPath(sessionID))
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("session.json is empty")
	}

	var rec SessionRecord
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, fmt.Errorf("parse session.json: %w", err)
	}

	if rec.State == StateRunning && rec.PID > 0 && !s.alive(rec.PID) {
		rec.State = StateUnknown
		_ = s.Write(&rec)
	}
	return &rec, nil
}

// List returns every readable record, newest first. Unreadable entries are
// skipped.
func (s *Store) List() ([]SessionRecord, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read sessions root: %w", err)
	}

	out := make([]SessionRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := sortTime(out[i]), sortTime(out[j])
		if ti.Equal(tj) {
			return out[i].SessionID < out[j].SessionID
		}
		return ti.After(tj)
	})
	return out, nil
}

// Remove deletes a stopped or failed record. Running records are kept.
func (s *Store) Remove(sessionID string) error {
	rec, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	if rec.State == StateRunning {
		return fmt.Errorf("session %s is still running", sessionID)
	}
	return os.RemoveAll(s.SessionDir(rec.SessionID))
}

// GC removes finished records that stopped before cutoff and returns their
// ids.
func (s *Store) GC(cutoff time.Time) ([]string, error) {
	recs, err := s.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, r := range recs {
		if r.State == StateRunning {
			continue
		}
		end := sortTime(r)
		if r.StoppedAt != nil {
			end = *r.StoppedAt
		}
		if !end.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(s.SessionDir(r.SessionID)); err != nil {
			return removed, fmt.Errorf("remove session %s: %w", r.SessionID, err)
		}
		removed = append(removed, r.SessionID)
	}
	return removed, nil
}

func sortTime(r SessionRecord) time.Time {
	if r.StartedAt != nil {
		return r.StartedAt.UTC()
	}
	return r.CreatedAt.UTC()
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without delivering anything.
	return p.Signal(syscall.Signal(0)) == nil
}
