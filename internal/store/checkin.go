package store

import (
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"sync"
	"time"
)

// CheckIn is one wellness check-in session entry.
type CheckIn struct {
	Timestamp  string   `json:"timestamp"`
	Name       string   `json:"name"`
	Mood       string   `json:"mood"`
	Energy     string   `json:"energy"`
	Stress     string   `json:"stress"`
	Objectives []string `json:"objectives"`
	SelfCare   string   `json:"self_care"`
	Summary    string   `json:"summary"`
}

// NewCheckIn returns an empty check-in ready to be filled field by field.
func NewCheckIn() *CheckIn {
	return &CheckIn{Objectives: []string{}}
}

// sessionStamp formats the check-in time for use inside a filename.
const sessionStamp = "2006-01-02T15-04-05"

// CheckInStore keeps, per user, an aggregate file holding every session
// entry in order plus one file per session holding a single entry.
type CheckInStore struct {
	dir    string
	mirror Mirror
	mu     sync.Mutex
}

func NewCheckInStore(dir string) (*CheckInStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &CheckInStore{dir: dir}, nil
}

// WithMirror enables best-effort uploads of saved documents.
func (s *CheckInStore) WithMirror(m Mirror) *CheckInStore {
	s.mirror = m
	return s
}

// Save appends the entry to the user's aggregate file and writes a
// per-session copy next to it. Earlier aggregate entries keep their order;
// the new entry always lands last.
func (s *CheckInStore) Save(entry *CheckIn, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Objectives == nil {
		entry.Objectives = []string{}
	}
	if entry.Timestamp == "" {
		entry.Timestamp = at.Format(time.RFC3339)
	}
	base := SanitizeName(entry.Name)

	history, err := s.historyLocked(base)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	history = append(history, *entry)
	aggName := base + ".json"
	aggData, err := writeRecord(filepath.Join(s.dir, aggName), history)
	if err != nil {
		return err
	}
	s.mirrorUpload(aggName, aggData)

	sessName := fmt.Sprintf("%s_%s.json", base, at.Format(sessionStamp))
	sessData, err := writeRecord(filepath.Join(s.dir, sessName), entry)
	if err != nil {
		return err
	}
	s.mirrorUpload(sessName, sessData)
	return nil
}

// History returns every session entry recorded for the given display name,
// oldest first. ErrNotFound means the user has never checked in.
func (s *CheckInStore) History(name string) ([]CheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked(SanitizeName(name))
}

// Latest returns the most recent entry for the given display name, or
// ErrNotFound when the user has no saved check-ins.
func (s *CheckInStore) Latest(name string) (*CheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, err := s.historyLocked(SanitizeName(name))
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	last := history[len(history)-1]
	return &last, nil
}

func (s *CheckInStore) historyLocked(base string) ([]CheckIn, error) {
	var history []CheckIn
	if err := readRecord(filepath.Join(s.dir, base+".json"), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *CheckInStore) mirrorUpload(name string, data []byte) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Upload(path.Join("checkins", name), "application/json", data); err != nil {
		log.Printf("mirror upload %s failed: %v", name, err)
	}
}
