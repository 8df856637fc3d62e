package store

import (
	"fmt"
	"log"
	"path"
	"path/filepath"
	"sync"
)

// ModelRequest is one captured 3D model request. Unset fields serialize as
// empty strings (and an empty object for extras) so saved documents always
// carry the full shape.
type ModelRequest struct {
	RequestID   string            `json:"request_id"`
	Description string            `json:"description"`
	ModelType   string            `json:"model_type"`
	Dimensions  string            `json:"dimensions"`
	Material    string            `json:"material"`
	Extras      map[string]string `json:"extras"`
}

// NewModelRequest returns an empty request ready to be filled field by field.
func NewModelRequest() *ModelRequest {
	return &ModelRequest{Extras: map[string]string{}}
}

// RequestStore writes one JSON file per request under its directory.
type RequestStore struct {
	dir    string
	mirror Mirror
	mu     sync.Mutex
}

func NewRequestStore(dir string) (*RequestStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &RequestStore{dir: dir}, nil
}

// WithMirror enables best-effort uploads of saved documents.
func (s *RequestStore) WithMirror(m Mirror) *RequestStore {
	s.mirror = m
	return s
}

// Save writes the request as <request_id>.json and returns the id. An empty
// request id is assigned request_<n>, where n is one plus the number of
// already saved files, so ids grow strictly across consecutive saves.
func (s *RequestStore) Save(req *ModelRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Extras == nil {
		req.Extras = map[string]string{}
	}
	if req.RequestID == "" {
		n, err := s.countLocked()
		if err != nil {
			return "", err
		}
		req.RequestID = fmt.Sprintf("request_%d", n+1)
	}
	name := req.RequestID + ".json"
	data, err := writeRecord(filepath.Join(s.dir, name), req)
	if err != nil {
		return "", err
	}
	s.mirrorUpload(name, data)
	return req.RequestID, nil
}

// Count reports how many request files exist.
func (s *RequestStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked()
}

func (s *RequestStore) countLocked() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", s.dir, err)
	}
	return len(matches), nil
}

// Load reads a previously saved request by id.
func (s *RequestStore) Load(id string) (*ModelRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req ModelRequest
	if err := readRecord(filepath.Join(s.dir, id+".json"), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *RequestStore) mirrorUpload(name string, data []byte) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Upload(path.Join("model_requests", name), "application/json", data); err != nil {
		log.Printf("mirror upload %s failed: %v", name, err)
	}
}
