// Package storage mirrors saved documents and recordings to a Supabase bucket.
package storage

import (
	"bytes"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Supabase uploads objects into a single bucket. It satisfies the stores'
// Mirror interface; callers treat failures as best-effort.
type Supabase struct {
	client *supabase.Client
	bucket string
}

func NewSupabase(cfg Config) (*Supabase, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Supabase{client: client, bucket: cfg.Bucket}, nil
}

// Upload writes body under objectKey, replacing any earlier version. Upsert
// matters here: aggregate documents are re-uploaded under the same key on
// every save.
func (s *Supabase) Upload(objectKey, contentType string, body []byte) error {
	upsert := true
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}
	_, err := s.client.Storage.UploadFile(s.bucket, objectKey, bytes.NewReader(body), opts)
	if err != nil {
		return fmt.Errorf("upload %s to bucket %s: %w", objectKey, s.bucket, err)
	}
	return nil
}
