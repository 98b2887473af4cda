package storage

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// Config holds Supabase storage settings for session-summary uploads.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Storage uploads session summaries to a Supabase storage bucket. It
// satisfies trainer.SummaryStore.
type Storage struct {
	client *supabase.Client
	bucket string
}

// New constructs the storage client. Returns an error instead of a client
// when Supabase is not configured, so callers can run without persistence.
func New(config Config) (*Storage, error) {
	if config.URL == "" || config.ServiceRoleKey == "" {
		return nil, fmt.Errorf("supabase storage not configured")
	}
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &Storage{client: client, bucket: config.Bucket}, nil
}

// Upload writes one object to the bucket.
func (s *Storage) Upload(key, contentType string, data []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}
