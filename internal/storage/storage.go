package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore keeps generated report PDFs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ReportKey returns a fresh object key for a user's report.
func ReportKey(userID string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("reports/%s/%d/%02d/%02d/%s.pdf", userID, at.Year(), at.Month(), at.Day(), uuid.New())
}
