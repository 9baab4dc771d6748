//go:build integration

package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/salesdesk/salesdesk/internal/storage"
)

// The bucket must already hold SALESDESK_TEST_S3_KEY; the store never writes.
func TestStoreReadsSeededObjectFromMinIO(t *testing.T) {
	endpoint := envOr("SALESDESK_TEST_S3_ENDPOINT", "")
	key := envOr("SALESDESK_TEST_S3_KEY", "")
	if endpoint == "" || key == "" {
		t.Skip("SALESDESK_TEST_S3_ENDPOINT or SALESDESK_TEST_S3_KEY is not set")
	}

	cfg := Config{
		Endpoint:        endpoint,
		Region:          envOr("SALESDESK_TEST_S3_REGION", "us-east-1"),
		Bucket:          envOr("SALESDESK_TEST_S3_BUCKET", "salesdesk-it"),
		AccessKeyID:     envOr("SALESDESK_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey: envOr("SALESDESK_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:          envOr("SALESDESK_TEST_S3_PREFIX", ""),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stat, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("reader.Close() error = %v", err)
	}
	if int64(len(payload)) != stat.Size {
		t.Fatalf("Get() read %d bytes, Stat().Size = %d", len(payload), stat.Size)
	}

	if _, err := store.Stat(ctx, key+".missing"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat(missing) error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
