//go:build integration

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

// Requires a reachable S3-compatible endpoint, e.g. a local MinIO:
//
//	docker run -p 9000:9000 minio/minio server /data
//
// Configure via DBKEEPER_TEST_S3_ENDPOINT, DBKEEPER_TEST_S3_BUCKET,
// DBKEEPER_TEST_S3_ACCESS_KEY, DBKEEPER_TEST_S3_SECRET_KEY.
func newS3TestProvider(t *testing.T) *Provider {
	t.Helper()
	endpoint := os.Getenv("DBKEEPER_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("DBKEEPER_TEST_S3_ENDPOINT not set")
	}
	p, err := NewProvider(Config{
		Backend: "s3",
		S3: S3Config{
			Endpoint:  endpoint,
			Bucket:    os.Getenv("DBKEEPER_TEST_S3_BUCKET"),
			AccessKey: os.Getenv("DBKEEPER_TEST_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("DBKEEPER_TEST_S3_SECRET_KEY"),
			Prefix:    fmt.Sprintf("dbkeeper-test-%d", time.Now().UnixNano()),
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p
}

func TestS3_Integration_RoundTrip(t *testing.T) {
	p := newS3TestProvider(t)
	ctx := context.Background()
	name := "itest_20240101000000.sql"

	payload := bytes.Repeat([]byte("s3 integration payload\n"), 50_000)

	w, err := p.CreateWriter(ctx, name)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	defer p.Delete(ctx, name)

	entries, err := p.ListWithOptions(ctx, ListOptions{LatestOnly: true})
	if err != nil {
		t.Fatalf("ListWithOptions: %v", err)
	}
	if entries[0].Name != name {
		t.Errorf("latest = %q, want %q", entries[0].Name, name)
	}
	if entries[0].Size != int64(len(payload)) {
		t.Errorf("listed size = %d, want %d", entries[0].Size, len(payload))
	}

	r, err := p.CreateReader(ctx, name)
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	got, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("round trip content mismatch")
	}

	s, err := p.CreateStream(ctx, name)
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	defer s.Close()
	chunk, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(chunk) != maxStreamChunk {
		t.Errorf("first chunk = %d bytes, want %d", len(chunk), maxStreamChunk)
	}
}

func TestS3_Integration_DeleteAndMissing(t *testing.T) {
	p := newS3TestProvider(t)
	ctx := context.Background()
	name := "gone_20240101000000.sql"

	w, err := p.CreateWriter(ctx, name)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	io.WriteString(w, "short lived")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Delete(ctx, name); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = p.CreateReader(ctx, name)
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError for deleted object, got %v", err)
	}
}
