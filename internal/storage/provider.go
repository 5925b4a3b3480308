package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	// Backend is "local" or "s3". Empty defaults to local.
	Backend string `yaml:"backend"`
	// Path is the root directory for the local backend.
	Path string `yaml:"path"`
	// S3 holds S3-compatible backend settings.
	S3 S3Config `yaml:"s3"`
}

// S3Config parameterizes an S3-compatible backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Provider layers artifact listing, streaming transfer, and retention
// on top of a backend Operator. The backend is fixed at construction.
type Provider struct {
	op     Operator
	logger *slog.Logger
	now    func() time.Time
}

// NewProvider builds a Provider for the configured backend.
func NewProvider(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		op  Operator
		err error
	)
	switch cfg.Backend {
	case "", "local", "fs":
		op, err = newLocalOperator(cfg.Path)
	case "s3":
		op, err = newS3Operator(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return &Provider{op: op, logger: logger, now: time.Now}, nil
}

// NewProviderWithOperator builds a Provider over an explicit backend.
func NewProviderWithOperator(op Operator, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{op: op, logger: logger, now: time.Now}
}

// List returns all stored artifacts, newest first.
func (p *Provider) List(ctx context.Context) ([]Entry, error) {
	return p.ListWithOptions(ctx, ListOptions{})
}

// ListWithOptions lists stored artifacts newest first, judged by the
// timestamp embedded in each name. Entries without a parsable
// timestamp sort last and are never reported as the latest.
func (p *Provider) ListWithOptions(ctx context.Context, opts ListOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	raw, err := p.op.List(ctx, limit)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	entries := raw[:0]
	for _, e := range raw {
		if e.IsFile {
			entries = append(entries, e)
		}
	}

	stamps := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if ts, err := ExtractTimestamp(e.Name); err == nil {
			stamps[e.Path] = ts
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ti, iok := stamps[entries[i].Path]
		tj, jok := stamps[entries[j].Path]
		if iok != jok {
			return iok
		}
		return ti.After(tj)
	})

	if opts.LatestOnly {
		if len(entries) == 0 {
			return nil, &StorageError{Op: "list", Err: ErrNoEntries}
		}
		if _, ok := stamps[entries[0].Path]; !ok {
			return nil, &StorageError{Op: "list", Err: ErrNoEntries}
		}
		entries = entries[:1]
	}
	return entries, nil
}

// CreateWriter returns a sink that persists everything written to it
// as the named object. The object is complete once Close returns nil.
func (p *Provider) CreateWriter(ctx context.Context, name string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &pipedWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		err := p.op.Write(ctx, name, pr)
		if err != nil {
			err = &StorageError{Op: "write", Path: name, Err: err}
		}
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

type pipedWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *pipedWriter) Write(b []byte) (int, error) { return w.pw.Write(b) }

// Close seals the object and reports the backend write result.
func (w *pipedWriter) Close() error {
	w.pw.Close()
	return <-w.done
}

// CreateReader opens the named object for full sequential reading.
func (p *Provider) CreateReader(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := p.op.Open(ctx, name)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: name, Err: err}
	}
	return r, nil
}

// Stat fetches metadata for the named object.
func (p *Provider) Stat(ctx context.Context, name string) (Entry, error) {
	e, err := p.op.Stat(ctx, name)
	if err != nil {
		return Entry{}, &StorageError{Op: "stat", Path: name, Err: err}
	}
	return e, nil
}

// CreateStream opens a chunked, range-addressable read over the named
// object for partial consumption.
func (p *Provider) CreateStream(ctx context.Context, name string) (*ChunkedStream, error) {
	e, err := p.op.Stat(ctx, name)
	if err != nil {
		return nil, &StorageError{Op: "stat", Path: name, Err: err}
	}
	r, err := p.op.Open(ctx, name)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: name, Err: err}
	}
	return newChunkedStream(r, e.Size), nil
}

// Delete removes one object by path.
func (p *Provider) Delete(ctx context.Context, name string) error {
	if err := p.op.Delete(ctx, name); err != nil {
		return &StorageError{Op: "delete", Path: name, Err: err}
	}
	return nil
}

// Cleanup deletes artifacts whose embedded timestamp falls before the
// retention cutoff, and reports how many objects and bytes were (or
// with dryRun, would be) removed. The newest artifact is always kept,
// and entries without a parsable timestamp are skipped with a warning.
func (p *Provider) Cleanup(ctx context.Context, retentionDays int, dryRun bool) (int, int64, error) {
	entries, err := p.ListWithOptions(ctx, ListOptions{})
	if err != nil {
		return 0, 0, err
	}
	cutoff := p.now().UTC().AddDate(0, 0, -retentionDays)

	var latest string
	for _, e := range entries {
		if _, err := ExtractTimestamp(e.Name); err == nil {
			latest = e.Path
			break
		}
	}

	var (
		count int
		bytes int64
	)
	for _, e := range entries {
		ts, err := ExtractTimestamp(e.Name)
		if err != nil {
			p.logger.Warn("skipping entry without embedded timestamp", "path", e.Path)
			continue
		}
		if e.Path == latest || !ts.Before(cutoff) {
			continue
		}
		count++
		bytes += e.Size
		if dryRun {
			continue
		}
		if err := p.Delete(ctx, e.Path); err != nil {
			return count, bytes, err
		}
		p.logger.Info("deleted expired backup", "path", e.Path, "size", e.Size)
	}
	return count, bytes, nil
}

// Test verifies the backend is reachable by performing a listing.
func (p *Provider) Test(ctx context.Context) error {
	if _, err := p.op.List(ctx, 1); err != nil {
		return &StorageError{Op: "test", Err: err}
	}
	return nil
}
