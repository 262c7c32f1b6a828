package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/config"
	"github.com/fluxbase-eu/islet/internal/observability"
)

// ManifestStore persists build manifests under a fixed "latest" key, keeping a
// copy of each build next to it keyed by build id.
type ManifestStore struct {
	provider Provider
	key      string
	metrics  *observability.Metrics
}

// NewManifestStore creates a store writing the latest manifest to key
func NewManifestStore(provider Provider, key string, metrics *observability.Metrics) *ManifestStore {
	return &ManifestStore{provider: provider, key: key, metrics: metrics}
}

// Provider returns the underlying storage provider
func (s *ManifestStore) Provider() Provider {
	return s.provider
}

// BuildKey is where the manifest of one build is kept
func (s *ManifestStore) BuildKey(buildID string) string {
	return path.Join(path.Dir(s.key), "builds", buildID+".json")
}

// Save writes the manifest under its build key and then under the latest key
func (s *ManifestStore) Save(ctx context.Context, manifest *assets.BuildManifest) (err error) {
	ctx, span := observability.StartStorageSpan(ctx, "save", s.provider.Name(), s.key)
	start := time.Now()
	defer func() {
		observability.EndSpan(span, err)
		s.record("save", start, err)
	}()

	data, err := manifest.Marshal()
	if err != nil {
		return err
	}

	opts := &UploadOptions{ContentType: "application/json", CacheControl: "no-cache"}
	for _, key := range []string{s.BuildKey(manifest.BuildID), s.key} {
		if _, err = s.provider.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
			return fmt.Errorf("failed to store build manifest: %w", err)
		}
	}
	return nil
}

// Load reads the latest manifest; ErrNotFound when nothing was built yet
func (s *ManifestStore) Load(ctx context.Context) (*assets.BuildManifest, error) {
	return s.load(ctx, s.key)
}

// LoadBuild reads the manifest of a specific build
func (s *ManifestStore) LoadBuild(ctx context.Context, buildID string) (*assets.BuildManifest, error) {
	return s.load(ctx, s.BuildKey(buildID))
}

func (s *ManifestStore) load(ctx context.Context, key string) (manifest *assets.BuildManifest, err error) {
	ctx, span := observability.StartStorageSpan(ctx, "load", s.provider.Name(), key)
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			observability.EndSpan(span, nil)
			s.record("load", start, nil)
			return
		}
		observability.EndSpan(span, err)
		s.record("load", start, err)
	}()

	reader, _, err := s.provider.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read build manifest: %w", err)
	}

	return assets.ParseBuildManifest(data)
}

// Builds lists the stored per-build manifests
func (s *ManifestStore) Builds(ctx context.Context) ([]Object, error) {
	return s.provider.List(ctx, path.Join(path.Dir(s.key), "builds")+"/")
}

func (s *ManifestStore) record(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(operation, time.Since(start), err)
	}
}

// NewProvider creates the storage provider selected by configuration
func NewProvider(ctx context.Context, cfg *config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalStorage(cfg.LocalPath)
	case "s3":
		s3, err := NewS3Storage(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Region, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			return nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
