package enhance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// defaultExt is used when the source URL has no recognizable extension.
const defaultExt = ".mp4"

// defaultMaxDownloadBytes caps a source download unless overridden.
const defaultMaxDownloadBytes int64 = 512 << 20

// ErrArtifactTooLarge is returned when a source exceeds the download limit.
var ErrArtifactTooLarge = errors.New("source artifact exceeds size limit")

// LocalArtifactStore downloads over HTTP and publishes into a directory that
// the server exposes under BaseURL.
type LocalArtifactStore struct {
	client    *http.Client
	publicDir string
	baseURL   string
	maxBytes  int64
}

// ArtifactOption customizes a LocalArtifactStore.
type ArtifactOption func(*LocalArtifactStore)

// WithMaxDownloadBytes caps how much of a source artifact Download accepts.
// Non-positive values keep the default.
func WithMaxDownloadBytes(n int64) ArtifactOption {
	return func(s *LocalArtifactStore) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

var _ ArtifactStore = (*LocalArtifactStore)(nil)

// NewLocalArtifactStore creates a store publishing into publicDir. A nil
// client selects http.DefaultClient.
func NewLocalArtifactStore(client *http.Client, publicDir, baseURL string, opts ...ArtifactOption) *LocalArtifactStore {
	if client == nil {
		client = http.DefaultClient
	}
	s := &LocalArtifactStore{
		client:    client,
		publicDir: publicDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxBytes:  defaultMaxDownloadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Download fetches rawURL into dir. Sources larger than the configured limit
// fail with ErrArtifactTooLarge and leave no file behind.
func (s *LocalArtifactStore) Download(ctx context.Context, rawURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid source url: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching source: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching source: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes declared, limit %d", ErrArtifactTooLarge, resp.ContentLength, s.maxBytes)
	}

	dst := filepath.Join(dir, "source"+extension(rawURL))
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("writing source: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if n > s.maxBytes {
		_ = os.Remove(dst)
		return "", fmt.Errorf("%w: limit %d bytes", ErrArtifactTooLarge, s.maxBytes)
	}
	return dst, nil
}

// Publish copies the file into the public directory under a fresh name and
// returns its URL. The file appears under its final name only once complete.
func (s *LocalArtifactStore) Publish(ctx context.Context, localPath string) (string, error) {
	if err := os.MkdirAll(s.publicDir, 0o755); err != nil {
		return "", err
	}

	name := uuid.New().String() + filepath.Ext(localPath)
	tmp, err := os.CreateTemp(s.publicDir, ".publish-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	src, err := os.Open(localPath)
	if err != nil {
		_ = tmp.Close()
		return "", err
	}
	defer func() { _ = src.Close() }()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.publicDir, name)); err != nil {
		return "", err
	}

	return s.baseURL + "/" + name, nil
}

func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 5 {
		return defaultExt
	}
	return ext
}
