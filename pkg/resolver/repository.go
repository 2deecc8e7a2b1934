package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	GoogleURL       = "https://dl.google.com/dl/android/maven2"
	MavenCentralURL = "https://repo.maven.apache.org/maven2"
)

// Repository is a location from which pinned artifacts can be fetched
type Repository interface {
	Name() string
	// Locate returns the location of the artifact or an error wrapping ErrNotFound
	Locate(ctx context.Context, c Coordinate) (string, error)
	// Open returns a reader for a location previously returned by Locate and the content length (-1 if unknown)
	Open(ctx context.Context, location string) (io.ReadCloser, int64, error)
}

// MavenRepository fetches artifacts from a remote Maven-layout repository over HTTP(S)
type MavenRepository struct {
	RepoName  string
	URL       string
	Client    *http.Client
	UserAgent string
}

var _ Repository = (*MavenRepository)(nil)

// NewMavenRepository creates a remote repository with a default HTTP client
func NewMavenRepository(name, url string) *MavenRepository {
	return &MavenRepository{
		RepoName: name,
		URL:      strings.TrimRight(url, "/"),
		Client: &http.Client{
			Timeout: time.Minute * 30,
		},
	}
}

func (r *MavenRepository) Name() string {
	return r.RepoName
}

func (r *MavenRepository) String() string {
	return fmt.Sprintf("%s (%s)", r.RepoName, r.URL)
}

func (r *MavenRepository) client() *http.Client {
	if r.Client == nil {
		return http.DefaultClient
	}
	return r.Client
}

func (r *MavenRepository) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to build request for %s", url)
	}

	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	return req, nil
}

func (r *MavenRepository) Locate(ctx context.Context, c Coordinate) (string, error) {
	url := strings.TrimRight(r.URL, "/") + "/" + c.Path()
	req, err := r.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return "", err
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "failed to query %s", url)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", eris.Wrapf(ErrNotFound, "%s returned %d", url, resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return url, nil
	default:
		return "", eris.Errorf("%s returned unexpected status %s", url, resp.Status)
	}
}

func (r *MavenRepository) Open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	req, err := r.newRequest(ctx, http.MethodGet, location)
	if err != nil {
		return nil, 0, err
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "failed to start download for %s", location)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, eris.Errorf("download of %s failed with status %s", location, resp.Status)
	}

	return resp.Body, resp.ContentLength, nil
}

// LocalRepository reads artifacts from a Maven-layout directory on disk (i.e. ~/.m2/repository)
type LocalRepository struct {
	RepoName string
	Dir      string
}

var _ Repository = (*LocalRepository)(nil)

// DefaultLocalDir returns the location of the user's local Maven repository
func DefaultLocalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".m2", "repository")
	}
	return filepath.Join(home, ".m2", "repository")
}

func (r *LocalRepository) Name() string {
	return r.RepoName
}

func (r *LocalRepository) String() string {
	return fmt.Sprintf("%s (%s)", r.RepoName, r.Dir)
}

func (r *LocalRepository) Locate(ctx context.Context, c Coordinate) (string, error) {
	location := filepath.Join(r.Dir, filepath.FromSlash(c.Path()))
	info, err := os.Stat(location)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(ErrNotFound, "%s does not exist", location)
		}
		return "", eris.Wrapf(err, "failed to check %s", location)
	}

	if !info.Mode().IsRegular() {
		return "", eris.Errorf("%s is not a regular file", location)
	}
	return location, nil
}

func (r *LocalRepository) Open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "failed to open %s", location)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, eris.Wrapf(err, "failed to stat %s", location)
	}
	return f, info.Size(), nil
}
