package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Artifact is a resolved coordinate stored in the local cache
type Artifact struct {
	Coordinate Coordinate
	Repository string
	Location   string
	File       string
	Sha256     string
	// Cached is true if the artifact was taken from the index without contacting any repository
	Cached bool
}

// Resolver resolves coordinates against an ordered list of repositories. The first repository containing
// a coordinate wins.
type Resolver struct {
	Repositories []Repository
	CacheDir     string
	// Index and Lock are optional
	Index *Index
	Lock  *Lockfile
	// Update replaces mismatching lock entries instead of failing
	Update bool
	// Quiet hides progress bars
	Quiet bool
}

func (r *Resolver) repoNames() []string {
	names := make([]string, len(r.Repositories))
	for idx, repo := range r.Repositories {
		names[idx] = repo.Name()
	}
	return names
}

func (r *Resolver) progressBar(length int64, desc string) *progressbar.ProgressBar {
	if r.Quiet || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

func (r *Resolver) pinned(c Coordinate) string {
	if r.Lock == nil {
		return ""
	}
	return r.Lock.Artifacts[c.String()].Sha256
}

// ResolveAll resolves every coordinate in order and stops at the first failure
func (r *Resolver) ResolveAll(ctx context.Context, coords []Coordinate) ([]Artifact, error) {
	result := make([]Artifact, 0, len(coords))
	for _, c := range coords {
		artifact, err := r.Resolve(ctx, c)
		if err != nil {
			return nil, err
		}

		result = append(result, artifact)
	}

	return result, nil
}

// Resolve fetches a single coordinate into the cache directory unless the index already knows about it
func (r *Resolver) Resolve(ctx context.Context, c Coordinate) (Artifact, error) {
	logger := zerolog.Ctx(ctx)

	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	if artifact, ok := r.fromIndex(ctx, c); ok {
		logger.Debug().Str("coordinate", c.String()).Msg("already resolved")
		return artifact, nil
	}

	for _, repo := range r.Repositories {
		location, err := repo.Locate(ctx, c)
		if err != nil {
			if eris.Is(err, ErrNotFound) {
				logger.Debug().
					Str("coordinate", c.String()).
					Str("repository", repo.Name()).
					Msg("not found")
				continue
			}

			return Artifact{}, ResolutionError{
				Coordinate:   c,
				Repositories: r.repoNames(),
				Err:          eris.Wrapf(err, "repository %s failed", repo.Name()),
			}
		}

		logger.Info().
			Str("coordinate", c.String()).
			Str("repository", repo.Name()).
			Msg("resolved")

		artifact, err := r.download(ctx, repo, location, c)
		if err != nil {
			return Artifact{}, err
		}
		return artifact, nil
	}

	return Artifact{}, ResolutionError{
		Coordinate:   c,
		Repositories: r.repoNames(),
		Err:          ErrNotFound,
	}
}

func (r *Resolver) fromIndex(ctx context.Context, c Coordinate) (Artifact, bool) {
	if r.Index == nil {
		return Artifact{}, false
	}

	entry, found, err := r.Index.Get(c)
	if err != nil || !found {
		return Artifact{}, false
	}

	pin := r.pinned(c)
	_, statErr := os.Stat(entry.File)
	if (pin != "" && pin != entry.Sha256) || statErr != nil {
		// stale entry, the next download replaces it
		err = r.Index.Delete(c)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("coordinate", c.String()).Msg("failed to drop stale index entry")
		}
		return Artifact{}, false
	}

	return Artifact{
		Coordinate: c,
		Repository: entry.Repository,
		Location:   entry.Location,
		File:       entry.File,
		Sha256:     entry.Sha256,
		Cached:     true,
	}, true
}

func (r *Resolver) download(ctx context.Context, repo Repository, location string, c Coordinate) (Artifact, error) {
	destDir := filepath.Join(r.CacheDir, filepath.FromSlash(c.Dir()))
	err := os.MkdirAll(destDir, 0770)
	if err != nil {
		return Artifact{}, eris.Wrapf(err, "failed to create directory %s", destDir)
	}

	reader, length, err := repo.Open(ctx, location)
	if err != nil {
		return Artifact{}, ResolutionError{Coordinate: c, Repositories: r.repoNames(), Err: err}
	}
	defer reader.Close()

	dest := filepath.Join(destDir, c.FileName())
	tmpHandle, err := os.CreateTemp(destDir, ".download-*")
	if err != nil {
		return Artifact{}, eris.Wrapf(err, "failed to create temporary file in %s", destDir)
	}
	tmpName := tmpHandle.Name()
	defer func() {
		tmpHandle.Close()
		os.Remove(tmpName)
	}()

	hash := sha256.New()
	bar := r.progressBar(length, "     "+c.FileName())
	_, err = io.Copy(io.MultiWriter(tmpHandle, hash, bar), reader)
	if err != nil {
		return Artifact{}, eris.Wrapf(err, "failed during download of %s", location)
	}
	bar.Finish()

	digest := hex.EncodeToString(hash.Sum(nil))
	pin := r.pinned(c)
	if pin != "" && pin != digest {
		if !r.Update {
			return Artifact{}, ChecksumError{Coordinate: c, Expected: pin, Actual: digest}
		}

		zerolog.Ctx(ctx).Warn().
			Str("coordinate", c.String()).
			Msg("updating checksum")
	}

	if r.Lock != nil {
		r.Lock.Artifacts[c.String()] = LockEntry{Sha256: digest, Repository: repo.Name()}
	}

	err = tmpHandle.Close()
	if err != nil {
		return Artifact{}, eris.Wrapf(err, "failed to write %s", tmpName)
	}

	err = os.Rename(tmpName, dest)
	if err != nil {
		return Artifact{}, eris.Wrapf(err, "failed to move download to %s", dest)
	}

	artifact := Artifact{
		Coordinate: c,
		Repository: repo.Name(),
		Location:   location,
		File:       dest,
		Sha256:     digest,
	}

	if r.Index != nil {
		err = r.Index.Put(IndexEntry{
			Coordinate: c.String(),
			Repository: repo.Name(),
			Location:   location,
			File:       dest,
			Sha256:     digest,
			Resolved:   time.Now(),
		})
		if err != nil {
			return Artifact{}, err
		}
	}

	return artifact, nil
}
