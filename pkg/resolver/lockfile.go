package resolver

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LockEntry pins the checksum of a single coordinate
type LockEntry struct {
	Sha256     string `yaml:"sha256"`
	Repository string `yaml:"repository,omitempty"`
}

// Lockfile maps canonical coordinates to their pinned checksums
type Lockfile struct {
	Artifacts map[string]LockEntry `yaml:"artifacts"`
}

// ReadLockfile loads the given lockfile. A missing file results in an empty lockfile.
func ReadLockfile(file string) (*Lockfile, error) {
	lock := &Lockfile{Artifacts: map[string]LockEntry{}}

	data, err := os.ReadFile(file)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return lock, nil
		}
		return nil, eris.Wrapf(err, "could not open file %s", file)
	}

	err = yaml.Unmarshal(data, lock)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", file)
	}

	if lock.Artifacts == nil {
		lock.Artifacts = map[string]LockEntry{}
	}
	return lock, nil
}

// Write stores the lockfile, artifacts are sorted by coordinate
func (l *Lockfile) Write(file string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return eris.Wrap(err, "failed to encode lockfile")
	}

	err = os.WriteFile(file, data, 0660)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", file)
	}
	return nil
}
