package buildsys

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
}

// Fingerprint hashes everything the evaluation of project depended on: the passed options, the content of
// every script and YAML file it read, the existence of probed paths and the environment variables it read.
func Fingerprint(project *Project, options map[string]string) (string, error) {
	hasher := sha256.New()
	write := func(parts ...string) {
		for _, part := range parts {
			hasher.Write([]byte(part))
			hasher.Write([]byte{0})
		}
	}

	write("root", project.Root, "script", project.Script)

	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		write("option", key, options[key])
	}

	for _, input := range project.Inputs {
		write("input", input)

		handle, err := os.Open(input)
		if err != nil {
			return "", eris.Wrapf(err, "failed to open %s", input)
		}

		_, err = io.Copy(hasher, handle)
		handle.Close()
		if err != nil {
			return "", eris.Wrapf(err, "failed to read %s", input)
		}
	}

	for _, probe := range project.Probes {
		state := "missing"
		info, err := os.Stat(probe)
		if err == nil {
			if info.IsDir() {
				state = "dir"
			} else {
				state = "file"
			}
		}
		write("probe", probe, state)
	}

	for _, key := range project.EnvKeys {
		value, present := os.LookupEnv(key)
		if !present {
			value = "\x00unset"
		}
		write("env", key, value)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// WriteCache stores an evaluated project together with its fingerprint
func WriteCache(file, fingerprint string, project *Project) error {
	err := os.MkdirAll(filepath.Dir(file), 0o770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", filepath.Dir(file))
	}

	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", file)
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(fingerprint)
	if err != nil {
		return eris.Wrap(err, "failed to encode fingerprint")
	}

	err = encoder.Encode(project)
	if err != nil {
		return eris.Wrap(err, "failed to encode project")
	}

	return nil
}

// ReadCache loads a project stored by WriteCache
func ReadCache(file string) (string, *Project, error) {
	handle, err := os.Open(file)
	if err != nil {
		return "", nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var fingerprint string
	err = decoder.Decode(&fingerprint)
	if err != nil {
		return "", nil, eris.Wrap(err, "failed to decode fingerprint")
	}

	result := new(Project)
	err = decoder.Decode(result)
	if err != nil {
		return fingerprint, nil, eris.Wrap(err, "failed to decode project")
	}

	return fingerprint, result, nil
}

// Load returns the cached evaluation result for the given project if nothing it depended on changed.
// Otherwise the build scripts are evaluated again and the cache is updated. An empty cacheFile disables
// the cache.
func Load(ctx context.Context, projectRoot, scriptName string, options map[string]string, cacheFile string) (*Project, error) {
	if cacheFile != "" {
		root, err := filepath.Abs(projectRoot)
		if err != nil {
			return nil, err
		}

		fingerprint, cached, err := ReadCache(cacheFile)
		if err == nil && cached.Root == root && cached.Script == scriptName {
			current, err := Fingerprint(cached, options)
			if err == nil && current == fingerprint {
				log(ctx).Debug().Str("cache", cacheFile).Msg("using cached evaluation")
				return cached, nil
			}
		} else if err != nil && !eris.Is(err, os.ErrNotExist) {
			log(ctx).Warn().Err(err).Str("cache", cacheFile).Msg("ignoring broken cache")
		}
	}

	project, err := Evaluate(ctx, projectRoot, scriptName, options)
	if err != nil {
		return nil, err
	}

	if cacheFile != "" && !project.Uncacheable {
		fingerprint, err := Fingerprint(project, options)
		if err != nil {
			return nil, err
		}

		err = WriteCache(cacheFile, fingerprint, project)
		if err != nil {
			log(ctx).Warn().Err(err).Msg("failed to write the evaluation cache")
		}
	}

	return project, nil
}
