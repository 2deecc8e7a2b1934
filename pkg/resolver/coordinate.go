package resolver

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"
)

// Coordinate identifies a single artifact in a Maven-layout repository
type Coordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string
	Extension  string
}

// ParseCoordinate parses group:artifact:version[:classifier][@ext]. Only pinned versions are accepted.
func ParseCoordinate(raw string) (Coordinate, error) {
	var c Coordinate

	spec := strings.TrimSpace(raw)
	if pos := strings.LastIndex(spec, "@"); pos > -1 {
		c.Extension = spec[pos+1:]
		spec = spec[:pos]
		if c.Extension == "" {
			return c, eris.Errorf("coordinate %s has an empty extension", raw)
		}
	} else {
		c.Extension = "jar"
	}

	parts := strings.Split(spec, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return c, eris.Errorf("coordinate %s must have the form group:artifact:version[:classifier][@ext]", raw)
	}

	for idx, part := range parts {
		if part == "" {
			return c, eris.Errorf("coordinate %s has an empty segment at position %d", raw, idx+1)
		}
	}

	c.Group = parts[0]
	c.Artifact = parts[1]
	c.Version = parts[2]
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}

	err := checkPinned(c.Version)
	if err != nil {
		return c, eris.Wrapf(err, "invalid coordinate %s", raw)
	}

	return c, nil
}

// Maven accepts free-form version literals like 5.6.15.Final or r09
var mavenVersion = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func checkPinned(version string) error {
	if strings.ContainsAny(version, "+[](),") || strings.HasPrefix(version, "latest.") {
		return eris.Errorf("version %s is dynamic, only pinned versions are supported", version)
	}

	if !mavenVersion.MatchString(version) {
		return eris.Errorf("version %s contains characters which aren't valid in a Maven version", version)
	}

	return nil
}

// NewerVersion returns the higher of two pinned versions. The second result is false if either
// version can't be compared as a semantic version.
func NewerVersion(a, b string) (string, bool) {
	va, err := semver.NewVersion(a)
	if err != nil {
		return "", false
	}

	vb, err := semver.NewVersion(b)
	if err != nil {
		return "", false
	}

	if vb.GreaterThan(va) {
		return b, true
	}
	return a, true
}

// String returns the canonical notation of the coordinate
func (c Coordinate) String() string {
	result := c.Group + ":" + c.Artifact + ":" + c.Version
	if c.Classifier != "" {
		result += ":" + c.Classifier
	}
	if c.Extension != "" && c.Extension != "jar" {
		result += "@" + c.Extension
	}
	return result
}

// Key identifies the coordinate independent of its version
func (c Coordinate) Key() string {
	return c.Group + ":" + c.Artifact
}

// FileName returns the artifact's file name as published in a Maven repository
func (c Coordinate) FileName() string {
	name := c.Artifact + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}

	ext := c.Extension
	if ext == "" {
		ext = "jar"
	}
	return fmt.Sprintf("%s.%s", name, ext)
}

// Dir returns the slash separated directory of the artifact relative to the repository root
func (c Coordinate) Dir() string {
	return path.Join(strings.ReplaceAll(c.Group, ".", "/"), c.Artifact, c.Version)
}

// Path returns the slash separated location of the artifact relative to the repository root
func (c Coordinate) Path() string {
	return path.Join(c.Dir(), c.FileName())
}
