package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// GetProjectRoot searches the given directory and its parents for the outermost directory containing
// scriptName. Subproject scripts share the name of the root script so the search doesn't stop at the first
// match.
func GetProjectRoot(start, scriptName string) (string, error) {
	path, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", start)
	}

	root := ""
	for {
		scriptPath := filepath.Join(path, scriptName)
		_, err := os.Stat(scriptPath)
		if err == nil {
			root = path
		} else if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrap(err, "error ocurred while searching for project root")
		}

		nextPath := filepath.Dir(path)
		if path == nextPath {
			break
		}
		path = nextPath
	}

	if root == "" {
		return "", eris.Errorf("no %s found in %s or any of its parents", scriptName, start)
	}
	return root, nil
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
