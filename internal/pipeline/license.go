package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveLicense locates the FreeSurfer license file.
//
// An explicitly provided path must exist; otherwise the standard locations
// are tried in order: $FS_LICENSE, /license.txt (container mount),
// $FREESURFER_HOME/license.txt, ~/.freesurfer.txt.
func ResolveLicense(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("freesurfer license not found at %s: %w", explicit, err)
		}
		return explicit, nil
	}

	var candidates []string
	if env := os.Getenv("FS_LICENSE"); env != "" {
		candidates = append(candidates, env)
	}
	candidates = append(candidates, "/license.txt")
	if home := os.Getenv("FREESURFER_HOME"); home != "" {
		candidates = append(candidates, filepath.Join(home, "license.txt"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".freesurfer.txt"))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("freesurfer license not found in standard locations; pass --freesurfer_license")
}
