// Package fsversion assembles the per-run manifest of software versions that
// provenance reporting attributes work to.
//
// Collection is best-effort: any single source that cannot be read downgrades
// that entry to "unknown" instead of failing the manifest. Version reporting
// must never block the pipeline.
package fsversion

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
)

// Unknown is the placeholder version for an unreadable source.
const Unknown = "unknown"

// Component names with a fixed identity in the manifest.
const (
	ComponentFreeSurfer = "freesurfer"
	ComponentApp        = "bidsfs"
	ComponentGo         = "go"
)

// Module dependencies considered provenance-relevant. Anything else in the
// build info is noise for attribution purposes.
var provenanceDeps = map[string]string{
	"github.com/google/uuid":              "uuid",
	"github.com/pelletier/go-toml/v2":     "go-toml",
	"github.com/prometheus/client_golang": "prometheus-client",
	"github.com/rs/zerolog":               "zerolog",
}

// Entry is one (component, version) pair of the manifest.
type Entry struct {
	Component string
	Version   string
}

// Manifest is an immutable snapshot of component versions for one run.
//
// It is built exactly once, before the first provenance graph is assembled,
// and passed by value afterwards; it is never a mutable global.
type Manifest struct {
	entries map[string]string
}

// Version returns the recorded version for a component, or Unknown.
func (m Manifest) Version(component string) string {
	if v, ok := m.entries[component]; ok {
		return v
	}
	return Unknown
}

// Entries returns all manifest entries sorted by component name.
func (m Manifest) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for c, v := range m.entries {
		out = append(out, Entry{Component: c, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// Len reports the number of components in the manifest.
func (m Manifest) Len() int { return len(m.entries) }

// Options configures collection. Zero values fall back to the process
// environment and build metadata.
type Options struct {
	// FreeSurferHome overrides $FREESURFER_HOME for locating build-stamp.txt.
	FreeSurferHome string

	// AppVersion is the application's own declared version (ldflags-injected
	// by the build; Unknown when absent).
	AppVersion string

	// BuildInfo overrides the runtime build info lookup (tests only).
	BuildInfo func() (*debug.BuildInfo, bool)
}

// Collect builds a fresh Manifest. It is called once per run, not once per
// subject, since the underlying software cannot change mid-run but can
// change between runs of a long-lived service.
func Collect(opts Options) Manifest {
	entries := map[string]string{
		ComponentFreeSurfer: freesurferVersion(opts.FreeSurferHome),
		ComponentApp:        orUnknown(opts.AppVersion),
		ComponentGo:         orUnknown(runtime.Version()),
	}

	readInfo := opts.BuildInfo
	if readInfo == nil {
		readInfo = debug.ReadBuildInfo
	}
	if info, ok := readInfo(); ok && info != nil {
		for _, dep := range info.Deps {
			name, relevant := provenanceDeps[dep.Path]
			if !relevant {
				continue
			}
			entries[name] = orUnknown(dep.Version)
		}
	}
	// Deps absent from build info still appear, as unknown.
	for _, name := range provenanceDeps {
		if _, ok := entries[name]; !ok {
			entries[name] = Unknown
		}
	}

	return Manifest{entries: entries}
}

// freesurferVersion reads the embedded version identifier from the
// FreeSurfer installation's build stamp, e.g.
// "freesurfer-linux-ubuntu22_x86_64-7.4.1-20230614-7eb8460".
func freesurferVersion(home string) string {
	if home == "" {
		home = os.Getenv("FREESURFER_HOME")
	}
	if home == "" {
		return Unknown
	}
	raw, err := os.ReadFile(filepath.Join(home, "build-stamp.txt"))
	if err != nil {
		return Unknown
	}
	stamp := strings.TrimSpace(string(raw))
	if stamp == "" {
		return Unknown
	}
	return stamp
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return Unknown
	}
	return v
}
