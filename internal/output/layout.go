// Package output places serialized provenance and pipeline-produced
// artifacts into the standardized derivative tree.
//
// The shape-dependent target path is computed by exactly one function,
// TargetDir, consumed by both the freesurfer/ and nidm/ writers; the two
// trees can therefore never disagree about a unit's location.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bidsfs/internal/bids"
	"bidsfs/internal/fsversion"
	"bidsfs/internal/prov"
)

// Tree names under the output root.
const (
	TreeFreeSurfer = "freesurfer"
	TreeNIDM       = "nidm"
)

// Provenance document file names.
const (
	FileJSONLD = "prov.jsonld"
	FileTurtle = "prov.ttl"
)

// TargetDir is the deterministic target directory for a unit within one
// output tree: <root>/<tree>/sub-<label>[/ses-<label>].
//
// The session segment appears exactly when the unit's shape is
// multi-session; callers never re-derive the shape.
func TargetDir(root, tree string, unit bids.ProcessingUnit) string {
	return filepath.Join(root, tree, unit.RelDir())
}

// Writer materializes one run's output tree.
type Writer struct {
	Root string
}

// WriteArtifacts copies a unit's produced files from the FreeSurfer
// subjects directory into the freesurfer/ tree, preserving the
// mri/stats/surf substructure. It returns the copied paths relative to the
// unit's target directory, sorted.
func (w *Writer) WriteArtifacts(unit bids.ProcessingUnit, subjectsDir string, outputs []string) ([]string, error) {
	target := TargetDir(w.Root, TreeFreeSurfer, unit)
	srcRoot := filepath.Join(subjectsDir, unit.ID())

	copied := make([]string, 0, len(outputs))
	for _, rel := range outputs {
		dest := filepath.Join(target, filepath.FromSlash(rel))
		if err := copyFile(filepath.Join(srcRoot, filepath.FromSlash(rel)), dest); err != nil {
			return nil, fmt.Errorf("copying artifact %s for %s: %w", rel, unit.ID(), err)
		}
		copied = append(copied, rel)
	}
	sort.Strings(copied)
	return copied, nil
}

// WriteProvenance places both serialized documents in the nidm/ tree.
func (w *Writer) WriteProvenance(unit bids.ProcessingUnit, docs *prov.Documents) error {
	target := TargetDir(w.Root, TreeNIDM, unit)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating nidm directory for %s: %w", unit.ID(), err)
	}
	if err := os.WriteFile(filepath.Join(target, FileJSONLD), docs.JSONLD, 0o644); err != nil {
		return fmt.Errorf("writing %s for %s: %w", FileJSONLD, unit.ID(), err)
	}
	if err := os.WriteFile(filepath.Join(target, FileTurtle), docs.Turtle, 0o644); err != nil {
		return fmt.Errorf("writing %s for %s: %w", FileTurtle, unit.ID(), err)
	}
	return nil
}

// WriteDatasetDescription writes the derivative dataset_description.json
// once per run, attributing the dataset to the collected tool versions.
// An existing file is left untouched.
func (w *Writer) WriteDatasetDescription(manifest fsversion.Manifest) error {
	path := filepath.Join(w.Root, "dataset_description.json")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	desc := map[string]any{
		"Name":        "FreeSurfer Derivatives",
		"BIDSVersion": "1.8.0",
		"DatasetType": "derivative",
		"GeneratedBy": []map[string]string{
			{
				"Name":        "FreeSurfer",
				"Version":     manifest.Version(fsversion.ComponentFreeSurfer),
				"Description": "FreeSurfer cortical reconstruction and parcellation",
			},
			{
				"Name":        "bidsfs",
				"Version":     manifest.Version(fsversion.ComponentApp),
				"Description": "BIDS App for FreeSurfer with NIDM provenance output",
			},
		},
	}
	return writeJSON(path, desc)
}

// WriteReadme writes the derivative README once per run.
func (w *Writer) WriteReadme() error {
	path := filepath.Join(w.Root, "README")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	const readme = `FreeSurfer Derivatives
====================

This directory contains FreeSurfer derivatives organized according to the
BIDS specification, alongside NIDM provenance documents:
- freesurfer/: per-subject mri, stats, and surf outputs
- nidm/: per-subject provenance as JSON-LD and Turtle

For more information about FreeSurfer, visit: http://surfer.nmr.mgh.harvard.edu/
`
	return os.WriteFile(path, []byte(readme), 0o644)
}

// Summary is the run-level processing report.
type Summary struct {
	Total     int      `json:"total"`
	Success   int      `json:"success"`
	Failure   int      `json:"failure"`
	Skipped   int      `json:"skipped"`
	Succeeded []string `json:"success_list"`
	Failed    []string `json:"failure_list"`
	Excluded  []string `json:"skipped_list"`
}

// WriteSummary persists the processing summary at the output root.
func (w *Writer) WriteSummary(s Summary) error {
	sort.Strings(s.Succeeded)
	sort.Strings(s.Failed)
	sort.Strings(s.Excluded)
	s.Total = s.Success + s.Failure + s.Skipped
	return writeJSON(filepath.Join(w.Root, "processing_summary.json"), s)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ProvenancePaths lists the nidm/ documents already written for a run,
// relative to the output root, sorted. Used by group-level aggregation.
func (w *Writer) ProvenancePaths() ([]string, error) {
	var paths []string
	root := filepath.Join(w.Root, TreeNIDM)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, FileTurtle) {
			return nil
		}
		rel, err := filepath.Rel(w.Root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
