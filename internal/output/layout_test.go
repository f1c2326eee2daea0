package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"

	"bidsfs/internal/bids"
	"bidsfs/internal/fsversion"
	"bidsfs/internal/prov"
)

func unit(subject, session string) bids.ProcessingUnit {
	shape := bids.ShapeSingleSession
	if session != "" {
		shape = bids.ShapeMultiSession
	}
	return bids.ProcessingUnit{Subject: subject, Session: session, Shape: shape}
}

func TestTargetDirShapes(t *testing.T) {
	single := unit("01", "")
	multi := unit("02", "pre")

	require.Equal(t, filepath.Join("/out", "freesurfer", "sub-01"),
		TargetDir("/out", TreeFreeSurfer, single))
	require.Equal(t, filepath.Join("/out", "nidm", "sub-02", "ses-pre"),
		TargetDir("/out", TreeNIDM, multi))
}

// The freesurfer/ and nidm/ trees must place a unit under the same relative
// path; only the tree name differs.
func TestTargetDirTreesAgree(t *testing.T) {
	for _, u := range []bids.ProcessingUnit{unit("01", ""), unit("02", "pre")} {
		fs, err := filepath.Rel(filepath.Join("/out", TreeFreeSurfer), TargetDir("/out", TreeFreeSurfer, u))
		require.NoError(t, err)
		nidm, err := filepath.Rel(filepath.Join("/out", TreeNIDM), TargetDir("/out", TreeNIDM, u))
		require.NoError(t, err)
		require.Equal(t, fs, nidm)
	}
}

func TestWriteArtifactsCopiesTree(t *testing.T) {
	subjectsDir := t.TempDir()
	u := unit("01", "")
	src := filepath.Join(subjectsDir, u.ID())
	for _, rel := range []string{"mri/aseg.mgz", "stats/aseg.stats"} {
		path := filepath.Join(src, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(rel), 0o644))
	}

	w := &Writer{Root: t.TempDir()}
	copied, err := w.WriteArtifacts(u, subjectsDir, []string{"stats/aseg.stats", "mri/aseg.mgz"})
	require.NoError(t, err)
	require.Equal(t, []string{"mri/aseg.mgz", "stats/aseg.stats"}, copied)

	data, err := os.ReadFile(filepath.Join(TargetDir(w.Root, TreeFreeSurfer, u), "mri", "aseg.mgz"))
	require.NoError(t, err)
	require.Equal(t, "mri/aseg.mgz", string(data))
}

func TestWriteArtifactsMissingSourceFails(t *testing.T) {
	w := &Writer{Root: t.TempDir()}
	_, err := w.WriteArtifacts(unit("01", ""), t.TempDir(), []string{"mri/absent.mgz"})
	require.Error(t, err)
}

func TestWriteProvenancePlacesBothDocuments(t *testing.T) {
	w := &Writer{Root: t.TempDir()}
	u := unit("02", "pre")
	docs := &prov.Documents{JSONLD: []byte("{}\n"), Turtle: []byte("# ttl\n")}

	require.NoError(t, w.WriteProvenance(u, docs))

	dir := TargetDir(w.Root, TreeNIDM, u)
	for name, want := range map[string]string{FileJSONLD: "{}\n", FileTurtle: "# ttl\n"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.Equal(t, want, string(data))
	}
}

func TestWriteDatasetDescription(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "build-stamp.txt"), []byte("freesurfer-7.4.1"), 0o644))
	manifest := fsversion.Collect(fsversion.Options{
		FreeSurferHome: home,
		AppVersion:     "0.3.0",
		BuildInfo:      func() (*debug.BuildInfo, bool) { return nil, false },
	})

	w := &Writer{Root: t.TempDir()}
	require.NoError(t, w.WriteDatasetDescription(manifest))

	data, err := os.ReadFile(filepath.Join(w.Root, "dataset_description.json"))
	require.NoError(t, err)

	var desc struct {
		DatasetType string `json:"DatasetType"`
		GeneratedBy []struct {
			Name    string `json:"Name"`
			Version string `json:"Version"`
		} `json:"GeneratedBy"`
	}
	require.NoError(t, json.Unmarshal(data, &desc))
	require.Equal(t, "derivative", desc.DatasetType)
	require.Len(t, desc.GeneratedBy, 2)
	require.Equal(t, "FreeSurfer", desc.GeneratedBy[0].Name)
	require.Equal(t, "freesurfer-7.4.1", desc.GeneratedBy[0].Version)

	// A second run leaves the existing file alone.
	require.NoError(t, os.WriteFile(filepath.Join(w.Root, "dataset_description.json"), []byte("keep"), 0o644))
	require.NoError(t, w.WriteDatasetDescription(manifest))
	data, err = os.ReadFile(filepath.Join(w.Root, "dataset_description.json"))
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}

func TestWriteSummarySortsAndTotals(t *testing.T) {
	w := &Writer{Root: t.TempDir()}
	require.NoError(t, w.WriteSummary(Summary{
		Success:   2,
		Failure:   1,
		Skipped:   1,
		Succeeded: []string{"sub-02", "sub-01"},
		Failed:    []string{"sub-03"},
		Excluded:  []string{"sub-04"},
	}))

	data, err := os.ReadFile(filepath.Join(w.Root, "processing_summary.json"))
	require.NoError(t, err)

	var s Summary
	require.NoError(t, json.Unmarshal(data, &s))
	require.Equal(t, 4, s.Total)
	require.Equal(t, []string{"sub-01", "sub-02"}, s.Succeeded)
}

func TestProvenancePaths(t *testing.T) {
	w := &Writer{Root: t.TempDir()}
	docs := &prov.Documents{JSONLD: []byte("{}"), Turtle: []byte("#")}
	require.NoError(t, w.WriteProvenance(unit("02", "pre"), docs))
	require.NoError(t, w.WriteProvenance(unit("01", ""), docs))

	paths, err := w.ProvenancePaths()
	require.NoError(t, err)
	require.Equal(t, []string{
		"nidm/sub-01/prov.ttl",
		"nidm/sub-02/ses-pre/prov.ttl",
	}, paths)
}

func TestProvenancePathsEmptyTree(t *testing.T) {
	w := &Writer{Root: t.TempDir()}
	paths, err := w.ProvenancePaths()
	require.NoError(t, err)
	require.Empty(t, paths)
}
