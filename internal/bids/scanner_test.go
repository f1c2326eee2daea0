package bids

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeDataset materializes a minimal BIDS tree. Each entry maps a path
// relative to the root to empty file content.
func writeDataset(t *testing.T, files []string) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	return root
}

func TestScanSingleSessionLayout(t *testing.T) {
	root := writeDataset(t, []string{
		"sub-01/anat/sub-01_T1w.nii.gz",
		"sub-01/anat/sub-01_T2w.nii.gz",
		"sub-02/anat/sub-02_T1w.nii.gz",
	})

	ds, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, ds.Subjects, 2)
	require.Empty(t, ds.Excluded)

	require.Equal(t, "01", ds.Subjects[0].Label)
	require.Equal(t, "02", ds.Subjects[1].Label)

	ses := ds.Subjects[0].Sessions
	require.Len(t, ses, 1)
	require.Empty(t, ses[0].Label)
	require.Len(t, ses[0].T1w(), 1)
	require.Len(t, ses[0].T2w(), 1)

	require.Empty(t, ds.Subjects[1].Sessions[0].T2w())
}

func TestScanMultiSessionLayout(t *testing.T) {
	root := writeDataset(t, []string{
		"sub-01/ses-post/anat/sub-01_ses-post_T1w.nii.gz",
		"sub-01/ses-pre/anat/sub-01_ses-pre_T1w.nii.gz",
	})

	ds, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, ds.Subjects, 1)

	ses := ds.Subjects[0].Sessions
	require.Len(t, ses, 2)
	require.Equal(t, "post", ses[0].Label)
	require.Equal(t, "pre", ses[1].Label)
}

func TestScanOrderIsDeterministic(t *testing.T) {
	root := writeDataset(t, []string{
		"sub-zz/anat/sub-zz_T1w.nii",
		"sub-aa/anat/sub-aa_T1w.nii",
		"sub-mm/anat/sub-mm_T1w.nii",
	})

	first, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	second, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	require.Equal(t, first.Subjects, second.Subjects)

	labels := []string{first.Subjects[0].Label, first.Subjects[1].Label, first.Subjects[2].Label}
	require.Equal(t, []string{"aa", "mm", "zz"}, labels)
}

func TestScanParticipantFilterAcceptsPrefixedLabels(t *testing.T) {
	root := writeDataset(t, []string{
		"sub-01/anat/sub-01_T1w.nii.gz",
		"sub-02/anat/sub-02_T1w.nii.gz",
	})

	for _, label := range []string{"01", "sub-01"} {
		ds, err := Scan(root, ScanOptions{Participants: []string{label}})
		require.NoError(t, err, label)
		require.Len(t, ds.Subjects, 1)
		require.Equal(t, "01", ds.Subjects[0].Label)
	}
}

func TestScanSessionFilter(t *testing.T) {
	root := writeDataset(t, []string{
		"sub-01/ses-pre/anat/sub-01_ses-pre_T1w.nii.gz",
		"sub-01/ses-post/anat/sub-01_ses-post_T1w.nii.gz",
	})

	ds, err := Scan(root, ScanOptions{Sessions: []string{"ses-pre"}})
	require.NoError(t, err)
	require.Len(t, ds.Subjects, 1)
	require.Len(t, ds.Subjects[0].Sessions, 1)
	require.Equal(t, "pre", ds.Subjects[0].Sessions[0].Label)
}

func TestScanExcludesSubjectWithoutT1w(t *testing.T) {
	root := writeDataset(t, []string{
		"sub-01/anat/sub-01_T1w.nii.gz",
		"sub-02/anat/sub-02_T2w.nii.gz",
	})

	ds, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, ds.Subjects, 1)
	require.Len(t, ds.Excluded, 1)
	require.Equal(t, "02", ds.Excluded[0].Subject)
	require.ErrorIs(t, ds.Excluded[0].Reason, ErrNoT1w)

	var structural *DatasetStructureError
	require.ErrorAs(t, ds.Excluded[0].Reason, &structural)
}

func TestScanNoMatchingSubjectsIsDatasetError(t *testing.T) {
	root := writeDataset(t, []string{
		"sub-01/anat/sub-01_T1w.nii.gz",
	})

	_, err := Scan(root, ScanOptions{Participants: []string{"99"}})
	require.ErrorIs(t, err, ErrNoSubjects)

	var structural *DatasetStructureError
	require.ErrorAs(t, err, &structural)
	require.Empty(t, structural.Subject)
}

func TestScanIgnoresNonSubjectEntries(t *testing.T) {
	root := writeDataset(t, []string{
		"sub-01/anat/sub-01_T1w.nii.gz",
		"derivatives/sub-02/anat/sub-02_T1w.nii.gz",
		"dataset_description.json",
	})

	ds, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, ds.Subjects, 1)
}

func TestModalityOf(t *testing.T) {
	cases := []struct {
		name string
		mod  string
		ok   bool
	}{
		{"sub-01_T1w.nii.gz", ModalityT1w, true},
		{"sub-01_T1w.nii", ModalityT1w, true},
		{"sub-01_ses-pre_T2w.nii.gz", ModalityT2w, true},
		{"sub-01_bold.nii.gz", "", false},
		{"sub-01_T1w.json", "", false},
	}
	for _, tc := range cases {
		mod, ok := modalityOf(tc.name)
		require.Equal(t, tc.ok, ok, tc.name)
		require.Equal(t, tc.mod, mod, tc.name)
	}
}

func TestNormalizeLabel(t *testing.T) {
	require.Equal(t, "01", NormalizeLabel("sub-01"))
	require.Equal(t, "pre", NormalizeLabel("ses-pre"))
	require.Equal(t, "01", NormalizeLabel("01"))
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "absent"), ScanOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoSubjects))
}
