package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const asegSample = `# Title Segmentation Statistics
# generating_program mri_segstats
# Measure BrainSeg, BrainSegVol, Brain Segmentation Volume, 1243340.0, mm^3
# Measure EstimatedTotalIntraCranialVol, eTIV, Estimated Total Intracranial Volume, 1539210.5, mm^3
# ColHeaders Index SegId NVoxels Volume_mm3 StructName normMean normStdDev normMin normMax normRange
  1   4      7924     7924.3  Left-Lateral-Ventricle            24.5   12.2     5.0    86.0    81.0
  2  10      8362     8362.1  Left-Thalamus                     88.1    9.7    31.0   108.0    77.0
`

func TestParseMeasureHeaders(t *testing.T) {
	res, err := Parse(strings.NewReader(asegSample), "aseg.stats")
	require.NoError(t, err)
	require.Zero(t, res.Skipped)

	require.Equal(t, MeasurementRecord{
		Structure: "BrainSeg",
		Metric:    "BrainSegVol",
		Value:     1243340.0,
		Unit:      "mm^3",
	}, res.Records[0])
}

func TestParseTableRows(t *testing.T) {
	res, err := Parse(strings.NewReader(asegSample), "aseg.stats")
	require.NoError(t, err)

	// 2 measure headers + 2 rows x (Volume_mm3, normMean).
	require.Len(t, res.Records, 6)

	byKey := map[[2]string]MeasurementRecord{}
	for _, r := range res.Records {
		byKey[[2]string{r.Structure, r.Metric}] = r
	}

	vol := byKey[[2]string{"Left-Lateral-Ventricle", "volume"}]
	require.Equal(t, 7924.3, vol.Value)
	require.Equal(t, "mm^3", vol.Unit)

	intensity := byKey[[2]string{"Left-Thalamus", "mean intensity"}]
	require.Equal(t, 88.1, intensity.Value)
	require.Equal(t, "MR", intensity.Unit)
}

func TestParseSkipsMalformedLineAndContinues(t *testing.T) {
	src := `# Some comment
valid_structure 1500.5 mm3
unknown_structure notanumber mm3
another_structure 2000.0 mm3
`
	res, err := Parse(strings.NewReader(src), "partial.stats")
	require.NoError(t, err)

	require.Equal(t, 1, res.Skipped)
	require.Len(t, res.Malformed, 1)
	require.Equal(t, 3, res.Malformed[0].Line)
	require.Contains(t, res.Malformed[0].Error(), "notanumber")

	require.Len(t, res.Records, 2)
	require.Equal(t, "valid_structure", res.Records[0].Structure)
	require.Equal(t, 1500.5, res.Records[0].Value)
	require.Equal(t, "another_structure", res.Records[1].Structure)
}

func TestParseFallbackLayoutWithoutSchema(t *testing.T) {
	res, err := Parse(strings.NewReader("Left-Hippocampus 4250.7 mm3\nBrainStem 21000.2\n"), "simple.stats")
	require.NoError(t, err)
	require.Zero(t, res.Skipped)
	require.Len(t, res.Records, 2)
	require.Equal(t, "mm3", res.Records[0].Unit)
	require.Empty(t, res.Records[1].Unit)
	require.Equal(t, "volume", res.Records[0].Metric)
}

func TestParseSchemaMismatchCountsSkip(t *testing.T) {
	src := `# ColHeaders Index SegId StructName Volume_mm3
1 4 Left-Lateral-Ventricle 7924.3
1 4 TruncatedRow
`
	res, err := Parse(strings.NewReader(src), "rows.stats")
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Len(t, res.Records, 1)
}

func TestParseMalformedMeasureHeaderIsSkipped(t *testing.T) {
	src := "# Measure BrainSeg, BrainSegVol, Brain Segmentation Volume, not-a-number, mm^3\n"
	res, err := Parse(strings.NewReader(src), "bad.stats")
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Empty(t, res.Records)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aseg.stats")
	require.NoError(t, os.WriteFile(path, []byte(asegSample), 0o644))

	res, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, res.Records, 6)

	_, err = ParseFile(filepath.Join(dir, "absent.stats"))
	require.Error(t, err)
}
