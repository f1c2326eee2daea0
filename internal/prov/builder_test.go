package prov

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bidsfs/internal/fsversion"
	"bidsfs/internal/stats"
)

func testManifest() fsversion.Manifest {
	return fsversion.Collect(fsversion.Options{
		FreeSurferHome: "/nonexistent",
		AppVersion:     "0.3.0",
		BuildInfo:      func() (*debug.BuildInfo, bool) { return nil, false },
	})
}

func successInput() BuildInput {
	return BuildInput{
		UnitID:    "sub-01",
		Status:    StatusSucceeded,
		StartedAt: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 8, 24, 16, 30, 0, 0, time.UTC),
		Inputs: []InputFile{
			{Modality: "T1w", Path: "/data/sub-01/anat/sub-01_T1w.nii.gz"},
			{Modality: "T2w", Path: "/data/sub-01/anat/sub-01_T2w.nii.gz"},
		},
		Outputs: []string{"mri/aseg.mgz", "stats/aseg.stats", "surf/lh.pial"},
		Measurements: []FileMeasurements{{
			StatsFile: "stats/aseg.stats",
			Records: []stats.MeasurementRecord{
				{Structure: "Left-Hippocampus", Metric: "volume", Value: 4250.7, Unit: "mm^3"},
				{Structure: "Left-Thalamus", Metric: "volume", Value: 8362.1, Unit: "mm^3"},
			},
		}},
		Manifest: testManifest(),
	}
}

func countKind(g *Graph, kind NodeKind) int {
	n := 0
	for _, node := range g.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

func countEdges(g *Graph, pred string) int {
	n := 0
	for _, e := range g.Edges {
		if e.Pred == pred {
			n++
		}
	}
	return n
}

func TestBuildSuccessGraphShape(t *testing.T) {
	in := successInput()
	g, err := Build(in)
	require.NoError(t, err)

	require.Equal(t, 1, countKind(g, KindActivity))
	require.Equal(t, in.Manifest.Len(), countKind(g, KindAgent))
	require.Equal(t, in.Manifest.Len(), countEdges(g, PredAssociatedWith))
	require.Equal(t, len(in.Inputs), countEdges(g, PredUsed))
	require.Equal(t, len(in.Outputs), countEdges(g, PredGeneratedBy))
	require.Equal(t, 2, countEdges(g, PredDerivedFrom))

	require.NoError(t, g.Validate())
}

func TestBuildFailureGraphOmitsOutputsAndMeasurements(t *testing.T) {
	in := successInput()
	in.Status = StatusFailed

	g, err := Build(in)
	require.NoError(t, err)

	require.Zero(t, countEdges(g, PredGeneratedBy))
	require.Zero(t, countEdges(g, PredDerivedFrom))
	require.Equal(t, len(in.Inputs), countEdges(g, PredUsed))

	activity := g.node(NodeID("activity", in.UnitID))
	require.NotNil(t, activity)
	var status string
	for _, a := range activity.Attrs {
		if a.Pred == PredStatus {
			status = a.Value
		}
	}
	require.Equal(t, string(StatusFailed), status)
}

func TestBuildDeduplicatesMeasurements(t *testing.T) {
	in := successInput()
	in.Measurements[0].Records = append(in.Measurements[0].Records,
		stats.MeasurementRecord{Structure: "Left-Hippocampus", Metric: "volume", Value: 9999, Unit: "mm^3"})

	g, err := Build(in)
	require.NoError(t, err)
	require.Equal(t, 2, countEdges(g, PredDerivedFrom))
}

func TestBuildRejectsMeasurementWithUnknownSource(t *testing.T) {
	in := successInput()
	in.Measurements[0].StatsFile = "stats/absent.stats"

	_, err := Build(in)
	require.Error(t, err)
	require.Contains(t, err.Error(), "absent.stats")
}

func TestBuildInputValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BuildInput)
	}{
		{"empty unit id", func(in *BuildInput) { in.UnitID = "" }},
		{"invalid status", func(in *BuildInput) { in.Status = "partial" }},
		{"no inputs", func(in *BuildInput) { in.Inputs = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := successInput()
			tc.mutate(&in)
			_, err := Build(in)
			require.Error(t, err)
		})
	}
}

func TestBuildTimestampsAreUTCDateTime(t *testing.T) {
	in := successInput()
	loc := time.FixedZone("CEST", 2*3600)
	in.StartedAt = time.Date(2026, 8, 24, 12, 0, 0, 0, loc)

	g, err := Build(in)
	require.NoError(t, err)

	activity := g.node(NodeID("activity", in.UnitID))
	for _, a := range activity.Attrs {
		if a.Pred == PredStartedAt {
			require.Equal(t, "2026-08-24T10:00:00Z", a.Value)
			require.Equal(t, DatatypeDateTime, a.Datatype)
		}
	}
}

func TestBuildIsIdempotentModuloTimestamps(t *testing.T) {
	first, err := Build(successInput())
	require.NoError(t, err)

	rerun := successInput()
	rerun.StartedAt = rerun.StartedAt.Add(48 * time.Hour)
	rerun.EndedAt = rerun.EndedAt.Add(48 * time.Hour)
	second, err := Build(rerun)
	require.NoError(t, err)

	require.Equal(t,
		WithoutTimestamps(first.Statements()),
		WithoutTimestamps(second.Statements()))
	require.NotEqual(t, first.Statements(), second.Statements())
}

func TestNodeIDIsDeterministic(t *testing.T) {
	a := NodeID("entity", "sub-01", "input", "/data/t1.nii")
	b := NodeID("entity", "sub-01", "input", "/data/t1.nii")
	c := NodeID("entity", "sub-02", "input", "/data/t1.nii")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Contains(t, a, "urn:uuid:")
}

func TestValidateInvariants(t *testing.T) {
	base := func() *Graph {
		g, err := Build(successInput())
		require.NoError(t, err)
		return g
	}

	t.Run("no activity", func(t *testing.T) {
		g := base()
		var nodes []Node
		for _, n := range g.Nodes {
			if n.Kind != KindActivity {
				nodes = append(nodes, n)
			}
		}
		g.Nodes = nodes
		require.Error(t, g.Validate())
	})

	t.Run("dangling edge", func(t *testing.T) {
		g := base()
		g.Edges = append(g.Edges, Edge{From: "urn:uuid:missing", Pred: PredUsed, To: g.Nodes[0].ID})
		require.Error(t, g.Validate())
	})

	t.Run("generated by non-activity", func(t *testing.T) {
		g := base()
		activityID := NodeID("activity", "sub-01")
		var entity string
		for _, n := range g.Nodes {
			if n.Kind == KindEntity {
				entity = n.ID
				break
			}
		}
		for i := range g.Edges {
			if g.Edges[i].Pred == PredGeneratedBy {
				g.Edges[i].To = entity
				require.NotEqual(t, activityID, entity)
				break
			}
		}
		require.Error(t, g.Validate())
	})

	t.Run("duplicate status", func(t *testing.T) {
		g := base()
		for i := range g.Nodes {
			if g.Nodes[i].Kind == KindActivity {
				g.Nodes[i].Attrs = append(g.Nodes[i].Attrs, Attr{Pred: PredStatus, Value: "failure"})
			}
		}
		require.Error(t, g.Validate())
	})
}
