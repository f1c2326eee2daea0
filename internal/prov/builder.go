package prov

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"bidsfs/internal/fsversion"
	"bidsfs/internal/stats"
)

// Status is the execution outcome recorded on the Activity node.
type Status string

const (
	StatusSucceeded Status = "success"
	StatusFailed    Status = "failure"
)

// InputFile is one acquisition consumed by the pipeline run.
type InputFile struct {
	Modality string
	Path     string
}

// FileMeasurements groups the records parsed from one statistics file.
// StatsFile must also appear in BuildInput.Outputs: measurements derive
// from an artifact the run produced.
type FileMeasurements struct {
	StatsFile string
	Records   []stats.MeasurementRecord
}

// BuildInput carries everything one provenance graph is assembled from.
type BuildInput struct {
	// UnitID is the FreeSurfer identifier of the processing unit,
	// e.g. "sub-01" or "sub-02_ses-pre".
	UnitID string

	Status    Status
	StartedAt time.Time
	EndedAt   time.Time

	Inputs       []InputFile
	Outputs      []string
	Measurements []FileMeasurements

	Manifest fsversion.Manifest
}

// Build assembles the canonical provenance graph for one attempted unit.
//
// A graph always exists for an attempted unit: on failure the inputs and
// agents are still recorded, but no output or measurement entities are
// created, since nothing was produced. The returned graph is canonicalized
// and validated.
func Build(in BuildInput) (*Graph, error) {
	if in.UnitID == "" {
		return nil, errors.New("unit id is required")
	}
	if in.Status != StatusSucceeded && in.Status != StatusFailed {
		return nil, fmt.Errorf("invalid status %q", in.Status)
	}
	if len(in.Inputs) == 0 {
		return nil, fmt.Errorf("unit %s has no input acquisitions", in.UnitID)
	}

	g := &Graph{}

	activityID := NodeID("activity", in.UnitID)
	activity := Node{
		ID:    activityID,
		Kind:  KindActivity,
		Class: ClassActivity,
		Attrs: []Attr{
			{Pred: PredLabel, Value: "recon-all " + in.UnitID},
			{Pred: PredStatus, Value: string(in.Status)},
		},
	}
	if !in.StartedAt.IsZero() {
		activity.Attrs = append(activity.Attrs, Attr{
			Pred: PredStartedAt, Value: in.StartedAt.UTC().Format(time.RFC3339), Datatype: DatatypeDateTime,
		})
	}
	if !in.EndedAt.IsZero() {
		activity.Attrs = append(activity.Attrs, Attr{
			Pred: PredEndedAt, Value: in.EndedAt.UTC().Format(time.RFC3339), Datatype: DatatypeDateTime,
		})
	}
	g.Nodes = append(g.Nodes, activity)

	for _, entry := range in.Manifest.Entries() {
		agentID := NodeID("agent", entry.Component, entry.Version)
		g.Nodes = append(g.Nodes, Node{
			ID:    agentID,
			Kind:  KindAgent,
			Class: ClassSoftwareAgent,
			Attrs: []Attr{
				{Pred: PredLabel, Value: entry.Component},
				{Pred: PredVersion, Value: entry.Version},
			},
		})
		g.Edges = append(g.Edges, Edge{From: activityID, Pred: PredAssociatedWith, To: agentID})
	}

	for _, inp := range in.Inputs {
		entityID := NodeID("entity", in.UnitID, "input", inp.Path)
		g.Nodes = append(g.Nodes, Node{
			ID:    entityID,
			Kind:  KindEntity,
			Class: ClassEntity,
			Attrs: []Attr{
				{Pred: PredLocation, Value: inp.Path},
				{Pred: PredModality, Value: inp.Modality},
			},
		})
		g.Edges = append(g.Edges, Edge{From: activityID, Pred: PredUsed, To: entityID})
	}

	if in.Status == StatusSucceeded {
		if err := addOutputs(g, in, activityID); err != nil {
			return nil, err
		}
	}

	g.Canonicalize()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("building provenance for %s: %w", in.UnitID, err)
	}
	return g, nil
}

func addOutputs(g *Graph, in BuildInput, activityID string) error {
	outputIDs := make(map[string]string, len(in.Outputs))
	for _, path := range in.Outputs {
		if _, dup := outputIDs[path]; dup {
			continue
		}
		entityID := NodeID("entity", in.UnitID, "output", path)
		outputIDs[path] = entityID
		g.Nodes = append(g.Nodes, Node{
			ID:    entityID,
			Kind:  KindEntity,
			Class: ClassEntity,
			Attrs: []Attr{{Pred: PredLocation, Value: path}},
		})
		g.Edges = append(g.Edges, Edge{From: entityID, Pred: PredGeneratedBy, To: activityID})
	}

	for _, fm := range in.Measurements {
		sourceID, ok := outputIDs[fm.StatsFile]
		if !ok {
			return fmt.Errorf("stats file %s is not among the unit's outputs", fm.StatsFile)
		}
		seen := make(map[[2]string]bool, len(fm.Records))
		for _, rec := range fm.Records {
			key := [2]string{rec.Structure, rec.Metric}
			if seen[key] {
				continue
			}
			seen[key] = true

			mID := NodeID("measurement", in.UnitID, fm.StatsFile, rec.Structure, rec.Metric)
			attrs := []Attr{
				{Pred: PredStructure, Value: rec.Structure},
				{Pred: PredMetric, Value: rec.Metric},
				{Pred: PredValue, Value: formatValue(rec.Value), Datatype: DatatypeDouble},
			}
			if rec.Unit != "" {
				attrs = append(attrs, Attr{Pred: PredUnit, Value: rec.Unit})
			}
			g.Nodes = append(g.Nodes, Node{ID: mID, Kind: KindEntity, Class: ClassMeasurement, Attrs: attrs})
			g.Edges = append(g.Edges, Edge{From: mID, Pred: PredDerivedFrom, To: sourceID})
		}
	}
	return nil
}

// formatValue renders a measurement value with the shortest representation
// that round-trips, so identical inputs always serialize identically.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
