package bids

import "path/filepath"

// DirShape is the directory layout chosen for a subject's outputs.
//
// The shape is decided exactly once per ProcessingUnit and consumed by both
// the pipeline working-directory naming and every output tree; the two must
// never disagree.
type DirShape string

const (
	// ShapeSingleSession places outputs directly under sub-<label>/.
	ShapeSingleSession DirShape = "single-session"
	// ShapeMultiSession places outputs under sub-<label>/ses-<label>/.
	ShapeMultiSession DirShape = "multi-session"
)

// ProcessingUnit is one (subject, session?) pair submitted to the pipeline,
// with its resolved directory shape and selected acquisitions.
//
// Cardinality: at least one T1w (enforced by Resolve), zero or more T2w.
type ProcessingUnit struct {
	Subject string
	Session string // empty for single-session layout
	Shape   DirShape
	T1w     []string
	T2w     []string
}

// ID is the FreeSurfer subject identifier for this unit:
// "sub-<label>" or "sub-<label>_ses-<label>".
func (u ProcessingUnit) ID() string {
	id := "sub-" + u.Subject
	if u.Session != "" {
		id += "_ses-" + u.Session
	}
	return id
}

// RelDir is the shape-dependent output path fragment for this unit:
// "sub-<label>" or "sub-<label>/ses-<label>".
func (u ProcessingUnit) RelDir() string {
	if u.Shape == ShapeMultiSession {
		return filepath.Join("sub-"+u.Subject, "ses-"+u.Session)
	}
	return "sub-" + u.Subject
}

// Resolve emits the ProcessingUnits for one subject.
//
// A subject with labeled sessions yields one multi-session unit per session;
// otherwise exactly one single-session unit. Sessions without a T1w image
// are excluded (reported, not fatal) so the remaining sessions still run.
func Resolve(subj Subject) ([]ProcessingUnit, []Exclusion) {
	var units []ProcessingUnit
	var excluded []Exclusion

	for _, ses := range subj.Sessions {
		t1 := ses.T1w()
		if len(t1) == 0 {
			excluded = append(excluded, Exclusion{
				Subject: subj.Label,
				Session: ses.Label,
				Reason:  datasetErrf(ErrNoT1w, subj.Label, ses.Label, "session has no T1w image"),
			})
			continue
		}
		shape := ShapeSingleSession
		if ses.Label != "" {
			shape = ShapeMultiSession
		}
		units = append(units, ProcessingUnit{
			Subject: subj.Label,
			Session: ses.Label,
			Shape:   shape,
			T1w:     t1,
			T2w:     ses.T2w(),
		})
	}
	return units, excluded
}

// ResolveAll flattens a scanned dataset into the ordered unit list for the
// whole run. Order follows the dataset's deterministic subject/session order.
func ResolveAll(ds *Dataset) ([]ProcessingUnit, []Exclusion) {
	var units []ProcessingUnit
	excluded := append([]Exclusion(nil), ds.Excluded...)
	for _, subj := range ds.Subjects {
		u, ex := Resolve(subj)
		units = append(units, u...)
		excluded = append(excluded, ex...)
	}
	return units, excluded
}
