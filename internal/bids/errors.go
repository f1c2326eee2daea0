package bids

import (
	"errors"
	"fmt"
)

var (
	ErrNoSubjects = errors.New("no subjects match")
	ErrNoT1w      = errors.New("no T1w acquisition")
)

// DatasetStructureError reports a structural defect in the input dataset.
//
// Subject is empty for dataset-level problems (e.g. zero matching subjects).
// Subject-level instances never abort a run by themselves; the scanner
// returns them as exclusions so remaining subjects can proceed.
type DatasetStructureError struct {
	Kind    error
	Subject string
	Session string
	Msg     string
}

func (e *DatasetStructureError) Error() string {
	if e == nil {
		return ""
	}
	scope := "dataset"
	if e.Subject != "" {
		scope = "sub-" + e.Subject
		if e.Session != "" {
			scope += "_ses-" + e.Session
		}
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", scope, e.Kind.Error())
	}
	return fmt.Sprintf("%s: %s: %s", scope, e.Kind.Error(), e.Msg)
}

func (e *DatasetStructureError) Unwrap() error { return e.Kind }

func datasetErrf(kind error, subject, session, format string, args ...any) error {
	return &DatasetStructureError{
		Kind:    kind,
		Subject: subject,
		Session: session,
		Msg:     fmt.Sprintf(format, args...),
	}
}
