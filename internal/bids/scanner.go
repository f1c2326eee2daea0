package bids

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Modality tags for anatomical acquisitions.
const (
	ModalityT1w = "T1w"
	ModalityT2w = "T2w"
)

// Acquisition is one input image file tagged with a modality.
type Acquisition struct {
	Modality string
	Path     string
}

// Session groups the acquisitions recorded in one scanning session.
// Label is empty for the implicit session of a single-session subject.
type Session struct {
	Label        string
	Acquisitions []Acquisition
}

// T1w returns the session's T1w acquisition paths in sorted order.
func (s Session) T1w() []string { return s.modality(ModalityT1w) }

// T2w returns the session's T2w acquisition paths in sorted order.
func (s Session) T2w() []string { return s.modality(ModalityT2w) }

func (s Session) modality(tag string) []string {
	var out []string
	for _, a := range s.Acquisitions {
		if a.Modality == tag {
			out = append(out, a.Path)
		}
	}
	return out
}

// Subject is one participant of the dataset. Sessions holds exactly one
// entry with an empty label when the subject uses the single-session layout.
type Subject struct {
	Label    string
	Sessions []Session
}

// Exclusion records a subject or session dropped from the run, with the
// structural reason. Exclusions are reported, not fatal.
type Exclusion struct {
	Subject string
	Session string
	Reason  error
}

// Dataset is the scanner's immutable result: subjects sorted by label, each
// with sessions sorted by label and acquisitions sorted by path.
type Dataset struct {
	Root     string
	Subjects []Subject
	Excluded []Exclusion
}

// ScanOptions restricts the scan to specific participant/session labels.
// Labels are accepted with or without their "sub-"/"ses-" prefixes.
type ScanOptions struct {
	Participants []string
	Sessions     []string
}

// NormalizeLabel strips a "sub-" or "ses-" prefix if present.
func NormalizeLabel(label string) string {
	label = strings.TrimPrefix(label, "sub-")
	return strings.TrimPrefix(label, "ses-")
}

// Scan walks a BIDS dataset root and resolves the subjects the run will
// process.
//
// Guarantees:
//   - The returned order is deterministic: sorted by subject label, then
//     session label, then acquisition path. Filesystem ordering is never
//     trusted.
//   - A subject with no T1w acquisition in any selected session is moved to
//     Excluded with ErrNoT1w; the scan itself still succeeds.
//   - Zero matching subjects is a dataset-level DatasetStructureError.
//
// T2w absence is never an error.
func Scan(root string, opts ScanOptions) (*Dataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, datasetErrf(ErrNoSubjects, "", "", "reading dataset root: %v", err)
	}

	wantSubject := labelSet(opts.Participants)
	wantSession := labelSet(opts.Sessions)

	ds := &Dataset{Root: root}
	for _, ent := range entries {
		if !ent.IsDir() || !strings.HasPrefix(ent.Name(), "sub-") {
			continue
		}
		label := strings.TrimPrefix(ent.Name(), "sub-")
		if wantSubject != nil && !wantSubject[label] {
			continue
		}

		subj, err := scanSubject(filepath.Join(root, ent.Name()), label, wantSession)
		if err != nil {
			return nil, err
		}

		if !hasT1w(subj) {
			ds.Excluded = append(ds.Excluded, Exclusion{
				Subject: label,
				Reason:  datasetErrf(ErrNoT1w, label, "", "subject has no T1w image"),
			})
			continue
		}
		ds.Subjects = append(ds.Subjects, subj)
	}

	sort.Slice(ds.Subjects, func(i, j int) bool { return ds.Subjects[i].Label < ds.Subjects[j].Label })
	sort.Slice(ds.Excluded, func(i, j int) bool { return ds.Excluded[i].Subject < ds.Excluded[j].Subject })

	if len(ds.Subjects) == 0 && len(ds.Excluded) == 0 {
		return nil, datasetErrf(ErrNoSubjects, "", "", "no subjects match in %s", root)
	}
	return ds, nil
}

func scanSubject(dir, label string, wantSession map[string]bool) (Subject, error) {
	subj := Subject{Label: label}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return subj, datasetErrf(ErrNoSubjects, label, "", "reading subject directory: %v", err)
	}

	var sessionDirs []string
	for _, ent := range entries {
		if ent.IsDir() && strings.HasPrefix(ent.Name(), "ses-") {
			sessionDirs = append(sessionDirs, ent.Name())
		}
	}
	sort.Strings(sessionDirs)

	if len(sessionDirs) == 0 {
		// Single-session layout: anat directly under the subject.
		subj.Sessions = []Session{{
			Label:        "",
			Acquisitions: scanAnat(filepath.Join(dir, "anat")),
		}}
		return subj, nil
	}

	for _, name := range sessionDirs {
		sesLabel := strings.TrimPrefix(name, "ses-")
		if wantSession != nil && !wantSession[sesLabel] {
			continue
		}
		subj.Sessions = append(subj.Sessions, Session{
			Label:        sesLabel,
			Acquisitions: scanAnat(filepath.Join(dir, name, "anat")),
		})
	}
	return subj, nil
}

// scanAnat collects the modality-tagged images of one anat directory.
// A missing anat directory simply yields no acquisitions.
func scanAnat(dir string) []Acquisition {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var acqs []Acquisition
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		mod, ok := modalityOf(ent.Name())
		if !ok {
			continue
		}
		acqs = append(acqs, Acquisition{Modality: mod, Path: filepath.Join(dir, ent.Name())})
	}
	sort.Slice(acqs, func(i, j int) bool { return acqs[i].Path < acqs[j].Path })
	return acqs
}

func modalityOf(name string) (string, bool) {
	base := strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".nii")
	switch {
	case strings.HasSuffix(base, "_"+ModalityT1w):
		return ModalityT1w, true
	case strings.HasSuffix(base, "_"+ModalityT2w):
		return ModalityT2w, true
	default:
		return "", false
	}
}

func hasT1w(subj Subject) bool {
	for _, ses := range subj.Sessions {
		if len(ses.T1w()) > 0 {
			return true
		}
	}
	return false
}

func labelSet(labels []string) map[string]bool {
	if len(labels) == 0 {
		return nil
	}
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = NormalizeLabel(strings.TrimSpace(l))
		if l != "" {
			set[l] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
