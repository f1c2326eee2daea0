package prov

import "sort"

// Object is the object position of a statement: either an IRI reference or
// a literal with an optional datatype.
type Object struct {
	Value    string
	IsIRI    bool
	Datatype string
}

// Statement is one (subject, predicate, object) triple. Subjects are node
// IRIs; predicates are prefixed names from the shared vocabulary.
//
// Statement is comparable by value, so statement sets can be diffed with a
// plain map.
type Statement struct {
	Subject   string
	Predicate string
	Object    Object
}

// Statements expands the graph into its canonical statement list: one
// rdf:type statement per node, one statement per literal attribute, one per
// edge, in a fully specified total order.
//
// Both serializers are pure functions over this list; equality of the two
// formats is equality of these statements.
func (g *Graph) Statements() []Statement {
	var sts []Statement
	for _, n := range g.Nodes {
		sts = append(sts, Statement{
			Subject:   n.ID,
			Predicate: PredType,
			Object:    Object{Value: n.Class, IsIRI: true},
		})
		for _, a := range n.Attrs {
			sts = append(sts, Statement{
				Subject:   n.ID,
				Predicate: a.Pred,
				Object:    Object{Value: a.Value, Datatype: a.Datatype},
			})
		}
	}
	for _, e := range g.Edges {
		sts = append(sts, Statement{
			Subject:   e.From,
			Predicate: e.Pred,
			Object:    Object{Value: e.To, IsIRI: true},
		})
	}
	SortStatements(sts)
	return sts
}

// SortStatements orders statements by (subject, predicate, object value,
// object kind). The order is independent of construction order.
func SortStatements(sts []Statement) {
	sort.Slice(sts, func(i, j int) bool {
		a, b := sts[i], sts[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Predicate != b.Predicate {
			// rdf:type leads its subject group for readability; everything
			// else is lexical.
			at, bt := a.Predicate == PredType, b.Predicate == PredType
			if at != bt {
				return at
			}
			return a.Predicate < b.Predicate
		}
		if a.Object.Value != b.Object.Value {
			return a.Object.Value < b.Object.Value
		}
		if a.Object.IsIRI != b.Object.IsIRI {
			return !a.Object.IsIRI
		}
		return a.Object.Datatype < b.Object.Datatype
	})
}

// DiffStatements returns the statements present in want but not got
// (missing) and present in got but not want (extra). Order and duplicates
// are ignored; comparison is set-based.
func DiffStatements(want, got []Statement) (missing, extra []Statement) {
	wantSet := make(map[Statement]bool, len(want))
	for _, s := range want {
		wantSet[s] = true
	}
	gotSet := make(map[Statement]bool, len(got))
	for _, s := range got {
		gotSet[s] = true
	}
	for s := range wantSet {
		if !gotSet[s] {
			missing = append(missing, s)
		}
	}
	for s := range gotSet {
		if !wantSet[s] {
			extra = append(extra, s)
		}
	}
	SortStatements(missing)
	SortStatements(extra)
	return missing, extra
}

// WithoutTimestamps filters out the activity start/end statements. Re-run
// comparisons (idempotence) exclude wall-clock facts.
func WithoutTimestamps(sts []Statement) []Statement {
	out := make([]Statement, 0, len(sts))
	for _, s := range sts {
		if s.Predicate == PredStartedAt || s.Predicate == PredEndedAt {
			continue
		}
		out = append(out, s)
	}
	return out
}
