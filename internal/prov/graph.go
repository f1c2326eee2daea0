package prov

import (
	"errors"
	"fmt"
	"sort"
)

// NodeKind discriminates the three PROV node categories. It drives
// validation only; the serialized class is Node.Class.
type NodeKind string

const (
	KindAgent    NodeKind = "agent"
	KindActivity NodeKind = "activity"
	KindEntity   NodeKind = "entity"
)

// Attr is one literal attribute of a node. Datatype is empty for plain
// strings, or a prefixed datatype such as "xsd:double".
type Attr struct {
	Pred     string
	Value    string
	Datatype string
}

// Node is one typed node of the provenance graph.
type Node struct {
	ID    string
	Kind  NodeKind
	Class string
	Attrs []Attr
}

// Edge is one typed relation between two nodes, subject From to object To.
type Edge struct {
	From string
	Pred string
	To   string
}

// Graph is the canonical in-memory provenance graph for one processing
// unit. It is assembled in a single pass by Build and immutable thereafter;
// a re-run supersedes the whole graph, it never mutates one in place.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Canonicalize sorts nodes, per-node attributes, and edges into the fully
// specified canonical order. Serialization and hashing must only ever see
// canonicalized graphs.
func (g *Graph) Canonicalize() {
	if g == nil {
		return
	}
	for i := range g.Nodes {
		attrs := g.Nodes[i].Attrs
		sort.Slice(attrs, func(a, b int) bool {
			if attrs[a].Pred != attrs[b].Pred {
				return attrs[a].Pred < attrs[b].Pred
			}
			return attrs[a].Value < attrs[b].Value
		})
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.Pred != b.Pred {
			return a.Pred < b.Pred
		}
		return a.To < b.To
	})
}

// Validate checks the structural invariants every attempted unit's graph
// must satisfy:
//   - exactly one Activity, carrying exactly one status attribute and at
//     least one "used" edge;
//   - every generated entity has exactly one wasGeneratedBy edge, pointing
//     at the Activity;
//   - every edge endpoint resolves to a node.
func (g *Graph) Validate() error {
	if g == nil {
		return errors.New("graph is nil")
	}

	byID := make(map[string]*Node, len(g.Nodes))
	var activity *Node
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("node %d has empty id", i)
		}
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("duplicate node id %s", n.ID)
		}
		byID[n.ID] = n
		if n.Kind == KindActivity {
			if activity != nil {
				return errors.New("graph has more than one activity")
			}
			activity = n
		}
	}
	if activity == nil {
		return errors.New("graph has no activity")
	}

	statusCount := 0
	for _, a := range activity.Attrs {
		if a.Pred == PredStatus {
			statusCount++
		}
	}
	if statusCount != 1 {
		return fmt.Errorf("activity has %d status attributes, want exactly 1", statusCount)
	}

	usedCount := 0
	generatedBy := make(map[string]int)
	for _, e := range g.Edges {
		if _, ok := byID[e.From]; !ok {
			return fmt.Errorf("edge %s references unknown subject %s", e.Pred, e.From)
		}
		if _, ok := byID[e.To]; !ok {
			return fmt.Errorf("edge %s references unknown object %s", e.Pred, e.To)
		}
		switch e.Pred {
		case PredUsed:
			usedCount++
		case PredGeneratedBy:
			if e.To != activity.ID {
				return fmt.Errorf("entity %s generated by %s, not the unit's activity", e.From, e.To)
			}
			generatedBy[e.From]++
		}
	}
	if usedCount == 0 {
		return errors.New("activity has no used edge")
	}
	for id, n := range generatedBy {
		if n != 1 {
			return fmt.Errorf("entity %s has %d wasGeneratedBy edges, want exactly 1", id, n)
		}
	}
	return nil
}

// node looks up a node by ID. Nil when absent.
func (g *Graph) node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}
