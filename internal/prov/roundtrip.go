package prov

import (
	"fmt"
)

// SerializationConsistencyError reports that the two serialized formats do
// not describe the same logical graph. It indicates a serializer or graph
// construction bug and is fatal to the unit; it is never silently
// tolerated.
type SerializationConsistencyError struct {
	Format  string
	Missing []Statement
	Extra   []Statement
}

func (e *SerializationConsistencyError) Error() string {
	return fmt.Sprintf("%s round-trip mismatch: %d statements missing, %d unexpected",
		e.Format, len(e.Missing), len(e.Extra))
}

// Documents is the pair of physical encodings of one provenance graph.
type Documents struct {
	JSONLD []byte
	Turtle []byte
}

// Serialize renders the graph into both encodings and verifies the
// round-trip property before returning: each document, parsed back, must
// yield exactly the graph's canonical statement set. Nothing is handed to
// the caller unless both formats agree.
func Serialize(g *Graph) (*Documents, error) {
	g.Canonicalize()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	want := g.Statements()

	docs := &Documents{
		JSONLD: EncodeJSONLD(want),
		Turtle: EncodeTurtle(want),
	}

	if err := verify("jsonld", want, docs.JSONLD, DecodeJSONLD); err != nil {
		return nil, err
	}
	if err := verify("turtle", want, docs.Turtle, DecodeTurtle); err != nil {
		return nil, err
	}
	return docs, nil
}

func verify(format string, want []Statement, data []byte, decode func([]byte) ([]Statement, error)) error {
	got, err := decode(data)
	if err != nil {
		return &SerializationConsistencyError{Format: format, Missing: want}
	}
	missing, extra := DiffStatements(want, got)
	if len(missing) > 0 || len(extra) > 0 {
		return &SerializationConsistencyError{Format: format, Missing: missing, Extra: extra}
	}
	return nil
}
