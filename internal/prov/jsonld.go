package prov

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// EncodeJSONLD renders a canonical statement list as a JSON-LD document.
//
// Layout is fully deterministic: the @context lists prefixes sorted by
// name, @graph lists one object per subject sorted by @id, and within each
// object predicates are sorted lexically after @id/@type. Same-predicate
// objects are emitted as a sorted array only when there is more than one.
//
// encoding/json map marshaling is deliberately avoided; field order is
// written by hand so the bytes are stable (and diffable) across runs.
func EncodeJSONLD(sts []Statement) []byte {
	subjects, order := groupBySubject(sts)

	var buf bytes.Buffer
	buf.WriteString("{\n  \"@context\": {\n")
	prefixes := sortedPrefixes()
	for i, p := range prefixes {
		fmt.Fprintf(&buf, "    %s: %s", jsonString(p), jsonString(Prefixes[p]))
		if i < len(prefixes)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("  },\n  \"@graph\": [\n")

	for si, subj := range order {
		buf.WriteString("    {\n")
		fmt.Fprintf(&buf, "      \"@id\": %s", jsonString(subj))

		group := subjects[subj]
		writeTypes(&buf, group)
		writePredicates(&buf, group)

		buf.WriteString("\n    }")
		if si < len(order)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("  ]\n}\n")
	return buf.Bytes()
}

func writeTypes(buf *bytes.Buffer, group []Statement) {
	var types []string
	for _, s := range group {
		if s.Predicate == PredType {
			types = append(types, s.Object.Value)
		}
	}
	if len(types) == 0 {
		return
	}
	sort.Strings(types)
	buf.WriteString(",\n      \"@type\": ")
	if len(types) == 1 {
		buf.WriteString(jsonString(types[0]))
		return
	}
	buf.WriteByte('[')
	for i, t := range types {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(jsonString(t))
	}
	buf.WriteByte(']')
}

func writePredicates(buf *bytes.Buffer, group []Statement) {
	byPred := make(map[string][]Object)
	var preds []string
	for _, s := range group {
		if s.Predicate == PredType {
			continue
		}
		if _, ok := byPred[s.Predicate]; !ok {
			preds = append(preds, s.Predicate)
		}
		byPred[s.Predicate] = append(byPred[s.Predicate], s.Object)
	}
	sort.Strings(preds)

	for _, pred := range preds {
		objs := byPred[pred]
		sort.Slice(objs, func(i, j int) bool { return objs[i].Value < objs[j].Value })

		fmt.Fprintf(buf, ",\n      %s: ", jsonString(pred))
		if len(objs) == 1 {
			writeObject(buf, objs[0])
			continue
		}
		buf.WriteByte('[')
		for i, o := range objs {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeObject(buf, o)
		}
		buf.WriteByte(']')
	}
}

func writeObject(buf *bytes.Buffer, o Object) {
	switch {
	case o.IsIRI:
		fmt.Fprintf(buf, "{\"@id\": %s}", jsonString(o.Value))
	case o.Datatype != "":
		fmt.Fprintf(buf, "{\"@value\": %s, \"@type\": %s}", jsonString(o.Value), jsonString(o.Datatype))
	default:
		buf.WriteString(jsonString(o.Value))
	}
}

func sortedPrefixes() []string {
	out := make([]string, 0, len(Prefixes))
	for p := range Prefixes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func groupBySubject(sts []Statement) (map[string][]Statement, []string) {
	groups := make(map[string][]Statement)
	var order []string
	for _, s := range sts {
		if _, ok := groups[s.Subject]; !ok {
			order = append(order, s.Subject)
		}
		groups[s.Subject] = append(groups[s.Subject], s)
	}
	sort.Strings(order)
	return groups, order
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// DecodeJSONLD parses a document produced by EncodeJSONLD back into its
// statement set. It accepts both single values and arrays for @type and
// predicate objects, so the encoder's singleton/array distinction is not
// load-bearing.
func DecodeJSONLD(data []byte) ([]Statement, error) {
	var doc struct {
		Context map[string]string `json:"@context"`
		Graph   []map[string]any  `json:"@graph"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing JSON-LD: %w", err)
	}

	var sts []Statement
	for i, node := range doc.Graph {
		id, _ := node["@id"].(string)
		if id == "" {
			return nil, fmt.Errorf("JSON-LD node %d has no @id", i)
		}

		for _, t := range asSlice(node["@type"]) {
			typ, ok := t.(string)
			if !ok {
				return nil, fmt.Errorf("JSON-LD node %s has non-string @type", id)
			}
			sts = append(sts, Statement{Subject: id, Predicate: PredType, Object: Object{Value: typ, IsIRI: true}})
		}

		for key, raw := range node {
			if key == "@id" || key == "@type" {
				continue
			}
			for _, v := range asSlice(raw) {
				obj, err := decodeObject(v)
				if err != nil {
					return nil, fmt.Errorf("JSON-LD node %s, predicate %s: %w", id, key, err)
				}
				sts = append(sts, Statement{Subject: id, Predicate: key, Object: obj})
			}
		}
	}
	SortStatements(sts)
	return sts, nil
}

func decodeObject(v any) (Object, error) {
	switch val := v.(type) {
	case string:
		return Object{Value: val}, nil
	case map[string]any:
		if iri, ok := val["@id"].(string); ok {
			return Object{Value: iri, IsIRI: true}, nil
		}
		lit, ok := val["@value"].(string)
		if !ok {
			return Object{}, fmt.Errorf("object has neither @id nor string @value")
		}
		dt, _ := val["@type"].(string)
		return Object{Value: lit, Datatype: dt}, nil
	default:
		return Object{}, fmt.Errorf("unsupported object of type %T", v)
	}
}

func asSlice(v any) []any {
	if v == nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []any{v}
}
