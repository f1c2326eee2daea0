package prov

import (
	"bytes"
	"fmt"
	"strings"
)

// EncodeTurtle renders a canonical statement list as a Turtle document.
//
// One prefix directive per namespace (sorted), then one block per subject
// (sorted), with one "predicate object ;" line per statement. rdf:type is
// written with the "a" shorthand and leads its block. The emitted subset is
// exactly what DecodeTurtle parses.
func EncodeTurtle(sts []Statement) []byte {
	var buf bytes.Buffer
	for _, p := range sortedPrefixes() {
		fmt.Fprintf(&buf, "@prefix %s: <%s> .\n", p, Prefixes[p])
	}

	subjects, order := groupBySubject(sts)
	for _, subj := range order {
		buf.WriteByte('\n')
		fmt.Fprintf(&buf, "<%s>", subj)

		group := subjects[subj]
		for i, s := range group {
			if i > 0 {
				buf.WriteString(" ;")
			}
			buf.WriteString("\n    ")
			if s.Predicate == PredType {
				buf.WriteString("a ")
			} else {
				buf.WriteString(s.Predicate)
				buf.WriteByte(' ')
			}
			writeTurtleObject(&buf, s.Object)
		}
		buf.WriteString(" .\n")
	}
	return buf.Bytes()
}

func writeTurtleObject(buf *bytes.Buffer, o Object) {
	switch {
	case o.IsIRI && strings.HasPrefix(o.Value, "urn:"):
		fmt.Fprintf(buf, "<%s>", o.Value)
	case o.IsIRI:
		buf.WriteString(o.Value) // prefixed name
	default:
		buf.WriteByte('"')
		buf.WriteString(escapeTurtle(o.Value))
		buf.WriteByte('"')
		if o.Datatype != "" {
			buf.WriteString("^^" + o.Datatype)
		}
	}
}

func escapeTurtle(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(s)
}

func unescapeTurtle(s string) string {
	r := strings.NewReplacer(`\\`, "\x00", `\"`, `"`, `\n`, "\n", `\r`, "\r", `\t`, "\t")
	return strings.ReplaceAll(r.Replace(s), "\x00", `\`)
}

// DecodeTurtle parses a document produced by EncodeTurtle back into its
// statement set. It understands the emitted subset: prefix directives,
// subject blocks with ";"-separated predicate-object pairs, the "a"
// shorthand, IRI references, prefixed names, and plain/typed literals.
func DecodeTurtle(data []byte) ([]Statement, error) {
	toks, err := tokenizeTurtle(string(data))
	if err != nil {
		return nil, err
	}

	var sts []Statement
	i := 0
	for i < len(toks) {
		// Prefix directive: @prefix name: <iri> .
		if toks[i].kind == tokKeyword && toks[i].text == "@prefix" {
			if i+3 >= len(toks) || toks[i+3].kind != tokDot {
				return nil, fmt.Errorf("malformed @prefix directive")
			}
			i += 4
			continue
		}

		// Subject block.
		if toks[i].kind != tokIRI {
			return nil, fmt.Errorf("expected subject IRI, got %q", toks[i].text)
		}
		subject := toks[i].text
		i++

		for {
			if i >= len(toks) {
				return nil, fmt.Errorf("unterminated block for subject %s", subject)
			}
			pred, obj, next, err := parsePredicateObject(toks, i)
			if err != nil {
				return nil, fmt.Errorf("subject %s: %w", subject, err)
			}
			sts = append(sts, Statement{Subject: subject, Predicate: pred, Object: obj})
			i = next

			if i >= len(toks) {
				return nil, fmt.Errorf("unterminated block for subject %s", subject)
			}
			if toks[i].kind == tokSemicolon {
				i++
				continue
			}
			if toks[i].kind == tokDot {
				i++
				break
			}
			return nil, fmt.Errorf("subject %s: expected ';' or '.', got %q", subject, toks[i].text)
		}
	}

	SortStatements(sts)
	return sts, nil
}

func parsePredicateObject(toks []token, i int) (string, Object, int, error) {
	var pred string
	switch toks[i].kind {
	case tokA:
		pred = PredType
	case tokPName:
		pred = toks[i].text
	default:
		return "", Object{}, i, fmt.Errorf("expected predicate, got %q", toks[i].text)
	}
	i++
	if i >= len(toks) {
		return "", Object{}, i, fmt.Errorf("predicate %s has no object", pred)
	}

	switch toks[i].kind {
	case tokIRI:
		return pred, Object{Value: toks[i].text, IsIRI: true}, i + 1, nil
	case tokPName:
		return pred, Object{Value: toks[i].text, IsIRI: true}, i + 1, nil
	case tokLiteral:
		obj := Object{Value: unescapeTurtle(toks[i].text)}
		i++
		if i < len(toks) && toks[i].kind == tokDatatype {
			obj.Datatype = toks[i].text
			i++
		}
		return pred, obj, i, nil
	default:
		return "", Object{}, i, fmt.Errorf("predicate %s has malformed object %q", pred, toks[i].text)
	}
}

type tokenKind int

const (
	tokIRI tokenKind = iota
	tokPName
	tokLiteral
	tokDatatype
	tokA
	tokSemicolon
	tokDot
	tokKeyword
)

type token struct {
	kind tokenKind
	text string
}

func tokenizeTurtle(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '<':
			end := strings.IndexByte(src[i:], '>')
			if end < 0 {
				return nil, fmt.Errorf("unterminated IRI reference at offset %d", i)
			}
			toks = append(toks, token{kind: tokIRI, text: src[i+1 : i+end]})
			i += end + 1
		case c == '"':
			text, n, err := scanLiteral(src[i:])
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokLiteral, text: text})
			i += n
		case c == '^':
			if !strings.HasPrefix(src[i:], "^^") {
				return nil, fmt.Errorf("stray '^' at offset %d", i)
			}
			i += 2
			start := i
			for i < len(src) && !isTurtleDelim(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokDatatype, text: src[start:i]})
		case c == ';':
			toks = append(toks, token{kind: tokSemicolon, text: ";"})
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot, text: "."})
			i++
		default:
			start := i
			for i < len(src) && !isTurtleDelim(src[i]) {
				i++
			}
			word := src[start:i]
			switch {
			case word == "a":
				toks = append(toks, token{kind: tokA, text: word})
			case strings.HasPrefix(word, "@"):
				toks = append(toks, token{kind: tokKeyword, text: word})
			case strings.HasSuffix(word, ":"):
				// Prefix declaration name; token value keeps the colon.
				toks = append(toks, token{kind: tokPName, text: word})
			case strings.Contains(word, ":"):
				toks = append(toks, token{kind: tokPName, text: word})
			default:
				return nil, fmt.Errorf("unexpected token %q at offset %d", word, start)
			}
		}
	}
	return toks, nil
}

// scanLiteral scans a quoted literal starting at src[0] == '"'. It returns
// the raw (still escaped) contents and the number of bytes consumed
// including both quotes.
func scanLiteral(src string) (string, int, error) {
	for i := 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++ // skip escaped char
		case '"':
			return src[1:i], i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

func isTurtleDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ';', '<', '"':
		return true
	default:
		return false
	}
}
