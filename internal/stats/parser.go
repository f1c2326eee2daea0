// Package stats parses FreeSurfer statistics files into structured
// measurement records.
//
// The input is loosely structured flat text: comment/header lines prefixed
// with '#' (some of which carry global measures), a "# ColHeaders" line
// describing the table schema, and whitespace-delimited data rows. Parsing
// is tolerant by design: a line that fails numeric parsing is skipped and
// counted, never aborting the file.
package stats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// MeasurementRecord is one parsed measurement: an anatomical structure, the
// metric measured on it, the numeric value, and the unit string taken
// verbatim from the source (no unit conversion is performed).
//
// Uniqueness key within one file: (Structure, Metric).
type MeasurementRecord struct {
	Structure string
	Metric    string
	Value     float64
	Unit      string
}

// MalformedMeasurementError describes a single unparseable data line. It is
// recovered locally: the line is skipped and counted.
type MalformedMeasurementError struct {
	File string
	Line int
	Msg  string
}

func (e *MalformedMeasurementError) Error() string {
	return fmt.Sprintf("%s:%d: malformed measurement: %s", e.File, e.Line, e.Msg)
}

// Result is the outcome of parsing one statistics file.
type Result struct {
	Records []MeasurementRecord

	// Skipped counts data lines dropped due to parse failures.
	Skipped int

	// Malformed retains the per-line errors behind Skipped, for diagnostics.
	Malformed []*MalformedMeasurementError
}

// Table columns that yield measurements, with the unit implied by the
// FreeSurfer column naming.
var metricColumns = map[string]struct {
	Metric string
	Unit   string
}{
	"Volume_mm3": {Metric: "volume", Unit: "mm^3"},
	"GrayVol":    {Metric: "gray matter volume", Unit: "mm^3"},
	"SurfArea":   {Metric: "surface area", Unit: "mm^2"},
	"ThickAvg":   {Metric: "average thickness", Unit: "mm"},
	"MeanCurv":   {Metric: "mean curvature", Unit: "mm^-1"},
	"normMean":   {Metric: "mean intensity", Unit: "MR"},
}

// ParseFile parses one .stats file from disk.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stats file: %w", err)
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads one statistics stream. name is used in diagnostics only.
//
// Recognized content:
//   - "# Measure <name>, <field>, <description>, <value>, <unit>" header
//     lines become one record each.
//   - "# ColHeaders ..." fixes the table schema for subsequent data rows.
//   - Data rows yield one record per recognized metric column.
//
// Any other comment line is skipped silently. A data line whose numeric
// field does not parse is skipped and counted; the rest of the file is
// unaffected.
func Parse(r io.Reader, name string) (*Result, error) {
	res := &Result{}
	var columns []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			switch {
			case strings.HasPrefix(body, "ColHeaders"):
				columns = strings.Fields(strings.TrimPrefix(body, "ColHeaders"))
			case strings.HasPrefix(body, "Measure"):
				rec, err := parseMeasureLine(strings.TrimPrefix(body, "Measure"))
				if err != nil {
					res.skip(name, lineNo, err)
					continue
				}
				res.Records = append(res.Records, rec)
			}
			continue
		}

		recs, err := parseDataLine(line, columns)
		if err != nil {
			res.skip(name, lineNo, err)
			continue
		}
		res.Records = append(res.Records, recs...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading stats file %s: %w", name, err)
	}
	return res, nil
}

func (r *Result) skip(file string, line int, err error) {
	r.Skipped++
	r.Malformed = append(r.Malformed, &MalformedMeasurementError{File: file, Line: line, Msg: err.Error()})
}

// parseMeasureLine handles the comma-separated global measure headers, e.g.
//
//	BrainSeg, BrainSegVol, Brain Segmentation Volume, 1243340.0, mm^3
func parseMeasureLine(body string) (MeasurementRecord, error) {
	parts := strings.Split(body, ",")
	if len(parts) < 5 {
		return MeasurementRecord{}, fmt.Errorf("measure header has %d fields, want 5", len(parts))
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(parts[len(parts)-2]), 64)
	if err != nil {
		return MeasurementRecord{}, fmt.Errorf("measure value %q is not numeric", strings.TrimSpace(parts[len(parts)-2]))
	}
	return MeasurementRecord{
		Structure: strings.TrimSpace(parts[0]),
		Metric:    strings.TrimSpace(parts[1]),
		Value:     value,
		Unit:      strings.TrimSpace(parts[len(parts)-1]),
	}, nil
}

// parseDataLine handles one whitespace-delimited table row.
//
// With a known schema, every recognized metric column yields a record for
// the row's StructName. Without one, the fallback layout is
// "<structure> <value> [unit]".
func parseDataLine(line string, columns []string) ([]MeasurementRecord, error) {
	fields := strings.Fields(line)

	if len(columns) == 0 {
		if len(fields) < 2 {
			return nil, fmt.Errorf("row has %d fields, want at least 2", len(fields))
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not numeric", fields[1])
		}
		unit := ""
		if len(fields) > 2 {
			unit = fields[2]
		}
		return []MeasurementRecord{{Structure: fields[0], Metric: "volume", Value: value, Unit: unit}}, nil
	}

	if len(fields) != len(columns) {
		return nil, fmt.Errorf("row has %d fields, schema has %d columns", len(fields), len(columns))
	}

	structure := ""
	for i, col := range columns {
		if col == "StructName" {
			structure = fields[i]
		}
	}
	if structure == "" {
		return nil, fmt.Errorf("row has no StructName column value")
	}

	var recs []MeasurementRecord
	for i, col := range columns {
		spec, ok := metricColumns[col]
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("column %s value %q is not numeric", col, fields[i])
		}
		recs = append(recs, MeasurementRecord{
			Structure: structure,
			Metric:    spec.Metric,
			Value:     value,
			Unit:      spec.Unit,
		})
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("row has no recognized metric columns")
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Metric < recs[j].Metric })
	return recs, nil
}
