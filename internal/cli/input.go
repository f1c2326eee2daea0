// Package cli parses the command-line invocation and drives a full run:
// scan, resolve, execute, report, exit code.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Process exit codes. A unit failure (code 1) means the run itself worked
// but at least one pipeline invocation did not; invalid invocations and
// dataset problems are distinguished so wrapping scripts can react.
const (
	ExitSuccess           = 0
	ExitUnitFailure       = 1
	ExitInvalidInvocation = 2
	ExitDatasetError      = 3
	ExitInternalError     = 4
)

// Analysis levels.
const (
	LevelParticipant = "participant"
	LevelGroup       = "group"
)

// InvocationError reports an unusable command line.
type InvocationError struct {
	Msg string
}

func (e *InvocationError) Error() string { return "invalid invocation: " + e.Msg }

func invocationErrf(format string, args ...any) error {
	return &InvocationError{Msg: fmt.Sprintf(format, args...)}
}

// Invocation is the parsed and validated command line.
type Invocation struct {
	BIDSDir   string
	OutputDir string
	Level     string

	Participants []string
	Sessions     []string

	License        string
	SkipValidation bool
	SkipNIDM       bool
	FSOptions      []string
	Jobs           int
	ConfigPath     string
	MetricsListen  string
	Verbose        bool

	// AppVersion is the binary's declared version, injected by main.
	AppVersion string
}

const usageText = `usage: bidsfs <bids_dir> <output_dir> <analysis_level> [options]

positional arguments:
  bids_dir              BIDS dataset root directory
  output_dir            output directory for derivatives
  analysis_level        "participant" or "group"

options:
  --participant_label   space- or comma-separated subject labels (with or
                        without the "sub-" prefix); default: all subjects
  --session_label       session labels to process; default: all sessions
  --freesurfer_license  path to the FreeSurfer license file
  --skip_bids_validator skip the dataset structure check
  --fs_options          extra recon-all arguments, whitespace-separated
  --skip_nidm           do not generate NIDM provenance documents
  --jobs                number of subjects processed in parallel (default 1)
  --config              TOML file with run defaults
  --metrics_listen      address for the Prometheus /metrics endpoint
                        (e.g. 127.0.0.1:9464); disabled when unset
  --verbose             enable debug logging
`

// Usage writes the usage text.
func Usage(w io.Writer) { fmt.Fprint(w, usageText) }

// ParseInvocation parses arguments (excluding the program name) into an
// Invocation. The three positional arguments must come first; options follow
// in any order. Validation failures return an InvocationError.
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) < 3 {
		return Invocation{}, invocationErrf("expected <bids_dir> <output_dir> <analysis_level>, got %d arguments", len(args))
	}
	for i := 0; i < 3; i++ {
		if strings.HasPrefix(args[i], "-") {
			return Invocation{}, invocationErrf("expected positional argument, got flag %q", args[i])
		}
	}

	inv := Invocation{
		BIDSDir:   args[0],
		OutputDir: args[1],
		Level:     args[2],
	}

	fs := flag.NewFlagSet("bidsfs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	participants := fs.String("participant_label", "", "")
	sessions := fs.String("session_label", "", "")
	fs.StringVar(&inv.License, "freesurfer_license", "", "")
	fs.BoolVar(&inv.SkipValidation, "skip_bids_validator", false, "")
	fsOptions := fs.String("fs_options", "", "")
	fs.BoolVar(&inv.SkipNIDM, "skip_nidm", false, "")
	fs.IntVar(&inv.Jobs, "jobs", 0, "")
	fs.StringVar(&inv.ConfigPath, "config", "", "")
	fs.StringVar(&inv.MetricsListen, "metrics_listen", "", "")
	fs.BoolVar(&inv.Verbose, "verbose", false, "")

	if err := fs.Parse(args[3:]); err != nil {
		return Invocation{}, invocationErrf("%v", err)
	}
	if fs.NArg() > 0 {
		return Invocation{}, invocationErrf("unexpected argument %q", fs.Arg(0))
	}

	inv.Participants = splitList(*participants)
	inv.Sessions = splitList(*sessions)
	inv.FSOptions = strings.Fields(*fsOptions)

	if err := validate(&inv); err != nil {
		return Invocation{}, err
	}
	return inv, nil
}

func validate(inv *Invocation) error {
	if inv.Level != LevelParticipant && inv.Level != LevelGroup {
		return invocationErrf("analysis_level must be %q or %q, got %q", LevelParticipant, LevelGroup, inv.Level)
	}
	if inv.Jobs < 0 {
		return invocationErrf("--jobs must be >= 0, got %d", inv.Jobs)
	}
	info, err := os.Stat(inv.BIDSDir)
	if err != nil || !info.IsDir() {
		return invocationErrf("bids_dir %q is not a directory", inv.BIDSDir)
	}
	if inv.OutputDir == "" {
		return invocationErrf("output_dir is required")
	}
	return nil
}

// splitList accepts space- or comma-separated label lists.
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
