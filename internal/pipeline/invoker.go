// Package pipeline is the external-process boundary around FreeSurfer's
// recon-all. The analysis binary is a black box: given a processing unit's
// inputs it either produces a fixed output file set under the subjects
// directory or fails with a nonzero status.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"bidsfs/internal/bids"
)

// Request describes one recon-all invocation.
type Request struct {
	Unit bids.ProcessingUnit

	// SubjectsDir is the FreeSurfer SUBJECTS_DIR the run writes into. The
	// working directory name inside it is Unit.ID(), which is derived from
	// the same shape decision the output trees use.
	SubjectsDir string

	// LicensePath is the resolved FreeSurfer license file.
	LicensePath string

	// ExtraArgs are passed through to recon-all verbatim (including any
	// internal-parallelism flags); the orchestrator does not interpret them.
	ExtraArgs []string
}

// Result reports one attempted invocation. A nonzero ExitCode is a recorded
// outcome, not an infrastructure error: provenance is still emitted for the
// attempt.
type Result struct {
	ExitCode  int
	StartedAt time.Time
	EndedAt   time.Time

	// OutputFiles are the produced artifacts, relative to the unit's
	// subject directory, sorted. Empty for failed runs.
	OutputFiles []string

	Stderr []byte
}

// Succeeded reports whether the pipeline exited cleanly.
func (r *Result) Succeeded() bool { return r.ExitCode == 0 }

// ExecutionError is an infrastructure failure around the subprocess (could
// not start, cancelled), as opposed to the tool itself exiting nonzero.
type ExecutionError struct {
	Unit string
	Msg  string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("pipeline execution for %s: %s: %v", e.Unit, e.Msg, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Invoker runs the analysis tool for one processing unit.
type Invoker interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// ReconAll invokes the real recon-all binary.
type ReconAll struct {
	// Command is the binary name; defaults to "recon-all".
	Command string
}

// BuildArgs assembles the recon-all argument list for a unit: the subject
// identifier, one -i per T1w image, the first T2w image (if any) with
// -T2pial, extra passthrough options, and -all.
func (r *ReconAll) BuildArgs(req Request) []string {
	args := []string{"-subjid", req.Unit.ID()}
	for _, t1 := range req.Unit.T1w {
		args = append(args, "-i", t1)
	}
	if len(req.Unit.T2w) > 0 {
		args = append(args, "-T2", req.Unit.T2w[0], "-T2pial")
	}
	args = append(args, req.ExtraArgs...)
	args = append(args, "-all")
	return args
}

// Run executes recon-all for one unit.
//
// Cancellation kills the whole process group, so a timed-out unit cannot
// leave orphaned children; other units in flight are unaffected. A nonzero
// exit is returned as a Result, not an error.
func (r *ReconAll) Run(ctx context.Context, req Request) (*Result, error) {
	command := r.Command
	if command == "" {
		command = "recon-all"
	}
	if err := os.MkdirAll(req.SubjectsDir, 0o755); err != nil {
		return nil, &ExecutionError{Unit: req.Unit.ID(), Msg: "creating subjects directory", Err: err}
	}

	cmd := exec.CommandContext(ctx, command, r.BuildArgs(req)...)
	cmd.Env = append(os.Environ(),
		"SUBJECTS_DIR="+req.SubjectsDir,
		"FS_LICENSE="+req.LicensePath,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now().UTC()
	if err := cmd.Start(); err != nil {
		return nil, &ExecutionError{Unit: req.Unit.ID(), Msg: "starting " + command, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, &ExecutionError{Unit: req.Unit.ID(), Msg: "cancelled", Err: ctx.Err()}
	case waitErr = <-done:
	}
	ended := time.Now().UTC()

	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return nil, &ExecutionError{Unit: req.Unit.ID(), Msg: "running " + command, Err: waitErr}
		}
		exitCode = exitErr.ExitCode()
	}

	res := &Result{
		ExitCode:  exitCode,
		StartedAt: started,
		EndedAt:   ended,
		Stderr:    stderr.Bytes(),
	}
	if res.Succeeded() {
		outputs, err := CollectOutputs(req.SubjectsDir, req.Unit.ID())
		if err != nil {
			return nil, &ExecutionError{Unit: req.Unit.ID(), Msg: "collecting outputs", Err: err}
		}
		res.OutputFiles = outputs
	}
	return res, nil
}

// Subdirectories of a FreeSurfer subject directory that count as the
// published artifact set.
var outputSubdirs = []string{"mri", "stats", "surf"}

// CollectOutputs lists the produced artifact files for a unit, relative to
// its subject directory, sorted. Filesystem ordering is never trusted.
func CollectOutputs(subjectsDir, unitID string) ([]string, error) {
	root := filepath.Join(subjectsDir, unitID)
	var files []string
	for _, sub := range outputSubdirs {
		dir := filepath.Join(root, sub)
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// StatsFiles filters an output list down to the statistics files the
// measurement parser consumes.
func StatsFiles(outputs []string) []string {
	var out []string
	for _, f := range outputs {
		if strings.HasPrefix(f, "stats/") && strings.HasSuffix(f, ".stats") {
			out = append(out, f)
		}
	}
	return out
}
