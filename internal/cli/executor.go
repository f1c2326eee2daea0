package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"bidsfs/internal/bids"
	"bidsfs/internal/config"
	"bidsfs/internal/fsversion"
	"bidsfs/internal/observability"
	"bidsfs/internal/output"
	"bidsfs/internal/pipeline"
	"bidsfs/internal/prov"
	"bidsfs/internal/stats"
)

// subjectsDirName is the FreeSurfer SUBJECTS_DIR inside the output root.
// recon-all writes flat unit directories here; the published freesurfer/
// tree is populated from it after each unit completes.
const subjectsDirName = ".freesurfer"

// RunResult is the outcome of one full invocation.
type RunResult struct {
	ExitCode int
	Summary  output.Summary

	// MetricsAddr is the bound address of the Prometheus endpoint, when one
	// was requested.
	MetricsAddr string
}

// Execute runs a full invocation against the real recon-all binary.
func Execute(ctx context.Context, inv Invocation) (RunResult, error) {
	return ExecuteWithInvoker(ctx, inv, &pipeline.ReconAll{})
}

// ExecuteWithInvoker is Execute with the pipeline boundary injected, so the
// orchestration around the external tool is testable without FreeSurfer.
func ExecuteWithInvoker(ctx context.Context, inv Invocation, invoker pipeline.Invoker) (RunResult, error) {
	logger := observability.InitLogger("bidsfs", inv.Verbose)

	if err := applyConfig(&inv); err != nil {
		return RunResult{ExitCode: ExitDatasetError}, err
	}
	if err := os.MkdirAll(inv.OutputDir, 0o755); err != nil {
		return RunResult{ExitCode: ExitInternalError}, fmt.Errorf("creating output directory: %w", err)
	}
	var metricsAddr string
	if inv.MetricsListen != "" {
		addr, err := observability.ServeMetrics(inv.MetricsListen)
		if err != nil {
			return RunResult{ExitCode: ExitDatasetError}, fmt.Errorf("metrics endpoint: %w", err)
		}
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		metricsAddr = addr
	}

	if inv.Level == LevelGroup {
		out, err := runGroup(logger, inv)
		out.MetricsAddr = metricsAddr
		return out, err
	}
	out, err := runParticipants(ctx, logger, inv, invoker)
	out.MetricsAddr = metricsAddr
	return out, err
}

// applyConfig merges file-level defaults into the invocation. Flags always
// win; the file only fills values the command line left unset.
func applyConfig(inv *Invocation) error {
	if inv.ConfigPath == "" {
		return nil
	}
	cfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		return err
	}
	if inv.Jobs == 0 {
		inv.Jobs = cfg.Jobs
	}
	if len(inv.FSOptions) == 0 {
		inv.FSOptions = cfg.FSOptions
	}
	if inv.License == "" {
		inv.License = cfg.License
	}
	if cfg.SkipNIDM {
		inv.SkipNIDM = true
	}
	if inv.MetricsListen == "" {
		inv.MetricsListen = cfg.MetricsListen
	}
	return nil
}

func runParticipants(ctx context.Context, logger zerolog.Logger, inv Invocation, invoker pipeline.Invoker) (RunResult, error) {
	if !inv.SkipValidation {
		if err := validateDataset(inv.BIDSDir); err != nil {
			return RunResult{ExitCode: ExitDatasetError}, err
		}
	}

	ds, err := bids.Scan(inv.BIDSDir, bids.ScanOptions{
		Participants: inv.Participants,
		Sessions:     inv.Sessions,
	})
	if err != nil {
		return RunResult{ExitCode: ExitDatasetError}, err
	}

	units, excluded := bids.ResolveAll(ds)
	for _, ex := range excluded {
		observability.RecordSubjectExcluded()
		unitLog := observability.UnitLogger(logger, ex.Subject, ex.Session)
		unitLog.Warn().Err(ex.Reason).Msg("excluded from run")
	}
	if len(units) == 0 {
		return RunResult{ExitCode: ExitDatasetError},
			&bids.DatasetStructureError{Kind: bids.ErrNoT1w, Msg: "no processable units remain after exclusions"}
	}

	license, err := pipeline.ResolveLicense(inv.License)
	if err != nil {
		return RunResult{ExitCode: ExitDatasetError}, err
	}

	manifest := fsversion.Collect(fsversion.Options{AppVersion: inv.AppVersion})
	logger.Info().
		Str("freesurfer", manifest.Version(fsversion.ComponentFreeSurfer)).
		Int("units", len(units)).
		Msg("starting participant-level run")

	writer := &output.Writer{Root: inv.OutputDir}
	if err := writer.WriteDatasetDescription(manifest); err != nil {
		return RunResult{ExitCode: ExitInternalError}, err
	}
	if err := writer.WriteReadme(); err != nil {
		return RunResult{ExitCode: ExitInternalError}, err
	}

	run := &unitRunner{
		invoker:     invoker,
		writer:      writer,
		subjectsDir: filepath.Join(inv.OutputDir, subjectsDirName),
		license:     license,
		fsOptions:   inv.FSOptions,
		skipNIDM:    inv.SkipNIDM,
		manifest:    manifest,
	}

	summary := output.Summary{}
	for _, ex := range excluded {
		id := "sub-" + ex.Subject
		if ex.Session != "" {
			id += "_ses-" + ex.Session
		}
		summary.Skipped++
		summary.Excluded = append(summary.Excluded, id)
	}

	for out := range dispatch(ctx, logger, run, units, workerCount(inv.Jobs)) {
		if out.failed {
			summary.Failure++
			summary.Failed = append(summary.Failed, out.id)
			observability.RecordUnitFailed()
		} else {
			summary.Success++
			summary.Succeeded = append(summary.Succeeded, out.id)
			observability.RecordUnitSucceeded()
		}
	}

	if err := writer.WriteSummary(summary); err != nil {
		return RunResult{ExitCode: ExitInternalError}, err
	}

	code := ExitSuccess
	if summary.Failure > 0 {
		code = ExitUnitFailure
	}
	logger.Info().
		Int("success", summary.Success).
		Int("failure", summary.Failure).
		Int("skipped", summary.Skipped).
		Msg("run complete")
	return RunResult{ExitCode: code, Summary: summary}, nil
}

func workerCount(jobs int) int {
	if jobs < 1 {
		return 1
	}
	return jobs
}

type unitOutcome struct {
	id     string
	failed bool
}

// dispatch fans the units out over a bounded worker pool and streams
// outcomes back. One unit's failure never affects the others; only context
// cancellation stops the feed.
func dispatch(ctx context.Context, logger zerolog.Logger, run *unitRunner, units []bids.ProcessingUnit, workers int) <-chan unitOutcome {
	workCh := make(chan bids.ProcessingUnit)
	outCh := make(chan unitOutcome)

	go func() {
		defer close(workCh)
		for _, u := range units {
			select {
			case workCh <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for unit := range workCh {
				failed := run.process(ctx, observability.UnitLogger(logger, unit.Subject, unit.Session), unit)
				outCh <- unitOutcome{id: unit.ID(), failed: failed}
			}
			done <- struct{}{}
		}()
	}
	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(outCh)
	}()
	return outCh
}

// unitRunner carries the per-run state shared by all workers. Everything in
// it is read-only after construction.
type unitRunner struct {
	invoker     pipeline.Invoker
	writer      *output.Writer
	subjectsDir string
	license     string
	fsOptions   []string
	skipNIDM    bool
	manifest    fsversion.Manifest
}

// process executes one unit end to end and reports whether it failed.
// Failed units still get a provenance record describing the attempt.
func (r *unitRunner) process(ctx context.Context, log zerolog.Logger, unit bids.ProcessingUnit) bool {
	log.Info().Msg("starting recon-all")

	res, err := r.invoker.Run(ctx, pipeline.Request{
		Unit:        unit,
		SubjectsDir: r.subjectsDir,
		LicensePath: r.license,
		ExtraArgs:   r.fsOptions,
	})
	if err != nil {
		log.Error().Err(err).Msg("pipeline invocation failed")
		now := time.Now().UTC()
		res = &pipeline.Result{ExitCode: -1, StartedAt: now, EndedAt: now}
	}

	failed := !res.Succeeded()
	status := prov.StatusSucceeded
	var measurements []prov.FileMeasurements

	if failed {
		status = prov.StatusFailed
		log.Error().Int("exit_code", res.ExitCode).Msg("recon-all failed")
	} else {
		measurements = r.parseStats(log, unit, res.OutputFiles)
		if _, err := r.writer.WriteArtifacts(unit, r.subjectsDir, res.OutputFiles); err != nil {
			log.Error().Err(err).Msg("publishing artifacts failed")
			failed = true
			status = prov.StatusFailed
			measurements = nil
			res.OutputFiles = nil
		}
	}

	if !r.skipNIDM {
		if err := r.writeProvenance(unit, status, res, measurements); err != nil {
			log.Error().Err(err).Msg("provenance generation failed")
			failed = true
		}
	}

	if !failed {
		log.Info().Int("outputs", len(res.OutputFiles)).Msg("unit complete")
	}
	return failed
}

// parseStats extracts measurements from the produced stats files. Parse
// failures within a file skip lines, never the file; an unreadable file is
// skipped whole. Neither fails the unit.
func (r *unitRunner) parseStats(log zerolog.Logger, unit bids.ProcessingUnit, outputs []string) []prov.FileMeasurements {
	var out []prov.FileMeasurements
	for _, file := range pipeline.StatsFiles(outputs) {
		path := filepath.Join(r.subjectsDir, unit.ID(), filepath.FromSlash(file))
		res, err := stats.ParseFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", file).Msg("stats file unreadable")
			continue
		}
		observability.RecordStatsLinesSkipped(res.Skipped)
		if res.Skipped > 0 {
			log.Warn().Int("skipped", res.Skipped).Str("file", file).Msg("malformed stats lines dropped")
		}
		if len(res.Records) == 0 {
			continue
		}
		out = append(out, prov.FileMeasurements{StatsFile: file, Records: res.Records})
	}
	return out
}

func (r *unitRunner) writeProvenance(unit bids.ProcessingUnit, status prov.Status, res *pipeline.Result, measurements []prov.FileMeasurements) error {
	var inputs []prov.InputFile
	for _, p := range unit.T1w {
		inputs = append(inputs, prov.InputFile{Modality: bids.ModalityT1w, Path: p})
	}
	for _, p := range unit.T2w {
		inputs = append(inputs, prov.InputFile{Modality: bids.ModalityT2w, Path: p})
	}

	var outputs []string
	if status == prov.StatusSucceeded {
		outputs = res.OutputFiles
	}

	g, err := prov.Build(prov.BuildInput{
		UnitID:       unit.ID(),
		Status:       status,
		StartedAt:    res.StartedAt,
		EndedAt:      res.EndedAt,
		Inputs:       inputs,
		Outputs:      outputs,
		Measurements: measurements,
		Manifest:     r.manifest,
	})
	if err != nil {
		return err
	}
	docs, err := prov.Serialize(g)
	if err != nil {
		return err
	}
	return r.writer.WriteProvenance(unit, docs)
}

// runGroup merges every participant-level provenance document under the
// output root into one dataset-wide statement set and writes it in both
// formats, round-trip verified like the per-unit documents.
func runGroup(logger zerolog.Logger, inv Invocation) (RunResult, error) {
	writer := &output.Writer{Root: inv.OutputDir}
	paths, err := writer.ProvenancePaths()
	if err != nil {
		return RunResult{ExitCode: ExitInternalError}, err
	}
	if len(paths) == 0 {
		return RunResult{ExitCode: ExitDatasetError},
			errors.New("no participant-level provenance found; run the participant level first")
	}

	seen := make(map[prov.Statement]bool)
	var merged []prov.Statement
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(inv.OutputDir, filepath.FromSlash(rel)))
		if err != nil {
			return RunResult{ExitCode: ExitInternalError}, fmt.Errorf("reading %s: %w", rel, err)
		}
		sts, err := prov.DecodeTurtle(data)
		if err != nil {
			return RunResult{ExitCode: ExitInternalError}, fmt.Errorf("parsing %s: %w", rel, err)
		}
		for _, s := range sts {
			if !seen[s] {
				seen[s] = true
				merged = append(merged, s)
			}
		}
	}
	prov.SortStatements(merged)

	docs := struct {
		jsonld []byte
		turtle []byte
	}{prov.EncodeJSONLD(merged), prov.EncodeTurtle(merged)}

	for _, check := range []struct {
		format string
		data   []byte
		decode func([]byte) ([]prov.Statement, error)
	}{
		{"jsonld", docs.jsonld, prov.DecodeJSONLD},
		{"turtle", docs.turtle, prov.DecodeTurtle},
	} {
		got, err := check.decode(check.data)
		if err != nil {
			return RunResult{ExitCode: ExitInternalError},
				&prov.SerializationConsistencyError{Format: check.format, Missing: merged}
		}
		if missing, extra := prov.DiffStatements(merged, got); len(missing) > 0 || len(extra) > 0 {
			return RunResult{ExitCode: ExitInternalError},
				&prov.SerializationConsistencyError{Format: check.format, Missing: missing, Extra: extra}
		}
	}

	dir := filepath.Join(inv.OutputDir, output.TreeNIDM)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return RunResult{ExitCode: ExitInternalError}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "group.jsonld"), docs.jsonld, 0o644); err != nil {
		return RunResult{ExitCode: ExitInternalError}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "group.ttl"), docs.turtle, 0o644); err != nil {
		return RunResult{ExitCode: ExitInternalError}, err
	}

	logger.Info().
		Int("documents", len(paths)).
		Int("statements", len(merged)).
		Msg("group-level aggregation complete")
	return RunResult{ExitCode: ExitSuccess}, nil
}

// validateDataset is the lightweight structural check applied unless
// --skip_bids_validator is set: the root must carry a parseable
// dataset_description.json.
func validateDataset(root string) error {
	path := filepath.Join(root, "dataset_description.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return &bids.DatasetStructureError{
			Kind: bids.ErrNoSubjects,
			Msg:  fmt.Sprintf("missing dataset_description.json in %s (use --skip_bids_validator to bypass)", root),
		}
	}
	var desc map[string]any
	if err := json.Unmarshal(data, &desc); err != nil {
		return &bids.DatasetStructureError{
			Kind: bids.ErrNoSubjects,
			Msg:  fmt.Sprintf("dataset_description.json is not valid JSON: %v", err),
		}
	}
	return nil
}
