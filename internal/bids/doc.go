// Package bids resolves the entities of a BIDS dataset that the pipeline
// consumes: subjects, sessions, and anatomical acquisitions.
//
// It is intentionally split into:
//   - Scanner: walks the dataset tree into an immutable, deterministically
//     ordered list of Subject records.
//   - Resolver: turns each Subject into the ProcessingUnits actually
//     submitted to the pipeline, fixing the directory shape (single- vs
//     multi-session) exactly once.
//
// The directory shape decided here is the single source of truth for both
// the FreeSurfer working directory name and every output tree path. No other
// package re-derives it.
//
// This package does not validate BIDS metadata beyond what is needed to
// locate T1w/T2w inputs; full structural validation is an external concern.
package bids
