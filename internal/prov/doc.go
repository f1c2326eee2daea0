// Package prov builds and serializes the provenance graph describing one
// pipeline execution: which software (Agents) did what (Activity) to which
// inputs and outputs (Entities), and which measurements resulted.
//
// It is intentionally split into:
//   - One canonical in-memory graph (Graph), built once per processing unit
//     after the pipeline run completes or fails, immutable afterwards.
//   - A canonical statement expansion (Statements) with a fully-specified
//     total order, independent of insertion order and map iteration.
//   - Two pure serializers over the same statement set: a JSON-LD document
//     and a Turtle document. Re-parsing either must yield the identical
//     statement set; Serialize enforces this before any bytes are written.
//
// Node identifiers are deterministic SHA1-derived UUIDs of the node's
// logical path, so re-running with identical inputs produces byte-identical
// documents modulo timestamps.
package prov
