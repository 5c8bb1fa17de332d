// Package core orchestrates ingestion runs: it turns a set of files and
// directories into validated, typed writes against the sink.
//
// The package holds the run logic independent of any transport. The CLI,
// the HTTP server and the directory watcher all drive the same [Service].
//
// # Run
//
// A run moves through fixed phases:
//
//  1. Preflight: the sink's grants are probed once per schema. A missing
//     critical grant aborts the run before any file is touched.
//  2. Scan and detect: directories are expanded and each file's header is
//     matched against the configured file types.
//  3. Upsert drain: files of upsert types are loaded one at a time, oldest
//     modification time first, across all types.
//  4. Replace drain: files of each replace type are loaded concurrently and
//     written with a single replace per type.
//
// The first write to a table within a run replaces its contents; later
// writes append, or upsert when keys are configured.
//
// # Failures
//
// Failures are isolated per file. A file that cannot be read or fails
// validation is reported and left in place; the other files of its type
// still load. A failed write fails every file it carried and skips the rest
// of that type for the run. Every error is mapped to a user-facing message
// with [errs.MapError].
//
// # Background runs
//
// [Service.StartRun] runs in the background and is tracked for a while
// after it finishes. Progress is polled with [Service.GetRun].
package core
