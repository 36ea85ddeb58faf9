// Package diagnostics inspects the environment around a database file.
//
// The package implements four concerns:
//
//   - Disk space: free-space measurement and preflight checks for the volume
//     backing a path, including network filesystem detection.
//
//   - Processes: discovery of processes holding the database file open, and
//     bounded waits for named processes to exit.
//
//   - Block devices: classification of the physical device behind a path
//     (drive type, controller, removable media) for doctor reports.
//
//   - Host facts: cached system information attached to diagnostic output.
//
// Everything here is best-effort. Containers, restricted users and unusual
// platforms hide parts of this information, and callers receive zero values
// or empty lists rather than hard failures wherever the absence of an answer
// is not itself actionable.
package diagnostics
