// Package executor applies remediation instructions to a workspace.
//
// An Executor runs an instruction.List in order against a source tree and,
// for remote variants, against the production host and database. Every file
// is snapshotted before its first mutation. When a write, parse or verify
// step fails the batch stops and all touched files are restored; created
// files are removed. Failures outside the write phase (approval denied,
// allow-list violation, remote exit codes, RPC errors) stop the batch but
// leave files as written.
//
// After a successful batch the executor re-reads every written file, runs
// lint and build in the workspace and restarts the application process. Lint
// and build failures are reported as warnings; the files stay in place.
package executor
