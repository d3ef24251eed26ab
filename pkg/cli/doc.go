// Package cli provides the command-line interface for tapedeck.
//
// Commands operate on the tape store described by configuration:
//   - tapes list [glob]: List stored tape names
//   - tapes show <name>: Show the interactions on a tape
//   - tapes verify [glob]: Load tapes and report unreadable ones
//   - tapes seek <name>: Find the interaction a request would replay
//   - tapes delete <name> <id>: Remove one interaction and save the tape
//   - version: Show tapedeck version
//
// Inspection commands open tapes in read-only-archive mode, so they never
// create or rewrite a tape. Only delete writes.
//
// Global flags:
//   - --config: Config file (default: discovered tapedeck.yaml)
//   - --log-level, --log-format, --log-file: Override logging settings
//   - --json: Machine-readable output
//
// Usage:
//
//	tapedeck tapes list 'github/**'
//	tapedeck tapes show github/repos
//	tapedeck tapes seek github/repos --url https://api.github.com/repos/x/y
//	tapedeck tapes delete github/repos 0192f0c4-...
//	tapedeck --json tapes verify
package cli
