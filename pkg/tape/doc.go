// Package tape provides the recording unit of tapedeck: a named, ordered set
// of HTTP interactions that can be matched against live requests and replayed.
//
// Tapes are described by two capabilities:
//
//   - Tape: seek, record, play and delete interactions.
//   - Storable: a Tape that can be loaded from and saved to a backing store,
//     and that tracks whether it has unsaved changes (IsDirty).
//
// MemoryTape implements both. It never performs I/O on its own behalf; a
// Source or Sink handed to Load or Save scopes every read or write.
//
// # Modes
//
//   - ModeReadOnly: replay only; Record and Delete fail with *ReadOnlyError.
//   - ModeReadWrite: replay and record.
//   - ModeReadOnlyArchive: replay only, and the backing content must exist.
//   - ModeWriteOnly: record only; Seek never matches.
//
// # Replay policies
//
//   - ReplayIdempotent: Seek always returns the first matching interaction.
//   - ReplaySequential: each interaction is played at most once, in order.
package tape
