package tape

import (
	"fmt"
	"strings"
)

// Mode controls which operations a tape accepts.
type Mode string

const (
	ModeReadOnly        Mode = "read-only"
	ModeReadWrite       Mode = "read-write"
	ModeReadOnlyArchive Mode = "read-only-archive"
	ModeWriteOnly       Mode = "write-only"
)

// IsValid checks if the mode is valid.
func (m Mode) IsValid() bool {
	switch m {
	case ModeReadOnly, ModeReadWrite, ModeReadOnlyArchive, ModeWriteOnly:
		return true
	default:
		return false
	}
}

// Writable reports whether Record and Delete are allowed.
func (m Mode) Writable() bool {
	return m == ModeReadWrite || m == ModeWriteOnly
}

// Readable reports whether Seek may match recorded interactions.
func (m Mode) Readable() bool {
	return m != ModeWriteOnly
}

// ParseMode parses a mode name. Both "read-only" and "READ_ONLY" spellings
// are accepted.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown tape mode %q", s)
	}
	return m, nil
}

// ReplayPolicy decides how Seek walks a tape with several matching interactions.
type ReplayPolicy string

const (
	// ReplayIdempotent always returns the first matching interaction.
	ReplayIdempotent ReplayPolicy = "idempotent"
	// ReplaySequential returns each matching interaction at most once, in
	// recorded order.
	ReplaySequential ReplayPolicy = "sequential"
)

// IsValid checks if the replay policy is valid.
func (p ReplayPolicy) IsValid() bool {
	return p == ReplayIdempotent || p == ReplaySequential
}

// ParseReplayPolicy parses a replay policy name.
func ParseReplayPolicy(s string) (ReplayPolicy, error) {
	p := ReplayPolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown replay policy %q", s)
	}
	return p, nil
}
