package types

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"

	"github.com/google/uuid"
)

var ruleIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// NewSessionID generates a UUIDv7 session identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewSessionID() SessionID {
	return SessionID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates a rule id.
// Ids double as store key suffixes, so whitespace and slashes are rejected.
func ParseRuleID(s string) (RuleID, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty rule id", ErrInvalidRule)
	}
	if len(s) > MaxRuleIDLength {
		return "", fmt.Errorf("%w: rule id longer than %d chars", ErrInvalidRule, MaxRuleIDLength)
	}
	if !ruleIDPattern.MatchString(s) {
		return "", fmt.Errorf("%w: rule id %q has invalid characters", ErrInvalidRule, s)
	}
	return RuleID(s), nil
}

const installAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// installByteLimit is the largest multiple of len(installAlphabet) that fits
// in a byte; bytes at or above it are rejected so every letter is equally likely.
const installByteLimit = 256 - 256%len(installAlphabet)

// NewInstallID generates the 8-char lowercase installation id stored on first load.
func NewInstallID() (string, error) {
	return installIDFrom(rand.Reader)
}

func installIDFrom(r io.Reader) (string, error) {
	out := make([]byte, 0, InstallIDLength)
	var chunk [2 * InstallIDLength]byte
	for len(out) < InstallIDLength {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return "", fmt.Errorf("generate install id: %w", err)
		}
		for _, b := range chunk {
			if int(b) >= installByteLimit {
				continue
			}
			out = append(out, installAlphabet[int(b)%len(installAlphabet)])
			if len(out) == InstallIDLength {
				break
			}
		}
	}
	return string(out), nil
}
