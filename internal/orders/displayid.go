package orders

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const displayIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewDisplayID generates a human order code in the form TX-YYYYMMDD-XXXX.
// Uniqueness is enforced by the persistence layer; callers retry on a
// duplicate.
func NewDisplayID(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	suffix := make([]byte, 4)
	for i, b := range buf {
		suffix[i] = displayIDAlphabet[int(b)%len(displayIDAlphabet)]
	}
	return fmt.Sprintf("TX-%s-%s", now.UTC().Format("20060102"), suffix)
}

// baseDisplayID strips a trailing -R<n> revision suffix so a grandchild of an
// already-revised order still numbers off the original base code.
func baseDisplayID(displayID string) string {
	idx := strings.LastIndex(displayID, "-R")
	if idx < 0 {
		return displayID
	}
	tail := displayID[idx+2:]
	if tail == "" {
		return displayID
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return displayID
		}
	}
	return displayID[:idx]
}

// reworkDisplayID derives the child display ID for a revision.
func reworkDisplayID(parentDisplayID string, revision int) string {
	return fmt.Sprintf("%s-R%d", baseDisplayID(parentDisplayID), revision)
}
