package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a random UUID string
func GenerateID() string {
	return uuid.NewString()
}

// GenerateRunID generates a run ID with a timestamp prefix,
// e.g. run-20260102-150405-1a2b3c4d
func GenerateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "run-" + timestamp + "-" + suffix
}
