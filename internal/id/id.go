// Package id generates export job identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const jobPrefix = "job_"

// NewJob returns a fresh job identifier: a "job_" prefix followed by 20
// random hex characters. The prefix makes job ids recognizable in logs,
// object keys and webhook payloads. If the system randomness source fails
// the id is derived from the clock so job creation still proceeds.
func NewJob() string {
	var b [10]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%s%020x", jobPrefix, time.Now().UTC().UnixNano())
	}
	return jobPrefix + hex.EncodeToString(b[:])
}
