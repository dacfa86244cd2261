package deltatracker

import (
	"time"
)

const defaultRunIDGranularity = time.Microsecond

// NextRunID derives the CapturedAt value of a new snapshot from the clock at the given granularity.
// It is strictly greater than the prior snapshot's CapturedAt, even if the clock did not advance by one
// granularity step since then or went backwards.
func NextRunID(now time.Time, granularity time.Duration, prior *Snapshot) int64 {
	if granularity <= 0 {
		granularity = defaultRunIDGranularity
	}

	id := now.UnixNano() / int64(granularity)

	if prior != nil && id <= prior.CapturedAt {
		id = prior.CapturedAt + 1
	}

	return id
}
