package gc

import "time"

// reportVersionThreshold and reportInterval are the two triggers for an
// aggregated end-of-compaction report (spec.md §4.2.5): whichever fires
// first resets both.
const (
	reportVersionThreshold = 1 << 20 // 1,048,576
	reportInterval         = 60 * time.Second
)

// Report is an aggregated statistics snapshot emitted periodically across
// compaction jobs, grounded on the teacher's statistics.go ticker-style
// periodic aggregation (a running counter flushed to a logged summary on
// a time or volume trigger, rather than per-operation logging).
type Report struct {
	VersionsExamined uint64
	KeysRemoved      int
	Elapsed          time.Duration
}

// processStart is the reference point for Context.lastReportNanos, which
// holds nanoseconds since processStart of the last report (0 = none yet)
// and is accessed only through atomic ops so Filter.Close (called from
// whatever goroutine ran the compaction) never needs to take Context's
// mutex for this.
var processStart = time.Now()

func (c *Context) elapsedSinceLastReport() time.Duration {
	last := c.lastReportNanos.Load()
	if last == 0 {
		return time.Since(processStart)
	}
	return time.Duration(time.Since(processStart).Nanoseconds() - last)
}

// maybeReport folds examined/removed into the running totals and, if
// either trigger has fired, returns a Report and resets the counters.
// Returns nil when neither trigger has fired yet.
func (c *Context) maybeReport(examined int, removed int) *Report {
	total := c.recordVersionsExamined(examined)
	c.removedSinceReport.Add(uint64(removed))
	elapsed := c.elapsedSinceLastReport()

	if total < reportVersionThreshold && elapsed < reportInterval {
		return nil
	}

	removedTotal := c.removedSinceReport.Swap(0)
	c.resetVersionsExamined()
	c.lastReportNanos.Store(time.Since(processStart).Nanoseconds())

	return &Report{VersionsExamined: total, KeysRemoved: int(removedTotal), Elapsed: elapsed}
}
