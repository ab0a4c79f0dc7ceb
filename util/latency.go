package util

import (
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LatencyTracker aggregates transfer wall-clock latencies into an HDR
// histogram. Not safe for concurrent use; record from the event loop
// goroutine.
type LatencyTracker struct {
	hist *hdrhistogram.Histogram
}

// NewLatencyTracker tracks latencies in [min, max] with the given number
// of significant figures.
func NewLatencyTracker(min, max time.Duration, sigfigs int) *LatencyTracker {
	return &LatencyTracker{
		hist: hdrhistogram.New(min.Microseconds(), max.Microseconds(), sigfigs),
	}
}

func (t *LatencyTracker) Record(d time.Duration) {
	// Out-of-range samples are clamped rather than dropped.
	if err := t.hist.RecordValue(d.Microseconds()); err != nil {
		_ = t.hist.RecordValue(t.hist.HighestTrackableValue())
	}
}

func (t *LatencyTracker) Samples() int64 {
	return t.hist.TotalCount()
}

func (t *LatencyTracker) Percentile(p float64) time.Duration {
	return time.Duration(t.hist.ValueAtQuantile(p)) * time.Microsecond
}

func (t *LatencyTracker) Mean() time.Duration {
	return time.Duration(t.hist.Mean()) * time.Microsecond
}

func (t *LatencyTracker) Max() time.Duration {
	return time.Duration(t.hist.Max()) * time.Microsecond
}

func (t *LatencyTracker) Reset() {
	t.hist.Reset()
}

// Report writes a one-line-per-quantile summary.
func (t *LatencyTracker) Report(w io.Writer) {
	fmt.Fprintf(w, "samples=%d mean=%s max=%s\n", t.Samples(), t.Mean(), t.Max())
	for _, p := range []float64{50.0, 90.0, 99.0, 99.9} {
		fmt.Fprintf(w, "p%-5v %s\n", p, t.Percentile(p))
	}
}
