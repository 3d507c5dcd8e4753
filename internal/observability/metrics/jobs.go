// Package metrics emits the digest pipeline's StatsD metrics.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/paper-digest/internal/observability/errors"
	"github.com/target/paper-digest/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names used by the worker.
const (
	TransitionClaim    = "claim"
	TransitionComplete = "complete"
	TransitionFail     = "fail"
)

// JobMetric captures a job lifecycle event.
type JobMetric struct {
	Transition string
	Result     string
	// Method is the extraction method, when known.
	Method   string
	Duration time.Duration
	Err      error
}

// EmitJobLifecycle emits job.transition and, when a duration is set, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Method != "" {
		tags["method"] = in.Method
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// StageMetric captures one pipeline stage run (fetch, extract, summarize).
type StageMetric struct {
	Stage    string
	Result   string
	Method   string
	Attempts int
	Duration time.Duration
	Err      error
}

// EmitStage emits stage.run, stage.duration and, for retried stages, stage.attempts.
func EmitStage(sink statsd.Sink, in StageMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"stage":  in.Stage,
		"result": in.Result,
	}
	if in.Method != "" {
		tags["method"] = in.Method
	}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count("stage.run", 1, tags)
	if in.Duration > 0 {
		sink.Timing("stage.duration", in.Duration, CloneTags(tags))
	}
	if in.Attempts > 1 {
		sink.Gauge("stage.attempts", float64(in.Attempts), CloneTags(tags))
	}
}

// EmitQueueDepth reports job counts per status as gauges.
func EmitQueueDepth(sink statsd.Sink, counts map[string]int) {
	if sink == nil {
		return
	}
	for status, n := range counts {
		sink.Gauge("jobs.by_status", float64(n), map[string]string{"status": status})
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
