package core

import "strings"

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusComplete, JobStatusFailed},
	JobStatusRunning: {JobStatusComplete, JobStatusFailed},
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusComplete, JobStatusFailed:
		return true
	default:
		return false
	}
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// CanTransitionJob reports whether a job may move from one status to another.
// Staying in place is not a transition.
func CanTransitionJob(from, to JobStatus) bool {
	for _, allowed := range jobTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// JobTransitionSources lists every status that may move to the target.
func JobTransitionSources(to JobStatus) []JobStatus {
	sources := make([]JobStatus, 0, 2)
	for _, from := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusComplete, JobStatusFailed} {
		if CanTransitionJob(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// JobStatusFromProvider maps a provider reported status onto the job status
// machine. Records without a recognizable status still mark the job running.
func JobStatusFromProvider(raw string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ready", "done", "complete", "completed", "success", "succeeded":
		return JobStatusComplete
	case "failed", "error", "errored", "cancelled", "canceled":
		return JobStatusFailed
	default:
		return JobStatusRunning
	}
}

// mergeJobTarget folds per record statuses into one target per delivery.
// Failed wins over complete, which wins over running.
func mergeJobTarget(current, next JobStatus) JobStatus {
	rank := func(s JobStatus) int {
		switch s {
		case JobStatusFailed:
			return 3
		case JobStatusComplete:
			return 2
		case JobStatusRunning:
			return 1
		default:
			return 0
		}
	}
	if rank(next) > rank(current) {
		return next
	}
	return current
}
