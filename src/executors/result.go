package executors

import (
	"time"

	logger "github.com/sirupsen/logrus"
)

// Outcome classifies what happened to one item inside a cycle.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ItemResult records the outcome of one position/order/user within a cycle.
// Failure isolation is a contract here, not incidental control flow: a failed
// item is recorded and the cycle moves on.
type ItemResult struct {
	Key     string
	Outcome Outcome
	Reason  string
	Err     error
}

// CycleReport aggregates the per-item results of one cycle run.
type CycleReport struct {
	Cycle     string
	StartedAt time.Time
	Items     []ItemResult
}

func NewCycleReport(cycle string) *CycleReport {
	return &CycleReport{
		Cycle:     cycle,
		StartedAt: time.Now(),
	}
}

func (r *CycleReport) OK(key, reason string) {
	r.Items = append(r.Items, ItemResult{Key: key, Outcome: OutcomeOK, Reason: reason})
}

func (r *CycleReport) Skip(key, reason string) {
	r.Items = append(r.Items, ItemResult{Key: key, Outcome: OutcomeSkipped, Reason: reason})
}

func (r *CycleReport) Fail(key, reason string, err error) {
	r.Items = append(r.Items, ItemResult{Key: key, Outcome: OutcomeFailed, Reason: reason, Err: err})
}

// Counts returns how many items succeeded, were skipped, and failed.
func (r *CycleReport) Counts() (ok, skipped, failed int) {
	for _, item := range r.Items {
		switch item.Outcome {
		case OutcomeOK:
			ok++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		}
	}
	return ok, skipped, failed
}

// Log writes the cycle summary.
func (r *CycleReport) Log() {
	ok, skipped, failed := r.Counts()

	logger.WithFields(map[string]interface{}{
		"cycle":    r.Cycle,
		"ok":       ok,
		"skipped":  skipped,
		"failed":   failed,
		"duration": time.Since(r.StartedAt).String(),
	}).Info("Cycle completed")

	for _, item := range r.Items {
		if item.Outcome != OutcomeFailed {
			continue
		}
		logger.WithFields(map[string]interface{}{
			"cycle":  r.Cycle,
			"item":   item.Key,
			"reason": item.Reason,
		}).WithError(item.Err).Warn("Cycle item failed")
	}
}
