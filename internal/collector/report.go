package collector

import (
	"fmt"
	"time"
)

// Report is the outcome of one collection run.
type Report struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors"`

	Created int `json:"created"`
	Updated int `json:"updated"`
	// Skipped counts records dropped for lacking an OpportunityID.
	Skipped int `json:"skipped"`

	ExtractDate *time.Time    `json:"extractDate,omitempty"`
	ExtractURL  string        `json:"extractUrl,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"-"`
	// DurationSeconds is Duration in seconds, rounded to milliseconds.
	DurationSeconds float64 `json:"durationSeconds"`
}

func (r *Report) addError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

func (r *Report) finish(started time.Time) {
	r.Duration = time.Since(started)
	r.DurationSeconds = r.Duration.Round(time.Millisecond).Seconds()
	r.Success = len(r.Errors) == 0
}

// Summary renders the report as one human-readable line.
func (r *Report) Summary() string {
	status := "succeeded"
	if !r.Success {
		status = "failed"
	}
	extract := "none"
	if r.ExtractDate != nil {
		extract = r.ExtractDate.Format("2006-01-02")
	}
	return fmt.Sprintf("collection %s: processed %d (created %d, updated %d, skipped %d), %d errors, extract %s, took %s",
		status, r.Processed, r.Created, r.Updated, r.Skipped, len(r.Errors), extract, r.Duration.Round(time.Millisecond))
}
