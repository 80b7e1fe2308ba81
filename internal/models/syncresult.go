package models

import "time"

// DateResult reports what one SyncDate invocation wrote for one calendar
// date. It is ephemeral: only the last-run timestamp outlives the run.
type DateResult struct {
	Date     string           `json:"date"`
	Counts   map[Resource]int `json:"counts"`
	Duration time.Duration    `json:"duration"`
}

// TotalRows sums the per-resource row counts.
func (r *DateResult) TotalRows() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}
