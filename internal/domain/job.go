// internal/domain/job.go
package domain

import (
	"fmt"
)

// TermWeight is a single (term id, weight) entry of a sparse bag-of-words document.
type TermWeight struct {
	TermID int     `json:"term_id"`
	Weight float64 `json:"weight"`
}

// Document is a sparse bag-of-words vector.
type Document []TermWeight

// Job is a batch of documents handed to exactly one worker.
// A job is immutable once it has been received.
type Job struct {
	ID        string     `json:"id"`
	Documents []Document `json:"documents"`
}

// Validate checks that the job is well formed.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id cannot be empty")
	}
	for i, doc := range j.Documents {
		for _, tw := range doc {
			if tw.TermID < 0 {
				return fmt.Errorf("document %d has negative term id %d", i, tw.TermID)
			}
		}
	}
	return nil
}
