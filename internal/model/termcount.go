package model

import (
	"distributed-lsi/internal/domain"
)

// TermCount sums term weights over all accumulated documents.
type TermCount struct {
	totals    []float64
	documents int64
}

// TermCountSnapshot is the exported state of a TermCount model.
type TermCountSnapshot struct {
	Totals    []float64 `json:"totals"`
	Documents int64     `json:"documents"`
}

func (s *TermCountSnapshot) Kind() string { return KindTermCount }

func NewTermCount(numTerms int) *TermCount {
	return &TermCount{totals: make([]float64, numTerms)}
}

// Accumulate validates the whole job before touching the totals, so a failed
// job leaves the model unchanged.
func (m *TermCount) Accumulate(job *domain.Job) error {
	for _, doc := range job.Documents {
		for _, tw := range doc {
			if err := checkTerm(tw.TermID, len(m.totals)); err != nil {
				return err
			}
		}
	}
	for _, doc := range job.Documents {
		for _, tw := range doc {
			m.totals[tw.TermID] += tw.Weight
		}
	}
	m.documents += int64(len(job.Documents))
	return nil
}

func (m *TermCount) Snapshot() domain.Snapshot {
	totals := make([]float64, len(m.totals))
	copy(totals, m.totals)
	return &TermCountSnapshot{Totals: totals, Documents: m.documents}
}
